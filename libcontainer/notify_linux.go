package libcontainer

import (
	"net"
	"os"

	"github.com/pkg/errors"
)

const notifySocketName = "notify.sock"

// CreateNotifySocket implements §4.6's first half: "A Unix domain socket
// at <container-root>/notify.sock is created by the Launcher before the
// clone". It returns the listening socket as a dup'd *os.File so it can
// travel through exec.Cmd.ExtraFiles across both re-execs (Intermediate,
// then Init) and be reconstituted with net.FileListener on the far side —
// this is why the listener "remains accessible" post-pivot_root: Init
// never needs to resolve the path again, only the inherited fd.
func CreateNotifySocket(containerRoot string) (*net.UnixListener, *os.File, error) {
	path := containerRoot + "/" + notifySocketName
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve notify socket address")
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listen on notify socket")
	}
	f, err := l.File()
	if err != nil {
		l.Close()
		return nil, nil, errors.Wrap(err, "dup notify socket fd")
	}
	return l, f, nil
}

// WaitForStart is Init's half of §4.6: "Init reads and proceeds". f is
// the inherited notify-socket fd reconstituted as a listener; this call
// blocks (an unbounded suspension point per §5) until the external
// `start` command connects and writes its single byte.
func WaitForStart(f *os.File) error {
	l, err := net.FileListener(f)
	if err != nil {
		return errors.Wrap(err, "reconstitute notify listener")
	}
	conn, err := l.Accept()
	if err != nil {
		return errors.Wrap(err, "accept notify connection")
	}
	defer conn.Close()
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		return errors.Wrap(err, "read start byte")
	}
	return nil
}

// SendStart is the `start` command's half: connects to the container's
// notify socket by path (this runs as an entirely separate later
// invocation with no inherited fd, so path is the only handle it has)
// and writes the single zero byte that releases Init's wait.
func SendStart(containerRoot string) error {
	path := containerRoot + "/" + notifySocketName
	conn, err := net.Dial("unix", path)
	if err != nil {
		return errors.Wrap(err, "dial notify socket")
	}
	defer conn.Close()
	_, err = conn.Write([]byte{0})
	return errors.Wrap(err, "write start byte")
}
