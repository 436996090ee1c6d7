// intermediate_linux.go implements §4.1's S1 stage: resident in the new
// namespace set, it performs the id-mapping handshake, joins any
// path-based namespaces, sets the hostname, then forks Init and relays
// its pid back to the Launcher.
package libcontainer

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/namespaces"
	"github.com/tsturzl/youki/libcontainer/system"
	"github.com/tsturzl/youki/libcontainer/utils"
)

// Fd numbers are positional, matching the ExtraFiles order the Launcher
// (chan1 child, ready pipe write end, notify socket) and the Intermediate
// itself (chan2 child, notify socket) pass down.
const (
	fdParentChannel = 3
	fdReadyPipe     = 4
	fdNotifySocket  = 5
)

func runIntermediateStage() {
	ch1 := os.NewFile(fdParentChannel, "parent-channel")
	readyW := os.NewFile(fdReadyPipe, "ready-pipe")
	notifyFile := os.NewFile(fdNotifySocket, "notify-socket")

	var boot bootstrapPayload
	if err := utils.DecodeJSON(ch1, &boot); err != nil {
		logrus.WithError(err).Fatal("intermediate: decode bootstrap config")
	}
	cfg := boot.Config

	if err := system.ParentDeathSignal(unix.SIGKILL); err != nil {
		logrus.WithError(err).Warn("intermediate: set parent death signal")
	}

	if _, err := readyW.Write([]byte{0}); err != nil {
		logrus.WithError(err).Fatal("intermediate: signal readiness")
	}
	readyW.Close()

	if err := writeOomScoreAdj(cfg.Process.OomScoreAdj); err != nil {
		fatalToLauncher(ch1, err)
	}

	if cfg.Namespaces.Contains(configs.NEWUSER) {
		if err := requestIDMapping(ch1); err != nil {
			fatalToLauncher(ch1, err)
		}
	}

	if err := namespaces.JoinPaths(cfg.Namespaces); err != nil {
		fatalToLauncher(ch1, err)
	}

	if cfg.Hostname != "" {
		if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
			fatalToLauncher(ch1, err)
		}
	}
	if cfg.Domainname != "" {
		if err := unix.Setdomainname([]byte(cfg.Domainname)); err != nil {
			fatalToLauncher(ch1, err)
		}
	}

	initPid, err := forkInit(cfg, boot.ContainerRoot, notifyFile)
	if err != nil {
		fatalToLauncher(ch1, err)
	}

	logrus.WithField("container", cfg.ContainerID).WithField("initPid", initPid).Debug("S1: init ready, forwarding pid")

	if err := sendMsg(ch1, message{Type: msgChildReady, Pid: initPid}); err != nil {
		logrus.WithError(err).Error("intermediate: forward init pid")
		os.Exit(1)
	}
	os.Exit(0)
}

// writeOomScoreAdj sets this process's /proc/self/oom_score_adj early,
// in the first-fork child before the user-namespace id transition,
// grounded on original_source/src/process/fork.rs's fork_first Child
// branch. oom_score_adj is inherited across exec and across the second
// fork, so setting it here covers Init and the eventual payload too.
func writeOomScoreAdj(adj *int) error {
	if adj == nil {
		return nil
	}
	return os.WriteFile("/proc/self/oom_score_adj", []byte(strconv.Itoa(*adj)), 0o644)
}

// requestIDMapping implements the Intermediate's half of §4.5's
// handshake: become dumpable so the Launcher (a different, unrelated
// process from the new user namespace's perspective) is permitted to
// write to /proc/<pid>/{uid,gid}_map, ask for the write, wait for the
// ack, then restore non-dumpable.
func requestIDMapping(ch1 *os.File) error {
	if err := system.SetDumpable(true); err != nil {
		return err
	}
	defer system.SetDumpable(false)

	if err := sendMsg(ch1, message{Type: msgIdentifierMapping}); err != nil {
		return err
	}
	msg, err := recvMsgTimeout(ch1, waitForMapping)
	if err != nil {
		return err
	}
	if msg.Type == msgError {
		return errorFromMsg(msg)
	}
	if msg.Type != msgMappingAck {
		return unexpectedMsg(msg)
	}
	return nil
}

// forkInit performs the second clone: Init must land on pid 1 of a fresh
// pid namespace while the Intermediate survives to report its pid, which
// is why this is a second fork rather than a third namespace joined by
// the first clone (§4.1 "because the Init must reach pid 1 in a new pid
// namespace while its parent remains to report its pid to the caller").
func forkInit(cfg *configs.Config, containerRoot string, notifyFile *os.File) (int, error) {
	ch2Parent, ch2Child, err := utils.NewSockPair("init")
	if err != nil {
		return 0, err
	}
	defer ch2Parent.Close()

	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Env = append(os.Environ(), StageEnvVar+"="+stageInit)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.ExtraFiles = []*os.File{ch2Child, notifyFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: namespaces.PidCloneFlag(cfg.Namespaces),
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	ch2Child.Close()

	if err := utils.EncodeJSON(ch2Parent, bootstrapPayload{Config: cfg, ContainerRoot: containerRoot}); err != nil {
		killAndReap(cmd)
		return 0, err
	}

	msg, err := recvMsg(ch2Parent)
	if err != nil {
		killAndReap(cmd)
		return 0, err
	}
	switch msg.Type {
	case msgInitReady:
		return cmd.Process.Pid, nil
	case msgError:
		killAndReap(cmd)
		return 0, errorFromMsg(msg)
	default:
		killAndReap(cmd)
		return 0, unexpectedMsg(msg)
	}
}

func fatalToLauncher(ch1 *os.File, err error) {
	_ = sendMsg(ch1, message{Type: msgError, Error: err.Error()})
	logrus.WithError(err).Error("intermediate: fatal")
	os.Exit(1)
}
