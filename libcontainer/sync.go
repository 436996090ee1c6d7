package libcontainer

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/lcerr"
	"github.com/tsturzl/youki/libcontainer/utils"
)

// Bounded suspension points from §5's table.
const (
	waitForChild   = 5 * time.Second
	waitForMapping = 3 * time.Second
)

// msgType is the tag of the Launcher<->Intermediate wire protocol, §6:
// "{IdentifierMapping, MappingAck, ChildReady(pid), InitReady, Error(msg)}".
type msgType string

const (
	msgIdentifierMapping msgType = "IdentifierMapping"
	msgMappingAck        msgType = "MappingAck"
	msgChildReady        msgType = "ChildReady"
	msgInitReady         msgType = "InitReady"
	msgError             msgType = "Error"
)

// message is the single wire shape for every tagged message exchanged over
// the parent channel socketpair (§9: "a blocking message channel backed by
// a socketpair for tagged messages").
type message struct {
	Type  msgType
	Pid   int    `json:",omitempty"`
	Error string `json:",omitempty"`
}

func sendMsg(ch *os.File, m message) error {
	return errors.Wrap(utils.EncodeJSON(ch, m), "send sync message")
}

func recvMsg(ch *os.File) (message, error) {
	var m message
	err := utils.DecodeJSON(ch, &m)
	return m, errors.Wrap(err, "receive sync message")
}

func errorFromMsg(m message) error {
	return lcerr.NewError(lcerr.Fatal, m.Error)
}

func unexpectedMsg(m message) error {
	return lcerr.NewErrorf(lcerr.Fatal, "unexpected sync message %q", m.Type)
}

// recvMsgTimeout bounds a read on ch to d, per §5's suspension-point
// table (WAIT_FOR_CHILD / WAIT_FOR_MAPPING). A goroutine owns the actual
// blocking read so a timed-out caller can still proceed without leaking:
// the goroutine's result is simply dropped if nobody ever reads it.
func recvMsgTimeout(ch *os.File, d time.Duration) (message, error) {
	type result struct {
		m   message
		err error
	}
	out := make(chan result, 1)
	go func() {
		m, err := recvMsg(ch)
		out <- result{m, err}
	}()
	select {
	case r := <-out:
		return r.m, r.err
	case <-time.After(d):
		return message{}, lcerr.NewErrorf(lcerr.Fatal, "timed out after %s waiting for sync message", d)
	}
}
