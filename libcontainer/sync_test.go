package libcontainer

import (
	"testing"
	"time"

	"github.com/tsturzl/youki/libcontainer/lcerr"
	"github.com/tsturzl/youki/libcontainer/utils"
)

func TestSendRecvMsgRoundTrip(t *testing.T) {
	a, b, err := utils.NewSockPair("test")
	if err != nil {
		t.Fatalf("NewSockPair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	if err := sendMsg(a, message{Type: msgChildReady, Pid: 42}); err != nil {
		t.Fatalf("sendMsg: %v", err)
	}
	got, err := recvMsg(b)
	if err != nil {
		t.Fatalf("recvMsg: %v", err)
	}
	if got.Type != msgChildReady || got.Pid != 42 {
		t.Fatalf("got %+v, want Type=%s Pid=42", got, msgChildReady)
	}
}

func TestRecvMsgTimeoutExpires(t *testing.T) {
	_, b, err := utils.NewSockPair("test")
	if err != nil {
		t.Fatalf("NewSockPair: %v", err)
	}
	defer b.Close()

	start := time.Now()
	_, err = recvMsgTimeout(b, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout when nothing is ever sent")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("returned after %s, wanted at least the 50ms bound", elapsed)
	}
	if lcerr.Code(err) != lcerr.Fatal {
		t.Fatalf("Code() = %v, want Fatal", lcerr.Code(err))
	}
}

func TestRecvMsgTimeoutSucceedsBeforeDeadline(t *testing.T) {
	a, b, err := utils.NewSockPair("test")
	if err != nil {
		t.Fatalf("NewSockPair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	if err := sendMsg(a, message{Type: msgMappingAck}); err != nil {
		t.Fatalf("sendMsg: %v", err)
	}
	got, err := recvMsgTimeout(b, waitForMapping)
	if err != nil {
		t.Fatalf("recvMsgTimeout: %v", err)
	}
	if got.Type != msgMappingAck {
		t.Fatalf("got %+v, want Type=%s", got, msgMappingAck)
	}
}

func TestErrorFromMsgCarriesMessage(t *testing.T) {
	err := errorFromMsg(message{Type: msgError, Error: "boom"})
	if err.Error() == "" {
		t.Fatal("expected a non-empty error")
	}
	if lcerr.Code(err) != lcerr.Fatal {
		t.Fatalf("Code() = %v, want Fatal", lcerr.Code(err))
	}
}

func TestUnexpectedMsg(t *testing.T) {
	err := unexpectedMsg(message{Type: msgChildReady})
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
}
