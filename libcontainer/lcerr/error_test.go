package lcerr

import (
	"testing"

	"github.com/pkg/errors"
)

func TestCodeRecoversThroughWrapping(t *testing.T) {
	base := NewError(CgroupUnavailable, "no cpuset controller")
	wrapped := errors.Wrap(errors.Wrap(base, "apply limits"), "create container")

	if got := Code(wrapped); got != CgroupUnavailable {
		t.Fatalf("Code() = %v, want %v", got, CgroupUnavailable)
	}
}

func TestCodeDefaultsToFatalForUncodedError(t *testing.T) {
	err := errors.New("something went wrong")
	if got := Code(err); got != Fatal {
		t.Fatalf("Code() = %v, want %v", got, Fatal)
	}
}

func TestCodeNilIsZeroValue(t *testing.T) {
	if got := Code(nil); got != ConfigInvalid {
		t.Fatalf("Code(nil) = %v, want zero value %v", got, ConfigInvalid)
	}
}

func TestWrapSysCallNilPassthrough(t *testing.T) {
	if err := WrapSysCall(nil, "mount"); err != nil {
		t.Fatalf("WrapSysCall(nil, ...) = %v, want nil", err)
	}
}

func TestWrapSysCallTagsSysCall(t *testing.T) {
	err := WrapSysCall(errors.New("permission denied"), "mount /proc")
	if got := Code(err); got != SysCall {
		t.Fatalf("Code() = %v, want %v", got, SysCall)
	}
	if err.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestErrorCodeString(t *testing.T) {
	cases := map[ErrorCode]string{
		ConfigInvalid:     "ConfigInvalid",
		SysCall:           "SysCall",
		CgroupUnavailable: "CgroupUnavailable",
		HookFailed:        "HookFailed",
		HookTimeout:       "HookTimeout",
		StateConflict:     "StateConflict",
		ProcfsCompromised: "ProcfsCompromised",
		Fatal:             "Fatal",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", code, got, want)
		}
	}
	if got := ErrorCode(99).String(); got != "Unknown" {
		t.Errorf("unknown code String() = %q, want %q", got, "Unknown")
	}
}
