// Package lcerr defines the creation pipeline's eight-member error
// taxonomy as a leaf package so both libcontainer and its helper packages
// (utils, cgroups, rootfs) can tag errors without an import cycle.
package lcerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode is the eight-member error taxonomy of the creation pipeline's
// error handling design. Every error surfaced across a fork-stage boundary
// carries one of these, recoverable even after github.com/pkg/errors has
// wrapped it repeatedly, via Code().
type ErrorCode int

const (
	ConfigInvalid ErrorCode = iota
	SysCall
	CgroupUnavailable
	HookFailed
	HookTimeout
	StateConflict
	ProcfsCompromised
	Fatal
)

func (c ErrorCode) String() string {
	switch c {
	case ConfigInvalid:
		return "ConfigInvalid"
	case SysCall:
		return "SysCall"
	case CgroupUnavailable:
		return "CgroupUnavailable"
	case HookFailed:
		return "HookFailed"
	case HookTimeout:
		return "HookTimeout"
	case StateConflict:
		return "StateConflict"
	case ProcfsCompromised:
		return "ProcfsCompromised"
	case Fatal:
		return "Fatal"
	}
	return "Unknown"
}

// codedError is a typed error tagged with one ErrorCode. It is always
// constructed through NewError/NewErrorf so every call site participates
// in the taxonomy instead of returning a bare fmt.Errorf.
type codedError struct {
	code ErrorCode
	msg  string
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// NewError builds a taxonomy error with a static message.
func NewError(code ErrorCode, msg string) error {
	return &codedError{code: code, msg: msg}
}

// NewErrorf builds a taxonomy error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...)}
}

// WrapSysCall tags a syscall failure with its call site, per §7's SysCall
// class ("includes errno and call site").
func WrapSysCall(err error, call string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(&codedError{code: SysCall, msg: err.Error()}, "syscall %s", call)
}

// Code recovers the taxonomy code from err's cause chain (via
// github.com/pkg/errors), so a CLI-layer error-to-exit-code mapper does not
// need to string-match wrapped messages. Returns Fatal if no taxonomy error
// is found in the chain, since an un-coded error after commit is the
// conservative case (§7: "requires manual cleanup").
func Code(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if ce, ok := errors.Cause(err).(*codedError); ok {
		return ce.code
	}
	return Fatal
}
