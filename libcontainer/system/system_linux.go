// Package system wraps the handful of raw Linux syscalls the fork
// choreography needs directly, the way every repo in the corpus keeps a
// thin "system" package between libcontainer and golang.org/x/sys/unix
// rather than calling unix.* inline everywhere.
package system

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ParentDeathSignal arranges for the calling process (the Intermediate;
// Init does not call it) to receive sig if its parent dies before it does. Set immediately
// after clone, per SPEC_FULL.md's supplemented-features note 5.
func ParentDeathSignal(sig unix.Signal) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(sig), 0, 0, 0)
}

// SetDumpable toggles PR_SET_DUMPABLE, used around the uid/gid map write
// window (§4.5: "the Intermediate must be dumpable during the write
// window and restore non-dumpable afterwards").
func SetDumpable(dumpable bool) error {
	v := uintptr(0)
	if dumpable {
		v = 1
	}
	return unix.Prctl(unix.PR_SET_DUMPABLE, v, 0, 0, 0)
}

// Setctty makes the terminal on fd 0 the calling process's controlling
// terminal (used by Init's console setup once the pty slave is on stdio).
func Setctty() error {
	return unix.IoctlSetInt(0, unix.TIOCSCTTY, 0)
}

// Exec replaces the calling process's image, the terminal step of Init's
// S2 stage. It never returns on success.
func Exec(cmd string, args []string, env []string) error {
	for {
		err := unix.Exec(cmd, args, env)
		if err != unix.EINTR {
			return err
		}
	}
}

// GetParentNs resolves /proc/<pid>/ns/<kind> for joining an existing
// namespace by path (§4.1 S1: "Joins any namespaces specified by path via
// setns").
func GetParentNs(pid int, kind string) string {
	return "/proc/" + strconv.Itoa(pid) + "/ns/" + kind
}

// SetRlimit applies one POSIX resource limit via setrlimit(2). resource is
// one of the unix.RLIMIT_* constants (stored as plain int in
// configs.Rlimit so that package doesn't need to import golang.org/x/sys).
func SetRlimit(resource int, soft, hard uint64) error {
	return unix.Setrlimit(resource, &unix.Rlimit{Cur: soft, Max: hard})
}

// RunningInUserNS reports whether the calling process is itself confined
// to a non-initial user namespace (distinct from "the container requests
// a new user namespace" — this is about the Launcher's own context).
// rootless.ShouldUseRootless does not consult it.
func RunningInUserNS() bool {
	uidMap, err := os.ReadFile("/proc/self/uid_map")
	if err != nil {
		return false
	}
	// The initial (host) user namespace's identity map is exactly
	// "0 0 4294967295". Any other content means we're confined.
	return string(uidMap) != "         0          0 4294967295\n"
}
