// Package namespaces translates a Runtime Plan's namespace set into the
// two things the fork choreography actually needs: the clone(2) flag
// union for the S0 bootstrap, and the setns(2) join sequence for S1.
package namespaces

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

func cloneFlag(t configs.NamespaceType) uintptr {
	switch t {
	case configs.NEWNS:
		return unix.CLONE_NEWNS
	case configs.NEWUTS:
		return unix.CLONE_NEWUTS
	case configs.NEWIPC:
		return unix.CLONE_NEWIPC
	case configs.NEWUSER:
		return unix.CLONE_NEWUSER
	case configs.NEWPID:
		return unix.CLONE_NEWPID
	case configs.NEWNET:
		return unix.CLONE_NEWNET
	case configs.NEWCGROUP:
		return unix.CLONE_NEWCGROUP
	}
	return 0
}

// BootstrapFlags computes the clone(2) flag union for every namespace the
// plan creates fresh, excluding NEWPID: pid namespace creation is
// deferred to the S1->S2 fork so Init, not Intermediate, lands on pid 1
// (§4.1: "Init must reach pid 1 in a new pid namespace while its parent
// remains to report its pid").
func BootstrapFlags(ns configs.Namespaces) uintptr {
	var flags uintptr
	for _, n := range ns {
		if n.NewNS() && n.Type != configs.NEWPID {
			flags |= cloneFlag(n.Type)
		}
	}
	return flags
}

// PidCloneFlag returns CLONE_NEWPID if the plan creates a fresh pid
// namespace, or 0 if it doesn't request one (or only joins one by path,
// which setns handles instead).
func PidCloneFlag(ns configs.Namespaces) uintptr {
	for _, n := range ns {
		if n.Type == configs.NEWPID && n.NewNS() {
			return cloneFlag(configs.NEWPID)
		}
	}
	return 0
}

// JoinPaths runs setns against every namespace the plan joins by path
// (§4.1 S1: "joins any namespaces specified by path via setns"). Create
// requests (Path == "") are left to the clone flags and are not touched
// here.
func JoinPaths(ns configs.Namespaces) error {
	for _, n := range ns {
		if n.Path == "" {
			continue
		}
		f, err := os.Open(n.Path)
		if err != nil {
			return lcerr.WrapSysCall(err, "open namespace path "+n.Path)
		}
		err = unix.Setns(int(f.Fd()), int(cloneFlag(n.Type)))
		f.Close()
		if err != nil {
			return lcerr.WrapSysCall(err, "setns "+n.Path)
		}
	}
	return nil
}
