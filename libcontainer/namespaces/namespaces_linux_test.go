package namespaces

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/configs"
)

func TestBootstrapFlagsExcludesPidAndJoins(t *testing.T) {
	ns := configs.Namespaces{
		{Type: configs.NEWNS},
		{Type: configs.NEWUTS},
		{Type: configs.NEWPID},               // excluded: deferred to S1->S2
		{Type: configs.NEWNET, Path: "/proc/1/ns/net"}, // excluded: a join, not a create
	}
	got := BootstrapFlags(ns)
	want := uintptr(unix.CLONE_NEWNS | unix.CLONE_NEWUTS)
	if got != want {
		t.Fatalf("BootstrapFlags = %#x, want %#x", got, want)
	}
}

func TestPidCloneFlagOnlyForFreshPidNamespace(t *testing.T) {
	if got := PidCloneFlag(configs.Namespaces{{Type: configs.NEWPID, Path: "/proc/1/ns/pid"}}); got != 0 {
		t.Fatalf("PidCloneFlag for a joined pid namespace = %#x, want 0", got)
	}
	got := PidCloneFlag(configs.Namespaces{{Type: configs.NEWPID}})
	if got != uintptr(unix.CLONE_NEWPID) {
		t.Fatalf("PidCloneFlag = %#x, want CLONE_NEWPID", got)
	}
}

func TestPidCloneFlagAbsentWhenNotRequested(t *testing.T) {
	if got := PidCloneFlag(configs.Namespaces{{Type: configs.NEWNS}}); got != 0 {
		t.Fatalf("PidCloneFlag = %#x, want 0", got)
	}
}

func TestJoinPathsSkipsCreateRequests(t *testing.T) {
	ns := configs.Namespaces{{Type: configs.NEWNS}}
	if err := JoinPaths(ns); err != nil {
		t.Fatalf("JoinPaths with no path entries should be a no-op, got %v", err)
	}
}

func TestJoinPathsFailsOnMissingPath(t *testing.T) {
	ns := configs.Namespaces{{Type: configs.NEWNET, Path: "/no/such/namespace/path"}}
	if err := JoinPaths(ns); err == nil {
		t.Fatal("expected a missing namespace path to fail")
	}
}
