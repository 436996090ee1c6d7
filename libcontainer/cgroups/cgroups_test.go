package cgroups

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tsturzl/youki/libcontainer/configs"
)

type fakeSubsystem struct {
	name     Controller
	applied  []string
	mandated bool
}

func (f *fakeSubsystem) Name() Controller { return f.name }
func (f *fakeSubsystem) Mandated(r *configs.CgroupLimits) bool { return f.mandated }
func (f *fakeSubsystem) Apply(path string, r *configs.CgroupLimits, pid int) error {
	f.applied = append(f.applied, path)
	return os.MkdirAll(path, 0o755)
}

func TestManagerHasTracksRegisteredControllers(t *testing.T) {
	m := NewManager("c1", []Subsystem{&fakeSubsystem{name: Pids}, &fakeSubsystem{name: Memory}})
	if !m.Has(Pids) || !m.Has(Memory) {
		t.Fatal("expected Pids and Memory to be registered")
	}
	if m.Has(Devices) {
		t.Fatal("Devices was never registered")
	}
}

func TestManagerApplyDispatchesToEachSubsystem(t *testing.T) {
	root := t.TempDir()
	pids := &fakeSubsystem{name: Pids}
	mem := &fakeSubsystem{name: Memory}
	m := NewManager("mycontainer", []Subsystem{pids, mem})

	mountpoint := func(c Controller) (string, error) {
		return filepath.Join(root, DirName(c)), nil
	}

	if err := m.Apply(mountpoint, &configs.CgroupLimits{}, 1); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(pids.applied) != 1 || len(mem.applied) != 1 {
		t.Fatalf("expected each subsystem applied exactly once, got pids=%d mem=%d", len(pids.applied), len(mem.applied))
	}
	want := filepath.Join(root, "pids", "mycontainer")
	if pids.applied[0] != want {
		t.Fatalf("pids applied to %q, want %q", pids.applied[0], want)
	}
}

func TestManagerApplySkipsUnmandatedMissingMount(t *testing.T) {
	m := NewManager("c1", []Subsystem{&fakeSubsystem{name: Pids, mandated: false}})
	mountpoint := func(c Controller) (string, error) {
		return "", os.ErrNotExist
	}
	if err := m.Apply(mountpoint, &configs.CgroupLimits{}, 1); err != nil {
		t.Fatalf("expected a missing, unmandated mount to be skipped, got %v", err)
	}
}

func TestManagerApplyFailsMandatedMissingMount(t *testing.T) {
	m := NewManager("c1", []Subsystem{&fakeSubsystem{name: Pids, mandated: true}})
	mountpoint := func(c Controller) (string, error) {
		return "", os.ErrNotExist
	}
	if err := m.Apply(mountpoint, &configs.CgroupLimits{}, 1); err == nil {
		t.Fatal("expected a missing, mandated mount to fail")
	}
}

func TestManagerDestroyRemovesEachControllerDir(t *testing.T) {
	root := t.TempDir()
	pidsDir := filepath.Join(root, "pids", "c1")
	if err := os.MkdirAll(pidsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewManager("c1", []Subsystem{&fakeSubsystem{name: Pids}})
	mountpoint := func(c Controller) (string, error) {
		return filepath.Join(root, DirName(c)), nil
	}
	if err := m.Destroy(mountpoint); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(pidsDir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed", pidsDir)
	}
}

func TestDirNameKnownControllers(t *testing.T) {
	cases := map[Controller]string{
		Cpuset:  "cpuset",
		Devices: "devices",
		Pids:    "pids",
		Memory:  "memory",
		Hugetlb: "hugetlb",
		NetCls:  "net_cls",
		NetPrio: "net_prio",
	}
	for c, want := range cases {
		if got := DirName(c); got != want {
			t.Errorf("DirName(%d) = %q, want %q", c, got, want)
		}
	}
}
