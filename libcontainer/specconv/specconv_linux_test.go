package specconv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/tsturzl/youki/libcontainer/configs"
)

func TestToPropagationDefaultsEmptyToSlave(t *testing.T) {
	got, err := toPropagation("")
	if err != nil {
		t.Fatalf("toPropagation(\"\"): %v", err)
	}
	if got != configs.PropagationSlave {
		t.Fatalf("got %v, want PropagationSlave", got)
	}
}

func TestToPropagationKnownValues(t *testing.T) {
	cases := map[string]configs.RootPropagation{
		"slave":      configs.PropagationSlave,
		"shared":     configs.PropagationShared,
		"private":    configs.PropagationPrivate,
		"unbindable": configs.PropagationPrivate,
	}
	for in, want := range cases {
		got, err := toPropagation(in)
		if err != nil {
			t.Fatalf("toPropagation(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("toPropagation(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToPropagationRejectsUnknown(t *testing.T) {
	if _, err := toPropagation("bogus"); err == nil {
		t.Fatal("expected an unrecognized propagation string to be rejected")
	}
}

func TestToNamespaceTypeRejectsUnknown(t *testing.T) {
	if _, err := toNamespaceType("bogus"); err == nil {
		t.Fatal("expected an unrecognized namespace type to be rejected")
	}
}

func TestToNamespacesMapsAllKnownTypes(t *testing.T) {
	in := []specs.LinuxNamespace{
		{Type: specs.PIDNamespace},
		{Type: specs.NetworkNamespace, Path: "/var/run/netns/x"},
		{Type: specs.MountNamespace},
		{Type: specs.UTSNamespace},
		{Type: specs.IPCNamespace},
		{Type: specs.UserNamespace},
		{Type: specs.CgroupNamespace},
	}
	out, err := toNamespaces(in)
	if err != nil {
		t.Fatalf("toNamespaces: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d namespaces, want %d", len(out), len(in))
	}
	if out[1].Path != "/var/run/netns/x" {
		t.Fatalf("namespace path not preserved: %+v", out[1])
	}
}

func TestToRlimitUnknownType(t *testing.T) {
	if _, err := toRlimit(specs.POSIXRlimit{Type: "RLIMIT_BOGUS", Hard: 1, Soft: 1}); err == nil {
		t.Fatal("expected an unknown rlimit type to be rejected")
	}
}

func TestToRlimitKnownType(t *testing.T) {
	r, err := toRlimit(specs.POSIXRlimit{Type: "RLIMIT_NOFILE", Hard: 1024, Soft: 512})
	if err != nil {
		t.Fatalf("toRlimit: %v", err)
	}
	if r.Hard != 1024 || r.Soft != 512 {
		t.Fatalf("got %+v", r)
	}
}

func TestToCgroupLimitsMapsResources(t *testing.T) {
	shares := uint64(512)
	limit := int64(1 << 20)
	r := &specs.LinuxResources{
		CPU:    &specs.LinuxCPU{Shares: &shares},
		Memory: &specs.LinuxMemory{Limit: &limit},
	}
	got := toCgroupLimits(r)
	if got.CpuShares != shares {
		t.Errorf("CpuShares = %d, want %d", got.CpuShares, shares)
	}
	if got.MemoryLimit != limit {
		t.Errorf("MemoryLimit = %d, want %d", got.MemoryLimit, limit)
	}
}

func TestToCgroupLimitsNilResources(t *testing.T) {
	got := toCgroupLimits(nil)
	if got.CpuShares != 0 {
		t.Fatalf("expected zero-value limits for nil resources, got %+v", got)
	}
}

func TestLoadSpecMissingFile(t *testing.T) {
	if _, err := LoadSpec(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected a missing config.json to error")
	}
}

func TestLoadSpecAndToConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	shares := uint64(256)
	spec := specs.Spec{
		Version:  "1.0.2",
		Hostname: "test-host",
		Root:     &specs.Root{Path: "rootfs"},
		Process: &specs.Process{
			Args: []string{"/bin/sh"},
			Cwd:  "/",
			User: specs.User{UID: 0, GID: 0},
		},
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.MountNamespace},
			},
			CgroupsPath: "/test/cg",
			Resources:   &specs.LinuxResources{CPU: &specs.LinuxCPU{Shares: &shares}},
		},
	}

	f, err := os.Create(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(&spec); err != nil {
		t.Fatal(err)
	}
	f.Close()

	loaded, err := LoadSpec(cfgPath)
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}

	cfg, err := ToConfig(loaded, "c1", dir, filepath.Join(dir, "rootfs"))
	if err != nil {
		t.Fatalf("ToConfig: %v", err)
	}

	if cfg.ContainerID != "c1" || cfg.Bundle != dir {
		t.Fatalf("unexpected container identity: %+v", cfg)
	}
	if cfg.Hostname != "test-host" {
		t.Fatalf("hostname not propagated: %q", cfg.Hostname)
	}
	if len(cfg.Namespaces) != 2 {
		t.Fatalf("namespaces = %+v, want 2 entries", cfg.Namespaces)
	}
	if cfg.Cgroup.Path != "/test/cg" {
		t.Fatalf("cgroup path = %q, want /test/cg", cfg.Cgroup.Path)
	}
	if cfg.Cgroup.Resources.CpuShares != shares {
		t.Fatalf("cpu shares = %d, want %d", cfg.Cgroup.Resources.CpuShares, shares)
	}
	if cfg.Process.Args[0] != "/bin/sh" {
		t.Fatalf("process args not propagated: %+v", cfg.Process.Args)
	}
}

func TestToConfigRejectsMissingLinuxSection(t *testing.T) {
	spec := &specs.Spec{Process: &specs.Process{Args: []string{"/bin/sh"}}}
	if _, err := ToConfig(spec, "c1", "/bundle", "/bundle/rootfs"); err == nil {
		t.Fatal("expected a config.json with no linux section to be rejected")
	}
}

func TestToConfigRejectsMissingProcess(t *testing.T) {
	spec := &specs.Spec{Linux: &specs.Linux{}}
	if _, err := ToConfig(spec, "c1", "/bundle", "/bundle/rootfs"); err == nil {
		t.Fatal("expected a config.json with no process section to be rejected")
	}
}
