package rootless

import (
	"os"
	"testing"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

func TestShouldUseRootlessEnvOverride(t *testing.T) {
	t.Setenv("YOUKI_USE_ROOTLESS", "true")
	if !ShouldUseRootless() {
		t.Fatal("YOUKI_USE_ROOTLESS=true should force rootless mode")
	}
}

func TestShouldUseRootlessByEuid(t *testing.T) {
	os.Unsetenv("YOUKI_USE_ROOTLESS")
	want := os.Geteuid() != 0
	if got := ShouldUseRootless(); got != want {
		t.Fatalf("ShouldUseRootless() = %v, want %v (euid %d)", got, want, os.Geteuid())
	}
}

func TestLookupMapBinariesSkippedForSingleMapping(t *testing.T) {
	cfg := &configs.Config{
		UIDMappings: []configs.IDMap{{ContainerID: 0, HostID: 1000, Size: 1}},
		GIDMappings: []configs.IDMap{{ContainerID: 0, HostID: 1000, Size: 1}},
	}
	bin, err := LookupMapBinaries(cfg)
	if err != nil {
		t.Fatalf("LookupMapBinaries: %v", err)
	}
	if bin != nil {
		t.Fatalf("expected nil Binaries for a single mapping, got %+v", bin)
	}
}

func TestValidateSkippedWhenNotRootless(t *testing.T) {
	cfg := &configs.Config{Rootless: false}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate on a non-rootless config should be a no-op, got %v", err)
	}
}

func TestValidateRequiresUserNamespace(t *testing.T) {
	cfg := &configs.Config{
		Rootless:    true,
		UIDMappings: []configs.IDMap{{Size: 1}},
		GIDMappings: []configs.IDMap{{Size: 1}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected rootless without a user namespace to be rejected")
	}
	if lcerr.Code(err) != lcerr.ConfigInvalid {
		t.Fatalf("Code() = %v, want ConfigInvalid", lcerr.Code(err))
	}
}

func TestValidateRequiresMappings(t *testing.T) {
	cfg := &configs.Config{
		Rootless:   true,
		Namespaces: configs.Namespaces{{Type: configs.NEWUSER}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected rootless without mappings to be rejected")
	}
}

func TestValidateRequiresBindDevices(t *testing.T) {
	cfg := &configs.Config{
		Rootless:    true,
		Namespaces:  configs.Namespaces{{Type: configs.NEWUSER}},
		UIDMappings: []configs.IDMap{{Size: 1}},
		GIDMappings: []configs.IDMap{{Size: 1}},
	}
	cfg.Rootfs.BindDevices = false
	if err := Validate(cfg); err == nil {
		t.Fatal("expected rootless without BindDevices to be rejected")
	}
}

func TestValidatePassesCompleteRootlessConfig(t *testing.T) {
	cfg := &configs.Config{
		Rootless:    true,
		Namespaces:  configs.Namespaces{{Type: configs.NEWUSER}},
		UIDMappings: []configs.IDMap{{Size: 1}},
		GIDMappings: []configs.IDMap{{Size: 1}},
	}
	cfg.Rootfs.BindDevices = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
