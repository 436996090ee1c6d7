// Package rootless implements the rootless-mode detection and the
// newuidmap/newgidmap binary resolution that §4.5 and the SUPPLEMENTED
// FEATURES section of SPEC_FULL.md describe: "effective uid ≠ 0, or
// YOUKI_USE_ROOTLESS=true, triggers rootless mode", and the multi-map
// binaries are "resolved via PATH at plan time" so a missing helper fails
// before any namespace is created, grounded on
// original_source/src/rootless.rs's should_use_rootless/lookup_map_binaries.
package rootless

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

// ShouldUseRootless reports whether this invocation should run in
// rootless mode: either the environment forces it, or the calling user
// isn't uid 0.
func ShouldUseRootless() bool {
	if v := os.Getenv("YOUKI_USE_ROOTLESS"); v == "true" {
		return true
	}
	return os.Geteuid() != 0
}

// Binaries holds the resolved paths of the newuidmap/newgidmap helpers
// needed when a plan declares more than one uid or gid mapping.
type Binaries struct {
	NewUidmap string
	NewGidmap string
}

// LookupMapBinaries resolves newuidmap/newgidmap via PATH when the plan's
// mappings require them (§4.5: "their absence is a hard error"). Called
// at Runtime Plan construction time, before the Launcher's clone, so a
// misconfigured PATH fails fast rather than mid-choreography.
func LookupMapBinaries(cfg *configs.Config) (*Binaries, error) {
	if !cfg.RequiresMultiMapBinaries() {
		return nil, nil
	}
	uidmap, err := exec.LookPath("newuidmap")
	if err != nil {
		return nil, lcerr.NewErrorf(lcerr.ConfigInvalid, "newuidmap not found in PATH, required for multiple uid mappings")
	}
	gidmap, err := exec.LookPath("newgidmap")
	if err != nil {
		return nil, lcerr.NewErrorf(lcerr.ConfigInvalid, "newgidmap not found in PATH, required for multiple gid mappings")
	}
	return &Binaries{NewUidmap: uidmap, NewGidmap: gidmap}, nil
}

// Validate rejects configurations the rootless path cannot support: a
// rootless container must declare a user namespace and at least one
// mapping, since there is no other way to appear as a privileged uid
// inside the container (original_source/src/rootless.rs validate()).
func Validate(cfg *configs.Config) error {
	if !cfg.Rootless {
		return nil
	}
	if !cfg.Namespaces.Contains(configs.NEWUSER) {
		return lcerr.NewError(lcerr.ConfigInvalid, "rootless containers require a user namespace")
	}
	if len(cfg.UIDMappings) == 0 || len(cfg.GIDMappings) == 0 {
		return lcerr.NewError(lcerr.ConfigInvalid, "rootless containers require uid and gid mappings")
	}
	if !cfg.Rootfs.BindDevices {
		return errors.New("rootless containers must bind-mount devices, not mknod them")
	}
	return nil
}
