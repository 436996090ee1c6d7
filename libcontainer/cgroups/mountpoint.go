package cgroups

import (
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/lcerr"
)

// FindMountpoint locates the host mountpoint backing the named cgroup-v1
// subsystem by reading /proc/self/mountinfo (§4.4: "locates the
// controller's hierarchy mount point by reading /proc/self/mountinfo for
// subsystem tags"). github.com/moby/sys/mountinfo replaces a hand-rolled
// parser: it already understands the optional-fields/separator quirks of
// the mountinfo format.
func FindMountpoint(subsystem string) (string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup"))
	if err != nil {
		return "", errors.Wrap(err, "read mountinfo")
	}
	for _, m := range mounts {
		for _, opt := range strings.Split(m.VFSOptions, ",") {
			if opt == subsystem {
				return m.Mountpoint, nil
			}
		}
	}
	return "", lcerr.NewErrorf(lcerr.CgroupUnavailable, "cgroup subsystem %q not mounted", subsystem)
}
