package fs

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

const (
	cpusetCpusFile = "cpuset.cpus"
	cpusetMemsFile = "cpuset.mems"
)

// CpuSet implements the cpuset controller contract of §4.4: before pid
// insertion, walk from the subsystem root down to the target cgroup and,
// for any intermediate directory whose cpus/mems value is empty, copy the
// parent's value — without this, joining the cgroup returns ENOSPC.
type CpuSet struct{}

func (CpuSet) Name() cgroups.Controller { return cgroups.Cpuset }

func (CpuSet) Mandated(r *configs.CgroupLimits) bool {
	return r.CpusetCpus != "" || r.CpusetMems != ""
}

func (c CpuSet) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}

	mountpoint, err := cgroups.FindMountpoint(cgroups.DirName(cgroups.Cpuset))
	if err != nil {
		if c.Mandated(r) {
			return err
		}
	} else {
		if err := ensureNotEmpty(mountpoint, path, cpusetCpusFile); err != nil {
			return err
		}
		if err := ensureNotEmpty(mountpoint, path, cpusetMemsFile); err != nil {
			return err
		}
	}

	if r.CpusetCpus != "" {
		if err := writeFile(filepath.Join(path, cpusetCpusFile), r.CpusetCpus); err != nil {
			return err
		}
	}
	if r.CpusetMems != "" {
		if err := writeFile(filepath.Join(path, cpusetMemsFile), r.CpusetMems); err != nil {
			return err
		}
	}

	return joinPid(path, pid)
}

// ensureNotEmpty walks from mountpoint down to target one path component
// at a time, copying interfaceFile's value from the parent into any child
// directory where it's still empty. Fails if the subsystem root itself is
// empty (§4.4 parenthetical: "Fails if the subsystem root itself has an
// empty value").
func ensureNotEmpty(mountpoint, target, interfaceFile string) error {
	rel, err := filepath.Rel(mountpoint, target)
	if err != nil {
		return errors.Wrapf(err, "relativize %s to %s", target, mountpoint)
	}
	if rel == "." {
		return nil
	}

	current := mountpoint
	for _, component := range strings.Split(rel, string(filepath.Separator)) {
		parentValue, err := readFile(filepath.Join(current, interfaceFile))
		if err != nil {
			return err
		}
		if strings.TrimSpace(parentValue) == "" {
			return errors.Errorf("cpuset parent value %s is empty", filepath.Join(current, interfaceFile))
		}

		current = filepath.Join(current, component)
		if err := mkdirAll(current); err != nil {
			return err
		}
		childPath := filepath.Join(current, interfaceFile)
		childValue, err := readFile(childPath)
		if err != nil {
			// Child directory may not have the file yet if this is the
			// leaf being created for the first time by mkdirAll above;
			// treat as empty and fall through to the write below.
			childValue = ""
		}
		if strings.TrimSpace(childValue) == "" {
			if err := writeFile(childPath, parentValue); err != nil {
				return err
			}
		}
	}
	return nil
}
