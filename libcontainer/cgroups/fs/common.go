// Package fs implements the native cgroup-v1 controllers dispatched by
// libcontainer/cgroups.Manager. Each controller is a Subsystem grounded on
// the teacher's cgroup-write idiom (single atomic open-truncate-write per
// file) and on original_source/src/cgroups/v1/*.rs for the exact
// per-controller contract.
package fs

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/cgroups"
)

const cgroupProcs = "cgroup.procs"

// writeFile is the shared atomic-replace primitive every controller write
// goes through: open with O_TRUNC (creating the file if absent), single
// write, close. §4.4: "Each per-controller write is atomic-replace (open
// with truncate, single write)".
func writeFile(path, data string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	if _, err := f.WriteString(data); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return string(b), nil
}

func joinPid(cgroupPath string, pid int) error {
	return writeFile(cgroupPath+"/"+cgroupProcs, strconv.Itoa(pid))
}

func mkdirAll(path string) error {
	return errors.Wrapf(os.MkdirAll(path, 0o755), "mkdir %s", path)
}

// All returns every native controller, in an order where Cpuset — which
// has the ensure_not_empty precondition walk — runs before the others
// (§4.4: "their application order is not observable except for CpuSet
// preconditions").
func All() []cgroups.Subsystem {
	return []cgroups.Subsystem{
		&CpuSet{},
		&Devices{},
		&Pids{},
		&Memory{},
		&Hugetlb{},
		&NetCls{},
		&NetPrio{},
	}
}
