package fs

import (
	"strconv"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

const pidsMaxFile = "pids.max"

// Pids implements the pids controller: writes pids.max, with -1 meaning
// "max" per §4.4.
type Pids struct{}

func (Pids) Name() cgroups.Controller { return cgroups.Pids }

func (Pids) Mandated(r *configs.CgroupLimits) bool {
	return r.PidsLimit != 0
}

func (Pids) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}
	if r.PidsLimit != 0 {
		v := "max"
		if r.PidsLimit > 0 {
			v = strconv.FormatInt(r.PidsLimit, 10)
		}
		if err := writeFile(path+"/"+pidsMaxFile, v); err != nil {
			return err
		}
	}
	return joinPid(path, pid)
}
