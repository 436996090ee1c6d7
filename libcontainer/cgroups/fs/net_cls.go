package fs

import (
	"strconv"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

// NetCls implements the net_cls controller: writes net_cls.classid, per
// §4.4.
type NetCls struct{}

func (NetCls) Name() cgroups.Controller { return cgroups.NetCls }

func (NetCls) Mandated(r *configs.CgroupLimits) bool {
	return r.NetClsClassid != 0
}

func (NetCls) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}
	if r.NetClsClassid != 0 {
		if err := writeFile(path+"/net_cls.classid", strconv.FormatUint(uint64(r.NetClsClassid), 10)); err != nil {
			return err
		}
	}
	return joinPid(path, pid)
}
