package fs

import (
	"strconv"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

// Hugetlb implements the hugetlb controller: for each (page_size, limit),
// writes hugetlb.<size>.limit_in_bytes. Unsupported sizes fail by virtue
// of the write itself failing (no such interface file), per §4.4.
type Hugetlb struct{}

func (Hugetlb) Name() cgroups.Controller { return cgroups.Hugetlb }

func (Hugetlb) Mandated(r *configs.CgroupLimits) bool {
	return len(r.HugepageLimits) > 0
}

func (Hugetlb) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}
	for _, hp := range r.HugepageLimits {
		file := path + "/hugetlb." + hp.Pagesize + ".limit_in_bytes"
		if err := writeFile(file, strconv.FormatUint(hp.Limit, 10)); err != nil {
			return err
		}
	}
	return joinPid(path, pid)
}
