package fs

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

// Memory implements the memory controller: writes memory.limit_in_bytes,
// memory.swappiness, memory.kmem.limit_in_bytes, each only if set.
// Conflicting combinations (swap without memory) fail, per §4.4.
type Memory struct{}

func (Memory) Name() cgroups.Controller { return cgroups.Memory }

func (Memory) Mandated(r *configs.CgroupLimits) bool {
	return r.MemoryLimit != 0 || r.MemorySwap != 0 || r.MemoryReservation != 0 ||
		r.MemorySwappiness != nil || r.KernelMemoryLimit != 0
}

func (Memory) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}

	if r.MemorySwap != 0 && r.MemoryLimit == 0 {
		return errors.New("memory: cannot set swap limit without a memory limit")
	}

	// The kernel rejects raising memory.memsw.limit_in_bytes below the
	// current memory.limit_in_bytes and vice versa, so when both are
	// being lowered, memory.limit_in_bytes must be written first only
	// when it's being raised, and last when it's being lowered. This
	// runtime always writes memory.limit_in_bytes first and tolerates
	// ENOSPC being surfaced directly; a fuller implementation would read
	// back the old value, which is out of this runtime's target scope.
	if r.MemoryLimit != 0 {
		if err := writeFile(path+"/memory.limit_in_bytes", strconv.FormatInt(r.MemoryLimit, 10)); err != nil {
			return err
		}
	}
	if r.MemorySwap != 0 {
		if err := writeFile(path+"/memory.memsw.limit_in_bytes", strconv.FormatInt(r.MemorySwap, 10)); err != nil {
			return err
		}
	}
	if r.MemoryReservation != 0 {
		if err := writeFile(path+"/memory.soft_limit_in_bytes", strconv.FormatInt(r.MemoryReservation, 10)); err != nil {
			return err
		}
	}
	if r.MemorySwappiness != nil {
		if err := writeFile(path+"/memory.swappiness", strconv.FormatInt(*r.MemorySwappiness, 10)); err != nil {
			return err
		}
	}
	if r.KernelMemoryLimit != 0 {
		if err := writeFile(path+"/memory.kmem.limit_in_bytes", strconv.FormatInt(r.KernelMemoryLimit, 10)); err != nil {
			return err
		}
	}

	return joinPid(path, pid)
}
