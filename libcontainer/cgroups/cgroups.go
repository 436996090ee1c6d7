// Package cgroups defines the cgroup-v1 manager contract: a closed variant
// set of controllers dispatched by tag rather than by interface
// polymorphism (§9: "tagged dispatch over a fixed enumeration").
package cgroups

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/willf/bitset"

	"github.com/tsturzl/youki/libcontainer/configs"
)

// Controller names the seven native v1 controllers this runtime dispatches
// to. The ordinal values double as bit positions in the manager's active
// set (see Manager.active).
type Controller int

const (
	Cpuset Controller = iota
	Devices
	Pids
	Memory
	Hugetlb
	NetCls
	NetPrio
	numControllers
)

func (c Controller) dirName() string {
	switch c {
	case Cpuset:
		return "cpuset"
	case Devices:
		return "devices"
	case Pids:
		return "pids"
	case Memory:
		return "memory"
	case Hugetlb:
		return "hugetlb"
	case NetCls:
		return "net_cls"
	case NetPrio:
		return "net_prio"
	}
	return "unknown"
}

// Subsystem is the per-controller apply contract: locate the controller's
// mount, create the cgroup directory, write its limits, and report
// whether the controller mandates a write (so a missing mount can be a
// warning rather than an error when nothing was asked of it).
type Subsystem interface {
	Name() Controller
	// Mandated reports whether r asks this controller for anything; if
	// false and the controller's hierarchy isn't mounted, that's a
	// skip-with-warning rather than CgroupUnavailable (§4.4).
	Mandated(r *configs.CgroupLimits) bool
	// Apply writes this controller's limits under path (the controller's
	// mountpoint joined with the cgroup's relative path) and finally adds
	// pid to cgroup.procs.
	Apply(path string, r *configs.CgroupLimits, pid int) error
}

// Manager drives every registered Subsystem against one cgroup plan. The
// set of subsystems actually wired for this run is tracked in `active`, a
// bitset indexed by Controller — the mechanical form of the "fixed
// enumeration" dispatch §9 describes.
type Manager struct {
	relPath    string
	subsystems []Subsystem
	active     *bitset.BitSet
}

// NewManager builds a Manager over the given relative cgroup path, with
// exactly the subsystems the caller passes in.
func NewManager(relPath string, subsystems []Subsystem) *Manager {
	active := bitset.New(uint(numControllers))
	for _, s := range subsystems {
		active.Set(uint(s.Name()))
	}
	return &Manager{relPath: relPath, subsystems: subsystems, active: active}
}

// Has reports whether controller c is registered on this manager.
func (m *Manager) Has(c Controller) bool {
	return m.active.Test(uint(c))
}

// Apply runs every registered subsystem's Apply against r, in the order
// Subsystems were registered. The cpuset controller must be registered
// first by the caller when CpusetCpus/CpusetMems are both non-empty,
// since cpuset's ensure-not-empty walk has no interaction with the other
// controllers but must itself complete before cgroup.procs is written for
// cpuset — callers needing a specific order control it via the slice
// passed to NewManager, not via logic in Apply (§4.4: "their application
// order is not observable except for CpuSet preconditions").
func (m *Manager) Apply(mountpoint func(Controller) (string, error), r *configs.CgroupLimits, pid int) error {
	for _, s := range m.subsystems {
		mp, err := mountpoint(s.Name())
		if err != nil {
			if !s.Mandated(r) {
				// missing controller, nothing asked of it: warn only
				logrus.WithError(err).Warnf("cgroup controller %s unavailable, skipping", s.Name().dirName())
				continue
			}
			return err
		}
		full := mp + "/" + m.relPath
		if err := s.Apply(full, r, pid); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the manager's relative cgroup path (the portion under each
// controller's hierarchy root).
func (m *Manager) Path() string { return m.relPath }

// Subsystems returns the registered controllers, for callers (e.g.
// delete) that need to remove every controller's directory.
func (m *Manager) Subsystems() []Subsystem { return m.subsystems }

// DirName exposes the controller's subsystem directory name (e.g.
// "cpuset") for mount-point discovery.
func DirName(c Controller) string { return c.dirName() }

// Destroy removes this manager's cgroup directory from every registered
// controller's hierarchy. Used both by `delete` (§4.6: "delete removes
// the container root directory and any cgroup directories") and by the
// Launcher's best-effort cleanup after a failed create (§7: "attempts
// best-effort cleanup... remove the cgroup directory"). Missing
// directories and unmounted controllers are not errors here: destroy is
// idempotent cleanup, not an apply.
func (m *Manager) Destroy(mountpoint func(Controller) (string, error)) error {
	var firstErr error
	for _, s := range m.subsystems {
		mp, err := mountpoint(s.Name())
		if err != nil {
			continue
		}
		if err := os.RemoveAll(mp + "/" + m.relPath); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
