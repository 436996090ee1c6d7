package fs

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

// NetPrio implements the net_prio controller: writes net_prio.ifpriomap
// with one "<iface> <prio>" line per interface (§4.4). One prior
// implementation in the lineage this runtime descends from wrote the
// priority map to the cgroup directory itself rather than to
// net_prio.ifpriomap — §9's design notes flag this explicitly, and this
// implementation targets the interface file.
type NetPrio struct{}

func (NetPrio) Name() cgroups.Controller { return cgroups.NetPrio }

func (NetPrio) Mandated(r *configs.CgroupLimits) bool {
	return len(r.NetPrioIfpriomap) > 0
}

func (n NetPrio) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}
	if len(r.NetPrioIfpriomap) > 0 {
		if err := validateInterfaces(r.NetPrioIfpriomap); err != nil {
			return err
		}
		lines := make([]string, 0, len(r.NetPrioIfpriomap))
		for _, m := range r.NetPrioIfpriomap {
			lines = append(lines, m.Interface+" "+strconv.Itoa(int(m.Priority)))
		}
		data := strings.Join(lines, "\n")
		if len(data) > 0 {
			data += "\n"
		}
		if err := writeFile(path+"/net_prio.ifpriomap", data); err != nil {
			return err
		}
	}
	return joinPid(path, pid)
}

// validateInterfaces confirms every named interface actually exists on
// the host network namespace, using vishvananda/netlink rather than
// shelling out to `ip link` — a mis-typed interface name otherwise fails
// silently (the kernel just ignores an unknown ifpriomap line).
func validateInterfaces(m []configs.IfPrioMap) error {
	links, err := netlink.LinkList()
	if err != nil {
		return errors.Wrap(err, "list network interfaces")
	}
	known := make(map[string]bool, len(links))
	for _, l := range links {
		known[l.Attrs().Name] = true
	}
	for _, entry := range m {
		if !known[entry.Interface] {
			return errors.Errorf("net_prio: interface %q does not exist", entry.Interface)
		}
	}
	return nil
}

