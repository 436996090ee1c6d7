package fs

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
)

const (
	devicesAllowFile = "devices.allow"
	devicesDenyFile  = "devices.deny"
)

// Devices implements the devices controller contract of §4.4: one rule per
// line, `<type> <major|*>:<minor|*> <access>`, for spec rules, then a fixed
// default-allow set. There is no separate list of additional caller rules;
// a rule already written earlier in this sequence is skipped.
type Devices struct{}

func (Devices) Name() cgroups.Controller { return cgroups.Devices }

func (Devices) Mandated(r *configs.CgroupLimits) bool {
	return len(r.DeviceRules) > 0
}

func (d Devices) Apply(path string, r *configs.CgroupLimits, pid int) error {
	if err := mkdirAll(path); err != nil {
		return err
	}

	seen := mapset.NewThreadUnsafeSet()
	all := append(append([]configs.DeviceRule{}, r.DeviceRules...), defaultAllowDevices()...)
	for _, rule := range all {
		key := ruleString(rule)
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		if err := applyDeviceRule(path, rule); err != nil {
			return err
		}
	}

	return joinPid(path, pid)
}

func applyDeviceRule(path string, rule configs.DeviceRule) error {
	file := devicesDenyFile
	if rule.Allow {
		file = devicesAllowFile
	}
	return writeFile(path+"/"+file, ruleString(rule))
}

// ruleString formats a device cgroup rule as "<type> <major|*>:<minor|*>
// <access>", e.g. "c 5:1 rwm" or "a *:* rwm".
func ruleString(rule configs.DeviceRule) string {
	t := rule.Type
	if t == 0 {
		t = 'a'
	}
	major := "*"
	if rule.Major >= 0 {
		major = fmt.Sprintf("%d", rule.Major)
	}
	minor := "*"
	if rule.Minor >= 0 {
		minor = fmt.Sprintf("%d", rule.Minor)
	}
	return fmt.Sprintf("%c %s:%s %s", t, major, minor, rule.Access)
}

// defaultAllowDevices is the fixed default-allow set §4.4 names: character
// and block wildcard mknod ("m"), plus /dev/console, /dev/pts, /dev/tty,
// and tun/tap, all rwm.
func defaultAllowDevices() []configs.DeviceRule {
	return []configs.DeviceRule{
		{Allow: true, Type: 'c', Major: -1, Minor: -1, Access: "m"},
		{Allow: true, Type: 'b', Major: -1, Minor: -1, Access: "m"},
		{Allow: true, Type: 'c', Major: 5, Minor: 1, Access: "rwm"},    // /dev/console
		{Allow: true, Type: 'c', Major: 136, Minor: -1, Access: "rwm"}, // /dev/pts/*
		{Allow: true, Type: 'c', Major: 5, Minor: 2, Access: "rwm"},    // /dev/tty
		{Allow: true, Type: 'c', Major: 10, Minor: 200, Access: "rwm"}, // tun/tap
	}
}
