// Package specconv derives the in-memory Runtime Plan (configs.Config)
// from an OCI bundle's config.json, grounded on the teacher's
// spec.go:loadSpec/createLibContainerRlimit, adapted here to build the
// full Runtime Plan rather than a system-container-specific spec.
package specconv

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/configs"
)

// LoadSpec reads and decodes the OCI runtime spec at path (normally
// "<bundle>/config.json").
func LoadSpec(path string) (*specs.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config.json not found at %s", path)
		}
		return nil, err
	}
	defer f.Close()

	var spec specs.Spec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return nil, errors.Wrap(err, "decode config.json")
	}
	return &spec, nil
}

// ToConfig builds the Runtime Plan for containerID from spec and bundle,
// §3's "Config is constructed once by the Launcher from the bundle's
// config.json".
func ToConfig(spec *specs.Spec, containerID, bundle, rootfsPath string) (*configs.Config, error) {
	if spec.Linux == nil {
		return nil, errors.New("config.json has no \"linux\" section")
	}

	cfg := &configs.Config{
		ContainerID: containerID,
		Bundle:      bundle,
	}

	if spec.Hostname != "" {
		cfg.Hostname = spec.Hostname
	}
	if spec.Domainname != "" {
		cfg.Domainname = spec.Domainname
	}
	cfg.Annotations = spec.Annotations

	ns, err := toNamespaces(spec.Linux.Namespaces)
	if err != nil {
		return nil, err
	}
	cfg.Namespaces = ns

	cfg.UIDMappings = toIDMaps(spec.Linux.UIDMappings)
	cfg.GIDMappings = toIDMaps(spec.Linux.GIDMappings)

	rootfs, err := toRootfs(spec, rootfsPath)
	if err != nil {
		return nil, err
	}
	cfg.Rootfs = *rootfs

	proc, err := toProcess(spec.Process)
	if err != nil {
		return nil, err
	}
	cfg.Process = *proc

	cfg.Cgroup = configs.Cgroup{
		Path:      spec.Linux.CgroupsPath,
		Resources: toCgroupLimits(spec.Linux.Resources),
	}

	cfg.Hooks = toHooks(spec.Hooks)

	return cfg, nil
}

func toNamespaces(in []specs.LinuxNamespace) (configs.Namespaces, error) {
	out := make(configs.Namespaces, 0, len(in))
	for _, n := range in {
		t, err := toNamespaceType(n.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, configs.Namespace{Type: t, Path: n.Path})
	}
	return out, nil
}

func toNamespaceType(t specs.LinuxNamespaceType) (configs.NamespaceType, error) {
	switch t {
	case specs.MountNamespace:
		return configs.NEWNS, nil
	case specs.UTSNamespace:
		return configs.NEWUTS, nil
	case specs.IPCNamespace:
		return configs.NEWIPC, nil
	case specs.UserNamespace:
		return configs.NEWUSER, nil
	case specs.PIDNamespace:
		return configs.NEWPID, nil
	case specs.NetworkNamespace:
		return configs.NEWNET, nil
	case specs.CgroupNamespace:
		return configs.NEWCGROUP, nil
	default:
		return "", errors.Errorf("unknown namespace type %q", t)
	}
}

func toIDMaps(in []specs.LinuxIDMapping) []configs.IDMap {
	out := make([]configs.IDMap, 0, len(in))
	for _, m := range in {
		out = append(out, configs.IDMap{
			ContainerID: int(m.ContainerID),
			HostID:      int(m.HostID),
			Size:        int(m.Size),
		})
	}
	return out
}

func toRootfs(spec *specs.Spec, rootfsPath string) (*configs.Rootfs, error) {
	r := &configs.Rootfs{Path: rootfsPath}

	for _, m := range spec.Mounts {
		r.Mounts = append(r.Mounts, configs.Mount{
			Source:      m.Source,
			Destination: m.Destination,
			Device:      m.Type,
			Options:     m.Options,
		})
	}

	prop, err := toPropagation(spec.Linux.RootfsPropagation)
	if err != nil {
		return nil, err
	}
	r.Propagation = prop

	r.ReadonlyPaths = spec.Linux.ReadonlyPaths
	r.MaskedPaths = spec.Linux.MaskedPaths
	r.MountLabel = spec.Linux.MountLabel
	if spec.Root != nil {
		r.Path = rootfsPath
	}

	r.Devices = toDevices(spec.Linux.Devices)
	r.BindDevices = false

	return r, nil
}

// toPropagation maps the bundle's (possibly empty) rootfsPropagation
// string, defaulting an unset field to slave (the common-runtime
// convention), but rejecting any value that is present and unrecognized
// — the third Open Question of §9, resolved in DESIGN.md and mirrored by
// parseRootPropagation in rootfs_linux.go.
func toPropagation(s string) (configs.RootPropagation, error) {
	switch s {
	case "", "slave":
		return configs.PropagationSlave, nil
	case "shared":
		return configs.PropagationShared, nil
	case "private", "unbindable":
		return configs.PropagationPrivate, nil
	default:
		return configs.PropagationInvalid, errors.Errorf("unknown rootfsPropagation %q", s)
	}
}

func toDevices(in []specs.LinuxDevice) []configs.Device {
	out := make([]configs.Device, 0, len(in))
	for _, d := range in {
		dev := configs.Device{
			Path:  d.Path,
			Type:  rune(d.Type[0]),
			Major: d.Major,
			Minor: d.Minor,
		}
		if d.FileMode != nil {
			dev.FileMode = uint32(*d.FileMode)
		}
		if d.UID != nil {
			dev.Uid = *d.UID
		}
		if d.GID != nil {
			dev.Gid = *d.GID
		}
		out = append(out, dev)
	}
	return out
}

func toProcess(p *specs.Process) (*configs.Process, error) {
	if p == nil {
		return nil, errors.New("config.json has no \"process\" section")
	}

	proc := &configs.Process{
		Args:            p.Args,
		Env:             p.Env,
		Cwd:             p.Cwd,
		Uid:             p.User.UID,
		Gid:             p.User.GID,
		NoNewPrivileges: p.NoNewPrivileges,
		OomScoreAdj:     p.OOMScoreAdj,
		Sysctl:          map[string]string{},
	}
	for _, g := range p.User.AdditionalGids {
		proc.AdditionalGids = append(proc.AdditionalGids, g)
	}

	if p.Capabilities != nil {
		proc.Capabilities = &configs.Capabilities{
			Bounding:    p.Capabilities.Bounding,
			Effective:   p.Capabilities.Effective,
			Inheritable: p.Capabilities.Inheritable,
			Permitted:   p.Capabilities.Permitted,
			Ambient:     p.Capabilities.Ambient,
		}
	}

	for _, rl := range p.Rlimits {
		r, err := toRlimit(rl)
		if err != nil {
			return nil, err
		}
		proc.Rlimits = append(proc.Rlimits, r)
	}

	return proc, nil
}

// toRlimit maps an OCI rlimit's string type name (e.g. "RLIMIT_NOFILE")
// to the unix.RLIMIT_* constant, the same table shape as the teacher's
// strToRlimit used by createLibContainerRlimit.
func toRlimit(rl specs.POSIXRlimit) (configs.Rlimit, error) {
	t, ok := rlimitByName[strings.ToUpper(rl.Type)]
	if !ok {
		return configs.Rlimit{}, errors.Errorf("unknown rlimit type %q", rl.Type)
	}
	return configs.Rlimit{Type: t, Hard: rl.Hard, Soft: rl.Soft}, nil
}

func toCgroupLimits(r *specs.LinuxResources) configs.CgroupLimits {
	var limits configs.CgroupLimits
	if r == nil {
		return limits
	}

	if r.CPU != nil {
		if r.CPU.Shares != nil {
			limits.CpuShares = *r.CPU.Shares
		}
		if r.CPU.Quota != nil {
			limits.CpuQuota = *r.CPU.Quota
		}
		if r.CPU.Period != nil {
			limits.CpuPeriod = *r.CPU.Period
		}
		if r.CPU.Cpus != "" {
			limits.CpusetCpus = r.CPU.Cpus
		}
		if r.CPU.Mems != "" {
			limits.CpusetMems = r.CPU.Mems
		}
	}

	if r.Memory != nil {
		if r.Memory.Limit != nil {
			limits.MemoryLimit = *r.Memory.Limit
		}
		if r.Memory.Swap != nil {
			limits.MemorySwap = *r.Memory.Swap
		}
		if r.Memory.Reservation != nil {
			limits.MemoryReservation = *r.Memory.Reservation
		}
		if r.Memory.Kernel != nil {
			limits.KernelMemoryLimit = *r.Memory.Kernel
		}
		limits.MemorySwappiness = r.Memory.Swappiness
	}

	if r.Pids != nil {
		limits.PidsLimit = r.Pids.Limit
	}

	for _, hp := range r.HugepageLimits {
		limits.HugepageLimits = append(limits.HugepageLimits, configs.HugepageLimit{
			Pagesize: hp.Pagesize,
			Limit:    hp.Limit,
		})
	}

	if r.Network != nil {
		if r.Network.ClassID != nil {
			limits.NetClsClassid = *r.Network.ClassID
		}
		for _, p := range r.Network.Priorities {
			limits.NetPrioIfpriomap = append(limits.NetPrioIfpriomap, configs.IfPrioMap{
				Interface: p.Name,
				Priority:  p.Priority,
			})
		}
	}

	for _, d := range r.Devices {
		rule := configs.DeviceRule{
			Allow:  d.Allow,
			Type:   'a',
			Major:  -1,
			Minor:  -1,
			Access: d.Access,
		}
		if d.Type != "" {
			rule.Type = rune(d.Type[0])
		}
		if d.Major != nil {
			rule.Major = *d.Major
		}
		if d.Minor != nil {
			rule.Minor = *d.Minor
		}
		limits.DeviceRules = append(limits.DeviceRules, rule)
	}

	return limits
}

func toHooks(h *specs.Hooks) *configs.Hooks {
	if h == nil {
		return nil
	}
	return &configs.Hooks{
		CreateRuntime:   toHookList(h.CreateRuntime),
		CreateContainer: toHookList(h.CreateContainer),
		StartContainer:  toHookList(h.StartContainer),
		Poststart:       toHookList(h.Poststart),
		Poststop:        toHookList(h.Poststop),
	}
}

func toHookList(in []specs.Hook) []configs.Hook {
	out := make([]configs.Hook, 0, len(in))
	for _, h := range in {
		hook := configs.Hook{Path: h.Path, Args: h.Args, Env: h.Env}
		if h.Timeout != nil {
			d := secondsToDuration(*h.Timeout)
			hook.Timeout = &d
		}
		out = append(out, hook)
	}
	return out
}
