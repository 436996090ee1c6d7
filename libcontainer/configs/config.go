// Package configs defines the in-memory Runtime Plan that the fork
// choreography, cgroup dispatcher, and rootfs preparer all consume. It is
// derived once, at Launcher startup, from the OCI bundle's config.json and
// never mutated by the Intermediate or Init stages.
package configs

import (
	"time"

	mapset "github.com/deckarep/golang-set"
)

// NamespaceType is one of the seven kernel namespace kinds this runtime
// manages.
type NamespaceType string

const (
	NEWNS    NamespaceType = "mount"
	NEWUTS   NamespaceType = "uts"
	NEWIPC   NamespaceType = "ipc"
	NEWUSER  NamespaceType = "user"
	NEWPID   NamespaceType = "pid"
	NEWNET   NamespaceType = "net"
	NEWCGROUP NamespaceType = "cgroup"
)

// Namespace is either a request to create a new namespace of Type, or (if
// Path is non-empty) a request to join an existing namespace via setns.
type Namespace struct {
	Type NamespaceType
	Path string
}

// NewNS reports whether this namespace entry asks for a freshly created
// namespace rather than joining one by path.
func (n Namespace) NewNS() bool {
	return n.Path == ""
}

// Namespaces is the Runtime Plan's namespace list, one entry per request
// with its optional join Path. The slice itself does not collapse
// duplicate kinds; Kinds() returns the distinct set of kinds as a
// mapset.Set, matching the spec's "set of kinds" data model.
type Namespaces []Namespace

// Kinds returns the distinct set of namespace kinds requested, regardless
// of whether each is a create or a join.
func (n Namespaces) Kinds() mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, ns := range n {
		s.Add(ns.Type)
	}
	return s
}

// Contains reports whether the plan includes a namespace of the given
// kind, in either create or join form.
func (n Namespaces) Contains(t NamespaceType) bool {
	for _, ns := range n {
		if ns.Type == t {
			return true
		}
	}
	return false
}

// PathOf returns the join-path for a namespace kind, or "" if the plan
// creates that namespace fresh (or omits it).
func (n Namespaces) PathOf(t NamespaceType) string {
	for _, ns := range n {
		if ns.Type == t {
			return ns.Path
		}
	}
	return ""
}

// IDMap is a single uid or gid mapping line: Size ids starting at
// ContainerID map to Size host ids starting at HostID.
type IDMap struct {
	ContainerID int
	HostID      int
	Size        int
}

// Rlimit is a single POSIX resource limit to apply to Init before it
// execs the payload.
type Rlimit struct {
	Type int
	Hard uint64
	Soft uint64
}

// Capabilities mirrors the five capability sets the kernel tracks.
type Capabilities struct {
	Bounding    []string
	Effective   []string
	Inheritable []string
	Permitted   []string
	Ambient     []string
}

// Device describes one device node the rootfs preparer must create (or
// bind, for rootless containers) under the container's /dev.
type Device struct {
	Path     string
	Type     rune // 'c' character, 'b' block, 'p' fifo
	Major    int64
	Minor    int64
	FileMode uint32
	Uid      uint32
	Gid      uint32
}

// DeviceRule is one cgroup devices-controller rule: allow or deny access
// of kind Access ("r", "w", "m" combined) to the device(s) matching Type
// and Major:Minor, where -1 means the '*' wildcard.
type DeviceRule struct {
	Allow  bool
	Type   rune // 'c', 'b', 'a' (all), or 'p'
	Major  int64
	Minor  int64
	Access string
}

// Mount is one entry of the rootfs mount plan, as declared in the bundle
// config before option parsing. Options is the raw OCI mount-options list
// (e.g. ["rbind", "ro"]); the rootfs preparer resolves it into a kernel
// flag set and leftover data string per §4.3's option table.
type Mount struct {
	Source      string
	Destination string
	Device      string
	Options     []string
}

// CgroupLimits is the typed set of per-controller limits a container may
// request. Nil/zero fields mean "controller not constrained" per §4.4's
// "missing controllers are skipped with a warning" and §4's "all
// zero-value means the spec does not mandate a limit" convention.
type CgroupLimits struct {
	CpusetCpus string
	CpusetMems string

	CpuShares  uint64
	CpuQuota   int64
	CpuPeriod  uint64

	MemoryLimit      int64
	MemorySwap       int64
	MemoryReservation int64
	MemorySwappiness *int64
	KernelMemoryLimit int64

	PidsLimit int64 // -1 means unlimited ("max")

	HugepageLimits []HugepageLimit

	NetClsClassid uint32
	NetPrioIfpriomap []IfPrioMap

	DeviceRules []DeviceRule
}

// HugepageLimit is one (page size, byte limit) pair for the hugetlb
// controller, e.g. {"2MB", 1 << 30}. Limit is written verbatim to
// hugetlb.<size>.limit_in_bytes; 0 is not translated to "unlimited".
type HugepageLimit struct {
	Pagesize string
	Limit    uint64
}

// IfPrioMap is one interface/priority pair for net_prio.ifpriomap.
type IfPrioMap struct {
	Interface string
	Priority  uint32
}

// Cgroup is the plan's cgroup section: a relative path under each
// controller's hierarchy, plus the typed limits to apply once Init's pid
// is known.
type Cgroup struct {
	Path      string
	Resources CgroupLimits
}

// RootPropagation is the mount propagation mode applied to "/" before the
// rootfs bind-mount, per §4.3 step 1. An empty propagation string maps to
// PropagationSlave; a non-empty unrecognized string fails to parse rather
// than silently defaulting (open question in §9, resolved in DESIGN.md).
// The zero value, PropagationInvalid, is what a failed parse returns.
type RootPropagation int

const (
	PropagationInvalid RootPropagation = iota
	PropagationShared
	PropagationSlave
	PropagationPrivate
)

// Rootfs is the plan's filesystem section.
type Rootfs struct {
	Path             string
	Mounts           []Mount
	Devices          []Device
	Propagation      RootPropagation
	BindDevices      bool
	ReadonlyPaths    []string
	MaskedPaths      []string
	MountLabel       string
}

// Process is the plan's payload description: what Init ultimately execs.
type Process struct {
	Args             []string
	Env              []string
	Cwd              string
	Uid              uint32
	Gid              uint32
	AdditionalGids   []uint32
	Capabilities     *Capabilities
	Rlimits          []Rlimit
	NoNewPrivileges  bool
	OomScoreAdj      *int
	Sysctl           map[string]string
	ConsoleSocket    string // unix socket path passed via --console-socket
}

// Hook is one external executable the creation pipeline runs at a named
// lifecycle point.
type Hook struct {
	Path    string
	Args    []string
	Env     []string
	Timeout *time.Duration
}

type Hooks struct {
	CreateRuntime   []Hook
	CreateContainer []Hook
	StartContainer  []Hook
	Poststart       []Hook
	Poststop        []Hook
}

// Config is the fully assembled Runtime Plan for a single `create`
// invocation. It is constructed once by the Launcher from the bundle's
// config.json (via runtime-spec) and threaded by value/pointer through
// every fork stage; there is no ambient singleton (§9 "no global state").
type Config struct {
	ContainerID  string
	Bundle       string
	Rootfs       Rootfs
	Namespaces   Namespaces
	Cgroup       Cgroup
	Process      Process
	Hooks        *Hooks
	UIDMappings  []IDMap
	GIDMappings  []IDMap
	Hostname     string
	Domainname   string
	PreserveFds  int
	Rootless     bool
	NoPivotRoot  bool
	Annotations  map[string]string
}

// RequiresMultiMapBinaries reports whether the plan's id mappings can only
// be written via the external newuidmap/newgidmap helpers (§4.5: true iff
// more than one mapping is declared).
func (c *Config) RequiresMultiMapBinaries() bool {
	return len(c.UIDMappings) > 1 || len(c.GIDMappings) > 1
}
