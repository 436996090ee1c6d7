package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tsturzl/youki/libcontainer/configs"
)

// withProcs creates a fake cgroup directory with an already-existing
// cgroup.procs file, mimicking what a real cgroupfs mkdir already
// provides, so Apply's final joinPid write has somewhere to land.
func withProcs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, cgroupProcs), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestPidsMandated(t *testing.T) {
	if (Pids{}).Mandated(&configs.CgroupLimits{}) {
		t.Fatal("zero-value limits should not mandate the pids controller")
	}
	if !(Pids{}).Mandated(&configs.CgroupLimits{PidsLimit: 10}) {
		t.Fatal("a non-zero PidsLimit should mandate the pids controller")
	}
}

func TestPidsApplyWritesMaxOrNumber(t *testing.T) {
	dir := withProcs(t)
	if err := (Pids{}).Apply(dir, &configs.CgroupLimits{PidsLimit: -1}, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, pidsMaxFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "max" {
		t.Fatalf("pids.max = %q, want %q", got, "max")
	}

	dir2 := withProcs(t)
	if err := (Pids{}).Apply(dir2, &configs.CgroupLimits{PidsLimit: 64}, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got2, err := os.ReadFile(filepath.Join(dir2, pidsMaxFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(got2) != "64" {
		t.Fatalf("pids.max = %q, want %q", got2, "64")
	}
}

func TestHugetlbMandated(t *testing.T) {
	if (Hugetlb{}).Mandated(&configs.CgroupLimits{}) {
		t.Fatal("empty HugepageLimits should not mandate hugetlb")
	}
	limits := &configs.CgroupLimits{HugepageLimits: []configs.HugepageLimit{{Pagesize: "2MB", Limit: 0}}}
	if !(Hugetlb{}).Mandated(limits) {
		t.Fatal("a non-empty HugepageLimits should mandate hugetlb")
	}
}

func TestHugetlbApplyWritesPerSizeFiles(t *testing.T) {
	dir := withProcs(t)
	limits := &configs.CgroupLimits{HugepageLimits: []configs.HugepageLimit{
		{Pagesize: "2MB", Limit: 1024},
		{Pagesize: "1GB", Limit: 0},
	}}
	if err := (Hugetlb{}).Apply(dir, limits, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "hugetlb.2MB.limit_in_bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1024" {
		t.Fatalf("hugetlb.2MB.limit_in_bytes = %q, want %q", got, "1024")
	}
}

func TestMemoryMandated(t *testing.T) {
	if (Memory{}).Mandated(&configs.CgroupLimits{}) {
		t.Fatal("zero-value limits should not mandate memory")
	}
	if !(Memory{}).Mandated(&configs.CgroupLimits{MemoryLimit: 1}) {
		t.Fatal("a non-zero MemoryLimit should mandate memory")
	}
}

func TestMemoryApplyRejectsSwapWithoutLimit(t *testing.T) {
	dir := withProcs(t)
	err := (Memory{}).Apply(dir, &configs.CgroupLimits{MemorySwap: 1 << 20}, os.Getpid())
	if err == nil {
		t.Fatal("expected swap-without-limit to be rejected")
	}
}

func TestMemoryApplyWritesLimit(t *testing.T) {
	dir := withProcs(t)
	if err := (Memory{}).Apply(dir, &configs.CgroupLimits{MemoryLimit: 1 << 20}, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "memory.limit_in_bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1048576" {
		t.Fatalf("memory.limit_in_bytes = %q, want 1048576", got)
	}
}

func TestNetClsMandated(t *testing.T) {
	if (NetCls{}).Mandated(&configs.CgroupLimits{}) {
		t.Fatal("zero classid should not mandate net_cls")
	}
	if !(NetCls{}).Mandated(&configs.CgroupLimits{NetClsClassid: 42}) {
		t.Fatal("non-zero classid should mandate net_cls")
	}
}

func TestNetClsApplyWritesClassid(t *testing.T) {
	dir := withProcs(t)
	if err := (NetCls{}).Apply(dir, &configs.CgroupLimits{NetClsClassid: 42}, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "net_cls.classid"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "42" {
		t.Fatalf("net_cls.classid = %q, want %q", got, "42")
	}
}

func TestDevicesMandated(t *testing.T) {
	if (Devices{}).Mandated(&configs.CgroupLimits{}) {
		t.Fatal("no rules should not mandate the devices controller")
	}
	rules := &configs.CgroupLimits{DeviceRules: []configs.DeviceRule{{Allow: false, Type: 'a', Major: -1, Minor: -1, Access: "rwm"}}}
	if !(Devices{}).Mandated(rules) {
		t.Fatal("a declared rule should mandate the devices controller")
	}
}

func TestDevicesApplyDedupesRules(t *testing.T) {
	dir := withProcs(t)
	limits := &configs.CgroupLimits{DeviceRules: []configs.DeviceRule{
		{Allow: true, Type: 'c', Major: 5, Minor: 1, Access: "rwm"}, // duplicates a default-allow entry
	}}
	if err := (Devices{}).Apply(dir, limits, os.Getpid()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, devicesAllowFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(got), "c 5:1 rwm") != 1 {
		t.Fatalf("expected the duplicate rule to be written once, got %q", got)
	}
}

func TestRuleStringWildcards(t *testing.T) {
	got := ruleString(configs.DeviceRule{Type: 'a', Major: -1, Minor: -1, Access: "rwm"})
	if got != "a *:* rwm" {
		t.Fatalf("ruleString = %q, want %q", got, "a *:* rwm")
	}
}
