package libcontainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/mrunalp/fileutils"
	"github.com/opencontainers/selinux/go-selinux/label"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

// mountOptions is the parsed, left-to-right result of §4.3's option
// table: a kernel MS_* flag set plus any leftover comma-joined data
// arguments the kernel itself interprets (e.g. filesystem-specific
// options like "size=64m").
type mountOptions struct {
	flags int
	data  string
}

// parseMountOptions applies §4.3's option table left to right; options
// not in the table are treated as filesystem-specific data and joined
// with commas, preserving their relative order. Per property 3 in §8,
// non-conflicting options may be permuted without changing the resulting
// flag set, since each recognized option only ever sets or clears its own
// fixed group of bits (e.g. rbind sets MS_BIND|MS_REC).
func parseMountOptions(options []string) mountOptions {
	var flags int
	var data []string
	for _, opt := range options {
		switch opt {
		case "defaults":
		case "ro":
			flags |= unix.MS_RDONLY
		case "rw":
			flags &^= unix.MS_RDONLY
		case "suid":
			flags &^= unix.MS_NOSUID
		case "nosuid":
			flags |= unix.MS_NOSUID
		case "dev":
			flags &^= unix.MS_NODEV
		case "nodev":
			flags |= unix.MS_NODEV
		case "exec":
			flags &^= unix.MS_NOEXEC
		case "noexec":
			flags |= unix.MS_NOEXEC
		case "sync":
			flags |= unix.MS_SYNCHRONOUS
		case "async":
			flags &^= unix.MS_SYNCHRONOUS
		case "dirsync":
			flags |= unix.MS_DIRSYNC
		case "remount":
			flags |= unix.MS_REMOUNT
		case "mand":
			flags |= unix.MS_MANDLOCK
		case "nomand":
			flags &^= unix.MS_MANDLOCK
		case "atime":
			flags &^= unix.MS_NOATIME
		case "noatime":
			flags |= unix.MS_NOATIME
		case "diratime":
			flags &^= unix.MS_NODIRATIME
		case "nodiratime":
			flags |= unix.MS_NODIRATIME
		case "bind":
			flags |= unix.MS_BIND
		case "rbind":
			flags |= unix.MS_BIND | unix.MS_REC
		case "unbindable":
			flags |= unix.MS_UNBINDABLE
		case "runbindable":
			flags |= unix.MS_UNBINDABLE | unix.MS_REC
		case "private":
			flags |= unix.MS_PRIVATE
		case "rprivate":
			flags |= unix.MS_PRIVATE | unix.MS_REC
		case "shared":
			flags |= unix.MS_SHARED
		case "rshared":
			flags |= unix.MS_SHARED | unix.MS_REC
		case "slave":
			flags |= unix.MS_SLAVE
		case "rslave":
			flags |= unix.MS_SLAVE | unix.MS_REC
		case "relatime":
			flags |= unix.MS_RELATIME
		case "norelatime":
			flags &^= unix.MS_RELATIME
		case "strictatime":
			flags |= unix.MS_STRICTATIME
		case "nostrictatime":
			flags &^= unix.MS_STRICTATIME
		default:
			data = append(data, opt)
		}
	}
	return mountOptions{flags: flags, data: strings.Join(data, ",")}
}

// parseRootPropagation maps the spec's propagation string to a flag. An
// empty string defaults to slave (common-runtime convention), but any
// other unrecognized string is a hard ConfigInvalid error rather than a
// silent default — the third open question in §9 resolved explicitly,
// see DESIGN.md.
func parseRootPropagation(s string) (int, error) {
	switch s {
	case "", "slave":
		return unix.MS_SLAVE, nil
	case "shared":
		return unix.MS_SHARED, nil
	case "private":
		return unix.MS_PRIVATE, nil
	}
	return 0, lcerr.NewErrorf(lcerr.ConfigInvalid, "unknown rootfs propagation %q", s)
}

// PrepareRootfs runs §4.3 steps 1-7 against an already-namespaced Init
// process. rootfs must be an absolute, already-existing directory.
func PrepareRootfs(rootfs string, cfg *configs.Rootfs) error {
	flag, err := parseRootPropagation(propagationString(cfg.Propagation))
	if err != nil {
		return err
	}
	if err := unix.Mount("", "/", "", uintptr(flag|unix.MS_REC), ""); err != nil {
		return lcerr.WrapSysCall(err, "mount / propagation")
	}

	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return lcerr.WrapSysCall(err, "bind-mount rootfs over itself")
	}

	for _, m := range cfg.Mounts {
		if err := mountEntry(rootfs, m, cfg.MountLabel); err != nil {
			return err
		}
	}

	if err := os.Chdir(rootfs); err != nil {
		return errors.Wrap(err, "chdir into rootfs")
	}

	if err := setupDefaultSymlinks(); err != nil {
		return err
	}
	if err := createDevices(cfg.Devices, cfg.BindDevices); err != nil {
		return err
	}
	if err := setupPtmx(); err != nil {
		return err
	}

	if err := os.Chdir("/"); err != nil {
		return errors.Wrap(err, "chdir back to /")
	}
	return nil
}

// PivotRoot swaps the calling process's root mount for rootfs (the
// glossary's pivot_root), per §4.1's ordering guarantee: "pivot_root
// occurs after all setns joins and after new-namespace creation". It
// calls pivot_root(".", ".") from inside the new root, which stacks the
// old root on top of the new one at the same mountpoint without a
// temporary directory; the old root is then made slave (so the unmount
// does not propagate to the host) and lazily unmounted.
func PivotRoot(rootfs string) error {
	oldroot, err := os.Open("/")
	if err != nil {
		return errors.Wrap(err, "open old root")
	}
	defer oldroot.Close()

	newroot, err := os.Open(rootfs)
	if err != nil {
		return errors.Wrap(err, "open new root")
	}
	defer newroot.Close()

	if err := unix.Fchdir(int(newroot.Fd())); err != nil {
		return lcerr.WrapSysCall(err, "fchdir new root")
	}

	if err := unix.PivotRoot(".", "."); err != nil {
		return lcerr.WrapSysCall(err, "pivot_root")
	}

	if err := unix.Fchdir(int(oldroot.Fd())); err != nil {
		return lcerr.WrapSysCall(err, "fchdir old root")
	}

	if err := unix.Mount("", ".", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return lcerr.WrapSysCall(err, "make old root slave")
	}

	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return lcerr.WrapSysCall(err, "lazy unmount old root")
	}

	return os.Chdir("/")
}

// ApplyReadonlyPaths bind-mounts each path onto itself and remounts it
// MS_RDONLY, implementing §4.1 S2's "mounts readonly paths" step. Must
// run after pivot_root so paths resolve inside the new root.
func ApplyReadonlyPaths(paths []string) error {
	for _, p := range paths {
		if err := readonlyPath(p); err != nil {
			return err
		}
	}
	return nil
}

func readonlyPath(path string) error {
	if err := unix.Mount(path, path, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return lcerr.WrapSysCall(err, "bind readonly path "+path)
	}
	if err := unix.Mount(path, path, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return lcerr.WrapSysCall(err, "remount readonly "+path)
	}
	return nil
}

// ApplyMaskedPaths hides paths the container must not read: a regular
// file is covered by binding /dev/null over it, a directory by an empty
// read-only tmpfs, matching the masking convention every OCI runtime in
// the corpus applies to sensitive /proc entries. A missing path is not an
// error — it simply has nothing to mask.
func ApplyMaskedPaths(paths []string) error {
	for _, p := range paths {
		if err := maskPath(p); err != nil {
			return err
		}
	}
	return nil
}

func maskPath(path string) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat masked path %s", path)
	}
	if fi.IsDir() {
		return lcerr.WrapSysCall(unix.Mount("tmpfs", path, "tmpfs", unix.MS_RDONLY, ""), "mask dir "+path)
	}
	return lcerr.WrapSysCall(unix.Mount("/dev/null", path, "", unix.MS_BIND, ""), "mask file "+path)
}

// ApplySysctls writes each key/value to /proc/sys/<key, dots as
// slashes>, §4.1 S2's "applies sysctls" step, which must happen after
// pivot_root (it targets the container's own /proc, mounted as part of
// the rootfs mount list) and before the capability drop (writing some
// sysctls needs CAP_SYS_ADMIN/CAP_NET_ADMIN that the container payload
// itself won't retain).
func ApplySysctls(sysctl map[string]string) error {
	for k, v := range sysctl {
		path := "/proc/sys/" + strings.ReplaceAll(k, ".", "/")
		if err := os.WriteFile(path, []byte(v), 0o644); err != nil {
			return errors.Wrapf(err, "write sysctl %s", k)
		}
	}
	return nil
}

func propagationString(p configs.RootPropagation) string {
	switch p {
	case configs.PropagationShared:
		return "shared"
	case configs.PropagationPrivate:
		return "private"
	case configs.PropagationSlave:
		return "slave"
	default:
		return ""
	}
}

// mountEntry performs §4.3 step 3-4: resolve flags/data, mount into
// <rootfs><destination>, retry once without SELinux label data on EINVAL,
// and remount to apply extra bind flags.
func mountEntry(rootfs string, m configs.Mount, mountLabel string) error {
	opts := parseMountOptions(m.Options)
	flags := opts.flags
	data := opts.data

	if m.Destination == "/dev" {
		flags &^= unix.MS_RDONLY
	}

	dest, err := securejoin.SecureJoin(rootfs, m.Destination)
	if err != nil {
		return errors.Wrapf(err, "resolve mount destination %s", m.Destination)
	}

	labeledData := data
	if mountLabel != "" && m.Device != "proc" && m.Device != "sysfs" {
		labeledData, err = label.FormatMountLabel(data, mountLabel)
		if err != nil {
			return errors.Wrap(err, "format selinux mount label")
		}
	}

	src := m.Source
	if m.Device == "bind" {
		canon, err := filepath.EvalSymlinks(m.Source)
		if err != nil {
			return errors.Wrapf(err, "canonicalize bind source %s", m.Source)
		}
		src = canon
		fi, statErr := os.Stat(canon)
		isFile := statErr == nil && !fi.IsDir()
		if isFile {
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return errors.Wrap(err, "mkdir bind destination parent")
			}
			if err := fileutils.CopyFile(dest, canon); err != nil {
				if _, statErr := os.Stat(dest); statErr != nil {
					f, createErr := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644)
					if createErr != nil {
						return errors.Wrap(createErr, "create bind destination file")
					}
					f.Close()
				}
			}
		} else {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.Wrap(err, "mkdir bind destination")
			}
		}
	} else {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return errors.Wrap(err, "mkdir mount destination")
		}
	}

	if err := unix.Mount(src, dest, m.Device, uintptr(flags), labeledData); err != nil {
		if err != unix.EINVAL {
			return lcerr.WrapSysCall(err, fmt.Sprintf("mount %s", m.Destination))
		}
		if err := unix.Mount(src, dest, m.Device, uintptr(flags), data); err != nil {
			return lcerr.WrapSysCall(err, fmt.Sprintf("mount %s (no selinux label)", m.Destination))
		}
	}

	const extraFlagsMask = unix.MS_REC | unix.MS_REMOUNT | unix.MS_BIND |
		unix.MS_PRIVATE | unix.MS_SHARED | unix.MS_SLAVE
	if flags&unix.MS_BIND != 0 && flags&^extraFlagsMask != 0 {
		if err := unix.Mount(dest, dest, "", uintptr(flags|unix.MS_REMOUNT), ""); err != nil {
			return lcerr.WrapSysCall(err, fmt.Sprintf("remount %s", m.Destination))
		}
	}
	return nil
}

// setupDefaultSymlinks creates the §4.3 step 5 symlinks; cwd must already
// be rootfs.
func setupDefaultSymlinks() error {
	if _, err := os.Stat("/proc/kcore"); err == nil {
		_ = os.Symlink("/proc/kcore", "dev/kcore")
	}
	links := [][2]string{
		{"/proc/self/fd", "dev/fd"},
		{"/proc/self/fd/0", "dev/stdin"},
		{"/proc/self/fd/1", "dev/stdout"},
		{"/proc/self/fd/2", "dev/stderr"},
	}
	for _, l := range links {
		if err := os.Symlink(l[0], l[1]); err != nil && !os.IsExist(err) {
			return errors.Wrapf(err, "symlink %s", l[1])
		}
	}
	return nil
}

// setupPtmx replaces dev/ptmx with a symlink to pts/ptmx, §4.3 step 7.
func setupPtmx() error {
	if err := os.Remove("dev/ptmx"); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove dev/ptmx")
	}
	return os.Symlink("pts/ptmx", "dev/ptmx")
}

// defaultDevices is the set of device nodes every container gets even
// without an explicit spec entry: null, zero, full, tty, urandom, random.
func defaultDevices() []configs.Device {
	return []configs.Device{
		{Path: "/dev/null", Type: 'c', Major: 1, Minor: 3, FileMode: 0o666},
		{Path: "/dev/zero", Type: 'c', Major: 1, Minor: 5, FileMode: 0o666},
		{Path: "/dev/full", Type: 'c', Major: 1, Minor: 7, FileMode: 0o666},
		{Path: "/dev/tty", Type: 'c', Major: 5, Minor: 0, FileMode: 0o666},
		{Path: "/dev/urandom", Type: 'c', Major: 1, Minor: 9, FileMode: 0o666},
		{Path: "/dev/random", Type: 'c', Major: 1, Minor: 8, FileMode: 0o666},
	}
}

// createDevices implements §4.3 step 6: for each default-device ∪
// spec-device, either bind-mount from the host (rootless) or mknod
// directly. Paths not under /dev are rejected.
func createDevices(specDevices []configs.Device, bindDevices bool) error {
	old := unix.Umask(0)
	defer unix.Umask(old)

	all := append(append([]configs.Device{}, defaultDevices()...), specDevices...)
	for _, d := range all {
		if !strings.HasPrefix(d.Path, "/dev") {
			return lcerr.NewErrorf(lcerr.ConfigInvalid, "device path %s is not under /dev", d.Path)
		}
		rel := strings.TrimPrefix(d.Path, "/")
		if bindDevices {
			if err := bindDevice(rel, d); err != nil {
				return err
			}
		} else {
			if err := mknodDevice(rel, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func bindDevice(rel string, d configs.Device) error {
	f, err := os.OpenFile(rel, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create bind target %s", rel)
	}
	f.Close()
	if err := unix.Mount(d.Path, rel, "", unix.MS_BIND, ""); err != nil {
		return lcerr.WrapSysCall(err, fmt.Sprintf("bind device %s", d.Path))
	}
	return nil
}

func mknodDevice(rel string, d configs.Device) error {
	var sflag uint32
	switch d.Type {
	case 'c':
		sflag = unix.S_IFCHR
	case 'b':
		sflag = unix.S_IFBLK
	case 'p':
		sflag = unix.S_IFIFO
	default:
		return lcerr.NewErrorf(lcerr.ConfigInvalid, "unknown device type %q for %s", d.Type, d.Path)
	}
	dev := unix.Mkdev(uint32(d.Major), uint32(d.Minor))
	if err := unix.Mknod(rel, sflag|d.FileMode, int(dev)); err != nil {
		return lcerr.WrapSysCall(err, fmt.Sprintf("mknod %s", d.Path))
	}
	if err := unix.Chown(rel, int(d.Uid), int(d.Gid)); err != nil {
		return lcerr.WrapSysCall(err, fmt.Sprintf("chown %s", d.Path))
	}
	return nil
}
