// init_linux.go implements §4.1's S2 stage: Init prepares the rootfs,
// pivots root, drops capabilities, waits on the notify socket for a
// `start` signal, then execs the user payload, replacing itself.
package libcontainer

import (
	"net"
	"os"

	"github.com/containerd/console"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer/capabilities"
	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
	"github.com/tsturzl/youki/libcontainer/system"
	"github.com/tsturzl/youki/libcontainer/utils"
)

// Fd numbers Init receives via ExtraFiles from the Intermediate (chan2
// child end, notify socket listener).
const (
	initFdChannel = 3
	initFdNotify  = 4
)

func runInitStage() {
	ch2 := os.NewFile(initFdChannel, "init-channel")
	notifyFile := os.NewFile(initFdNotify, "notify-socket")

	var boot bootstrapPayload
	if err := utils.DecodeJSON(ch2, &boot); err != nil {
		logrus.WithError(err).Fatal("init: decode bootstrap config")
	}
	cfg := boot.Config

	if err := doInit(cfg, ch2, notifyFile); err != nil {
		_ = sendMsg(ch2, message{Type: msgError, Error: err.Error()})
		logrus.WithError(err).Error("init: fatal before exec")
		os.Exit(1)
	}
	// unreachable: doInit only returns on error, since its final act is
	// an exec that replaces this process image.
}

// doInit runs the ordered steps of §4.1 S2. It returns only on failure;
// on success the payload exec has already replaced the process.
func doInit(cfg *configs.Config, ch2, notifyFile *os.File) error {
	// Init deliberately sets no parent-death signal: its real parent is
	// the Intermediate, and §4.1's S1 tail has the Intermediate exit
	// immediately after forwarding Init's pid, while Init is still
	// parked in WaitForStart below. A PDEATHSIG here would deliver
	// SIGKILL to Init the instant the Intermediate exits, long before
	// `start` can ever arrive. Losing its real parent just reparents
	// Init to the namespace's subreaper, which is harmless — Init stays
	// alive, matching original_source's fork_init Parent branch, which
	// sets no pdeathsig on the init process either.

	if err := applyRlimits(cfg.Process.Rlimits); err != nil {
		return errors.Wrap(err, "set rlimits")
	}

	if err := unix.Setgid(0); err != nil {
		return lcerr.WrapSysCall(err, "setgid 0")
	}
	if err := unix.Setuid(0); err != nil {
		return lcerr.WrapSysCall(err, "setuid 0")
	}

	if cfg.Process.ConsoleSocket != "" {
		if err := setupConsole(cfg.Process.ConsoleSocket); err != nil {
			return errors.Wrap(err, "set up console")
		}
	}

	if err := PrepareRootfs(cfg.Rootfs.Path, &cfg.Rootfs); err != nil {
		return errors.Wrap(err, "prepare rootfs")
	}

	if cfg.Hooks != nil {
		hookState := &State{OCIVersion: ociVersion, ID: cfg.ContainerID, Status: StatusCreating, Pid: os.Getpid(), Bundle: cfg.Bundle, Annotations: cfg.Annotations}
		if err := RunHooks(cfg.Hooks.CreateContainer, hookState); err != nil {
			return err
		}
	}

	if cfg.NoPivotRoot {
		if err := chrootFallback(cfg.Rootfs.Path); err != nil {
			return errors.Wrap(err, "chroot rootfs")
		}
	} else if err := PivotRoot(cfg.Rootfs.Path); err != nil {
		return errors.Wrap(err, "pivot_root")
	}

	if err := ApplySysctls(cfg.Process.Sysctl); err != nil {
		return errors.Wrap(err, "apply sysctls")
	}
	if err := ApplyMaskedPaths(cfg.Rootfs.MaskedPaths); err != nil {
		return errors.Wrap(err, "apply masked paths")
	}
	if err := ApplyReadonlyPaths(cfg.Rootfs.ReadonlyPaths); err != nil {
		return errors.Wrap(err, "apply readonly paths")
	}

	if err := reapplyProcessIdentity(cfg.Process); err != nil {
		return errors.Wrap(err, "set process uid/gid")
	}

	if err := capabilities.ResetEffective(); err != nil {
		return errors.Wrap(err, "reset effective capabilities")
	}
	if err := capabilities.Drop(cfg.Process.Capabilities); err != nil {
		return errors.Wrap(err, "drop capabilities")
	}
	if cfg.Process.NoNewPrivileges {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return lcerr.WrapSysCall(err, "set no_new_privs")
		}
	}

	listenCount, listenEnv := utils.ListenFDs()
	preserveFds := cfg.PreserveFds + listenCount
	if err := utils.EnsureProcfs("/proc/self/fd"); err != nil {
		return err
	}
	if err := utils.CleanupFileDescriptors("/proc/self/fd", preserveFds); err != nil {
		return errors.Wrap(err, "clean up file descriptors")
	}

	env := cfg.Process.Env
	if len(listenEnv) > 0 {
		env = append(append([]string{}, env...), listenEnv...)
	}

	logrus.WithField("container", cfg.ContainerID).Debug("S2: init ready, waiting for start")
	if err := sendMsg(ch2, message{Type: msgInitReady}); err != nil {
		return errors.Wrap(err, "signal init ready")
	}

	if err := WaitForStart(notifyFile); err != nil {
		return errors.Wrap(err, "wait for start")
	}

	if cfg.Hooks != nil {
		hookState := &State{OCIVersion: ociVersion, ID: cfg.ContainerID, Status: StatusRunning, Pid: os.Getpid(), Bundle: cfg.Bundle, Annotations: cfg.Annotations}
		if err := RunHooks(cfg.Hooks.StartContainer, hookState); err != nil {
			return err
		}
	}

	if err := os.Chdir(cfg.Process.Cwd); err != nil && cfg.Process.Cwd != "" {
		return errors.Wrapf(err, "chdir to %s", cfg.Process.Cwd)
	}

	if err := system.Exec(cfg.Process.Args[0], cfg.Process.Args, env); err != nil {
		return lcerr.WrapSysCall(err, "exec "+cfg.Process.Args[0])
	}
	return nil
}

// applyRlimits sets every declared rlimit. This runs before the uid/gid
// transitions below because raising a hard limit requires
// CAP_SYS_RESOURCE, which the process still has at this point but loses
// once it drops into the user namespace's unprivileged identity.
func applyRlimits(rlimits []configs.Rlimit) error {
	for _, rl := range rlimits {
		if err := system.SetRlimit(rl.Type, rl.Soft, rl.Hard); err != nil {
			return lcerr.WrapSysCall(err, "setrlimit")
		}
	}
	return nil
}

// reapplyProcessIdentity moves Init from uid 0/gid 0 (assumed right
// after entering the user namespace, so rootfs setup runs as root) to
// the spec-declared process identity, per §4.1 S2: "re-applies uid/gid
// to the spec-declared values". Supplementary groups are set before the
// primary gid/uid so the process still has CAP_SETGID/CAP_SETUID when
// unix.Setgroups runs.
func reapplyProcessIdentity(p configs.Process) error {
	gids := make([]int, 0, len(p.AdditionalGids))
	for _, g := range p.AdditionalGids {
		gids = append(gids, int(g))
	}
	if err := unix.Setgroups(gids); err != nil {
		return lcerr.WrapSysCall(err, "setgroups")
	}
	if err := unix.Setgid(int(p.Gid)); err != nil {
		return lcerr.WrapSysCall(err, "setgid")
	}
	if err := unix.Setuid(int(p.Uid)); err != nil {
		return lcerr.WrapSysCall(err, "setuid")
	}
	return nil
}

// chrootFallback is used only when the plan disables pivot_root
// (configs.Config.NoPivotRoot), e.g. when the rootfs is itself the
// current root filesystem and no new mount namespace separation is
// wanted. Weaker than pivot_root (the old root remains reachable via any
// already-open fd), hence only an opt-in fallback, never the default.
func chrootFallback(rootfs string) error {
	if err := unix.Chdir(rootfs); err != nil {
		return lcerr.WrapSysCall(err, "chdir rootfs")
	}
	if err := unix.Chroot("."); err != nil {
		return lcerr.WrapSysCall(err, "chroot")
	}
	return unix.Chdir("/")
}

// setupConsole allocates a pty, sends its master fd across the
// --console-socket unix socket (so the caller, e.g. a CLI or shim, can
// relay terminal I/O), and makes the slave side this process's stdio and
// controlling terminal, grounded on the same SCM_RIGHTS handoff every
// OCI runtime in the corpus uses for console allocation.
func setupConsole(socketPath string) error {
	pty, slavePath, err := console.NewPty()
	if err != nil {
		return errors.Wrap(err, "allocate pty")
	}
	defer pty.Close()

	if err := sendConsoleFd(socketPath, pty); err != nil {
		return err
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "open pty slave")
	}
	defer slave.Close()

	for _, fd := range []int{0, 1, 2} {
		if err := unix.Dup2(int(slave.Fd()), fd); err != nil {
			return lcerr.WrapSysCall(err, "dup2 pty slave")
		}
	}
	return system.Setctty()
}

func sendConsoleFd(socketPath string, pty console.Console) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return errors.Wrap(err, "dial console socket")
	}
	defer conn.Close()
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return errors.New("console socket is not a unix socket")
	}
	sockFile, err := uc.File()
	if err != nil {
		return errors.Wrap(err, "dup console socket fd")
	}
	defer sockFile.Close()

	oob := unix.UnixRights(int(pty.Fd()))
	return unix.Sendmsg(int(sockFile.Fd()), []byte(pty.Name()), oob, nil, 0)
}
