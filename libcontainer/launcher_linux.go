// launcher_linux.go implements §4.1's S0 stage: the invoking process
// constructs the synchronization primitives, clones the Intermediate,
// and drives the rest of the `create` choreography through to a
// persisted `created` state.
package libcontainer

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tsturzl/youki/libcontainer/cgroups"
	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
	"github.com/tsturzl/youki/libcontainer/namespaces"
	"github.com/tsturzl/youki/libcontainer/rootless"
	"github.com/tsturzl/youki/libcontainer/utils"
)

// MountpointFunc resolves a cgroups.Controller to its hierarchy mount
// point, normally cgroups.FindMountpoint.
type MountpointFunc func(cgroups.Controller) (string, error)

// CreateOptions are the Launcher-side knobs the `create` CLI command
// collects from flags (§6).
type CreateOptions struct {
	RootDir       string
	PidFile       string
	ConsoleSocket string
}

// Create drives the full S0->S1->S2 choreography for one `create`
// invocation. On success the returned State has status `created` and is
// already persisted to "<RootDir>/<id>/state.json".
func Create(cfg *configs.Config, mgr *cgroups.Manager, mountpoint MountpointFunc, opts CreateOptions) (*State, error) {
	if cfg.ContainerID == "" {
		return nil, lcerr.NewError(lcerr.ConfigInvalid, "container id must not be empty")
	}
	if StateExists(opts.RootDir, cfg.ContainerID) {
		return nil, lcerr.NewErrorf(lcerr.StateConflict, "container %s already exists", cfg.ContainerID)
	}
	if err := rootless.Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Process.ConsoleSocket = opts.ConsoleSocket
	mapBin, err := rootless.LookupMapBinaries(cfg)
	if err != nil {
		return nil, err
	}

	containerRoot := opts.RootDir + "/" + cfg.ContainerID
	if err := os.MkdirAll(containerRoot, 0o711); err != nil {
		return nil, errors.Wrap(err, "create container root")
	}

	state, err := create(cfg, mgr, mountpoint, opts, mapBin, containerRoot)
	if err != nil {
		_ = os.RemoveAll(containerRoot)
		_ = mgr.Destroy(mountpoint)
		return nil, err
	}
	return state, nil
}

func create(cfg *configs.Config, mgr *cgroups.Manager, mountpoint MountpointFunc, opts CreateOptions, mapBin *rootless.Binaries, containerRoot string) (*State, error) {
	notifyListener, notifyFile, err := CreateNotifySocket(containerRoot)
	if err != nil {
		return nil, err
	}
	defer notifyListener.Close()

	parentParent, parentChild, err := utils.NewSockPair("parent")
	if err != nil {
		return nil, err
	}
	defer parentParent.Close()

	readyR, readyW, err := utils.NewReadyPipe()
	if err != nil {
		return nil, err
	}
	defer readyR.Close()

	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Env = append(os.Environ(), StageEnvVar+"="+stageIntermediate)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.ExtraFiles = []*os.File{parentChild, readyW, notifyFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: namespaces.BootstrapFlags(cfg.Namespaces),
	}

	if err := cmd.Start(); err != nil {
		return nil, lcerr.NewErrorf(lcerr.SysCall, "clone intermediate: %v", err)
	}
	parentChild.Close()
	readyW.Close()
	notifyFile.Close()

	logrus.WithField("container", cfg.ContainerID).WithField("pid", cmd.Process.Pid).Debug("S0: intermediate cloned")

	if err := utils.EncodeJSON(parentParent, bootstrapPayload{Config: cfg, ContainerRoot: containerRoot}); err != nil {
		killAndReap(cmd)
		return nil, errors.Wrap(err, "send bootstrap config to intermediate")
	}

	if err := waitChildAlive(readyR); err != nil {
		killAndReap(cmd)
		return nil, err
	}

	if cfg.Namespaces.Contains(configs.NEWUSER) {
		if err := handleIDMapRequest(parentParent, cfg, mapBin, cmd.Process.Pid); err != nil {
			killAndReap(cmd)
			return nil, err
		}
	}

	msg, err := recvMsg(parentParent)
	if err != nil {
		killAndReap(cmd)
		return nil, lcerr.NewErrorf(lcerr.Fatal, "intermediate process died before reporting init pid: %v", err)
	}
	switch msg.Type {
	case msgError:
		killAndReap(cmd)
		return nil, lcerr.NewErrorf(lcerr.Fatal, "init failed: %s", msg.Error)
	case msgChildReady:
		// fallthrough below
	default:
		killAndReap(cmd)
		return nil, lcerr.NewErrorf(lcerr.Fatal, "unexpected sync message %q waiting for init pid", msg.Type)
	}
	initPid := msg.Pid

	logrus.WithField("container", cfg.ContainerID).WithField("initPid", initPid).Debug("S0: init ready, registering cgroup")

	// §4.1 S1 tail: "registers the pid with the cgroup manager (which
	// also applies resource limits if not rootless)". An unprivileged
	// user cannot create cgroup directories or write cgroup.procs under
	// the controller mounts, so resource application is skipped entirely
	// for rootless containers rather than attempted and ignored.
	if !cfg.Rootless {
		if err := mgr.Apply(mountpoint, &cfg.Cgroup.Resources, initPid); err != nil {
			killInit(initPid)
			return nil, lcerr.NewErrorf(lcerr.CgroupUnavailable, "applying cgroup configuration: %v", err)
		}
	}

	if opts.PidFile != "" {
		if err := os.WriteFile(opts.PidFile, []byte(strconv.Itoa(initPid)), 0o644); err != nil {
			killInit(initPid)
			return nil, errors.Wrap(err, "write pid file")
		}
	}

	if cfg.Hooks != nil {
		hookState := &State{OCIVersion: ociVersion, ID: cfg.ContainerID, Status: StatusCreating, Pid: initPid, Bundle: cfg.Bundle, Annotations: cfg.Annotations}
		if err := RunHooks(cfg.Hooks.CreateRuntime, hookState); err != nil {
			killInit(initPid)
			return nil, err
		}
	}

	state := NewCreatingState(cfg.ContainerID, cfg.Bundle, cfg.Annotations)
	state.Pid = initPid
	if err := state.Transition(StatusCreated); err != nil {
		killInit(initPid)
		return nil, err
	}
	if err := SaveState(opts.RootDir, state); err != nil {
		killInit(initPid)
		return nil, err
	}

	// Reap the Intermediate: its only remaining job was forwarding the
	// pid, and it has already exited (S1 tail) by the time ChildReady
	// arrived on our channel.
	_ = cmd.Wait()

	return state, nil
}

// waitChildAlive is the Launcher's bounded (WAIT_FOR_CHILD=5s) read on
// the ready-event pipe, an early liveness check distinct from the later
// unbounded wait for the tagged ChildReady message.
func waitChildAlive(r *os.File) error {
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := r.Read(buf)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return lcerr.NewErrorf(lcerr.Fatal, "intermediate process did not signal readiness: %v", err)
		}
		return nil
	case <-time.After(waitForChild):
		return lcerr.NewErrorf(lcerr.Fatal, "timed out after %s waiting for intermediate readiness", waitForChild)
	}
}

// handleIDMapRequest answers the Intermediate's id-mapping handshake
// (§4.5, §4.1 S1): Intermediate sends IdentifierMapping, the Launcher
// writes uid_map/gid_map (directly or via newuidmap/newgidmap) for
// intermediatePid, then acknowledges.
func handleIDMapRequest(ch *os.File, cfg *configs.Config, mapBin *rootless.Binaries, intermediatePid int) error {
	msg, err := recvMsgTimeout(ch, waitForMapping)
	if err != nil {
		return err
	}
	if msg.Type != msgIdentifierMapping {
		return lcerr.NewErrorf(lcerr.Fatal, "expected IdentifierMapping request, got %q", msg.Type)
	}
	if err := WriteIDMappings(cfg, mapBin, intermediatePid); err != nil {
		_ = sendMsg(ch, message{Type: msgError, Error: err.Error()})
		return err
	}
	return sendMsg(ch, message{Type: msgMappingAck})
}

func killAndReap(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}

func killInit(pid int) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = p.Kill()
	_, _ = p.Wait()
}
