// hooks.go implements §4.7: external hook executables invoked at named
// lifecycle points, each fed the current container state JSON on stdin.
package libcontainer

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/tsturzl/youki/libcontainer/configs"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

// RunHook runs a single hook against state, per §4.7: clear ambient env,
// apply the hook's own env, write the state JSON to stdin, then wait
// (bounded by hook.Timeout if set).
func RunHook(hook configs.Hook, state *State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal state for hook stdin")
	}

	cmd := exec.Command(hook.Path, hook.Args...)
	// ambient env is intentionally not inherited: a nil Env would make
	// os/exec fall back to this process's environment.
	cmd.Env = append([]string{}, hook.Env...)
	cmd.Stdin = bytes.NewReader(payload)

	if hook.Timeout == nil {
		if err := cmd.Run(); err != nil {
			return classifyHookErr(hook.Path, err)
		}
		return nil
	}

	if err := cmd.Start(); err != nil {
		return lcerr.NewErrorf(lcerr.HookFailed, "spawn hook %s: %v", hook.Path, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return classifyHookErr(hook.Path, err)
		}
		return nil
	case <-time.After(*hook.Timeout):
		_ = cmd.Process.Kill()
		<-done // reap, avoid a zombie
		return lcerr.NewErrorf(lcerr.HookTimeout, "hook %s exceeded timeout %s", hook.Path, *hook.Timeout)
	}
}

// RunHooks runs every hook in hooks in order, stopping at the first
// failure (§4.7: "Non-zero exit, signal-termination, and spawn failure
// are all fatal to the enclosing operation").
func RunHooks(hooks []configs.Hook, state *State) error {
	for _, h := range hooks {
		if err := RunHook(h, state); err != nil {
			return err
		}
	}
	return nil
}

func classifyHookErr(path string, err error) error {
	return lcerr.NewErrorf(lcerr.HookFailed, "hook %s failed: %v", path, err)
}
