package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/tsturzl/youki/libcontainer"
)

var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "remove a stopped container's state and cgroup",
	ArgsUsage: "<container-id>",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force, f",
			Usage: "kill the container first if it is still running",
		},
	},
	Action: func(ctx *cli.Context) error {
		id := ctx.Args().First()
		if id == "" {
			return cli.NewExitError("container id is required", 2)
		}

		state, err := loadState(ctx, id)
		if err != nil {
			return err
		}

		if state.Status != libcontainer.StatusStopped {
			if !ctx.Bool("force") {
				return cli.NewExitError("container "+id+" is not stopped", 3)
			}
			if p, err := os.FindProcess(state.Pid); err == nil {
				_ = p.Kill()
				_, _ = p.Wait()
			}
		}

		cfg, err := reloadConfig(state)
		if err != nil {
			return err
		}

		mgr := newCgroupManager(cfg.Cgroup.Path)
		if err := mgr.Destroy(mountpointFunc); err != nil {
			return err
		}

		if cfg.Hooks != nil {
			if err := libcontainer.RunHooks(cfg.Hooks.Poststop, state); err != nil {
				return err
			}
		}

		return os.RemoveAll(containerRoot(ctx, id))
	},
}
