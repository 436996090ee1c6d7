package main

import (
	"github.com/urfave/cli"

	"github.com/tsturzl/youki/libcontainer"
)

var startCommand = cli.Command{
	Name:      "start",
	Usage:     "start a created container's payload process",
	ArgsUsage: "<container-id>",
	Action: func(ctx *cli.Context) error {
		id := ctx.Args().First()
		if id == "" {
			return cli.NewExitError("container id is required", 2)
		}

		state, err := loadState(ctx, id)
		if err != nil {
			return err
		}
		if state.Status != libcontainer.StatusCreated {
			return cli.NewExitError("container "+id+" is not in the created state", 3)
		}

		root := containerRoot(ctx, id)
		if err := libcontainer.SendStart(root); err != nil {
			return err
		}

		if err := state.Transition(libcontainer.StatusRunning); err != nil {
			return err
		}
		if err := libcontainer.SaveState(ctx.GlobalString("root"), state); err != nil {
			return err
		}

		cfg, err := reloadConfig(state)
		if err != nil {
			return err
		}
		if cfg.Hooks != nil {
			return libcontainer.RunHooks(cfg.Hooks.Poststart, state)
		}
		return nil
	},
}
