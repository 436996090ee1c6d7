package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli"
)

var stateCommand = cli.Command{
	Name:      "state",
	Usage:     "print a container's current state",
	ArgsUsage: "<container-id>",
	Action: func(ctx *cli.Context) error {
		id := ctx.Args().First()
		if id == "" {
			return cli.NewExitError("container id is required", 2)
		}

		state, err := loadState(ctx, id)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	},
}
