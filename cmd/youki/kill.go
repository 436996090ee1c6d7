package main

import (
	"os"
	"strconv"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/tsturzl/youki/libcontainer"
)

var killCommand = cli.Command{
	Name:      "kill",
	Usage:     "send a signal to a running container's init process",
	ArgsUsage: "<container-id> [signal]",
	Action: func(ctx *cli.Context) error {
		id := ctx.Args().First()
		if id == "" {
			return cli.NewExitError("container id is required", 2)
		}

		sig, err := parseSignal(ctx.Args().Get(1))
		if err != nil {
			return err
		}

		state, err := loadState(ctx, id)
		if err != nil {
			return err
		}
		if state.Status != libcontainer.StatusRunning && state.Status != libcontainer.StatusCreated {
			return cli.NewExitError("container "+id+" is not running", 3)
		}

		proc, err := os.FindProcess(state.Pid)
		if err != nil {
			return err
		}
		return proc.Signal(sig)
	},
}

func parseSignal(s string) (os.Signal, error) {
	if s == "" {
		return unix.SIGTERM, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return unix.Signal(n), nil
	}
	if sig, ok := signalsByName[s]; ok {
		return sig, nil
	}
	return nil, cli.NewExitError("unknown signal "+s, 2)
}

var signalsByName = map[string]unix.Signal{
	"SIGHUP":  unix.SIGHUP,
	"SIGINT":  unix.SIGINT,
	"SIGQUIT": unix.SIGQUIT,
	"SIGKILL": unix.SIGKILL,
	"SIGUSR1": unix.SIGUSR1,
	"SIGUSR2": unix.SIGUSR2,
	"SIGTERM": unix.SIGTERM,
	"SIGCONT": unix.SIGCONT,
	"SIGSTOP": unix.SIGSTOP,
}
