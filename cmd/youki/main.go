// Command youki is the CLI entrypoint: an urfave/cli App wiring the
// create/start/state/kill/delete subcommands (§6), grounded on the
// teacher's spec.go command-wiring style.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/tsturzl/youki/libcontainer"
	"github.com/tsturzl/youki/libcontainer/lcerr"
)

func init() {
	// Stage dispatch must happen before urfave/cli ever parses argv: a
	// re-exec'd Intermediate/Init invocation carries the stage env var
	// and no CLI flags at all (§4.1: "dispatches on an environment
	// variable read at process entry, before normal argument parsing").
	if stage := os.Getenv(libcontainer.StageEnvVar); stage != "" {
		libcontainer.RunStage(stage)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "youki"
	app.Usage = "an OCI-compatible container runtime"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "root, r",
			Value: "/run/youki",
			Usage: "root directory for container state",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "set the log file path (default: stderr)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "set the log format (text|json)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug-level logging",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		return configureLogging(ctx)
	}

	app.Commands = []cli.Command{
		createCommand,
		startCommand,
		stateCommand,
		killCommand,
		deleteCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func configureLogging(ctx *cli.Context) error {
	if ctx.GlobalBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	switch ctx.GlobalString("log-format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return lcerr.NewErrorf(lcerr.ConfigInvalid, "unknown log format %q", ctx.GlobalString("log-format"))
	}

	if path := ctx.GlobalString("log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return lcerr.NewErrorf(lcerr.ConfigInvalid, "open log file %s: %v", path, err)
		}
		logrus.SetOutput(f)
	}
	return nil
}

// exitCode maps the §7 error taxonomy to a process exit status, so
// scripts driving this CLI can distinguish classes of failure without
// scraping stderr.
func exitCode(err error) int {
	switch lcerr.Code(err) {
	case lcerr.ConfigInvalid:
		return 2
	case lcerr.StateConflict:
		return 3
	case lcerr.CgroupUnavailable:
		return 4
	case lcerr.HookFailed, lcerr.HookTimeout:
		return 5
	case lcerr.ProcfsCompromised:
		return 6
	case lcerr.SysCall:
		return 7
	default:
		return 1
	}
}
