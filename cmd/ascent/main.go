// Package main provides the ascent CLI entrypoint.
//
// Usage:
//
//	ascent <command> [options]
//
// The stage commands (check, download, dry-run, upgrade) drive the
// upgrade transaction pipeline; plan, status, and version are read-only.
//
// Stage exit codes:
//   - 0: stage succeeded
//   - 1: package manager failure
//   - 2: provisioning or launch failure
//   - 3: not enough disk space
//   - 4: transaction workaround failed
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ascent-project/ascent/cli/cmd"
	"github.com/ascent-project/ascent/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ascent",
		Usage:          "In-place OS major version upgrade orchestrator",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CheckCommand(),
			cmd.DownloadCommand(),
			cmd.DryRunCommand(),
			cmd.UpgradeCommand(),
			cmd.PlanCommand(),
			cmd.StatusCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() so the stage
// failure categories reach the caller.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
