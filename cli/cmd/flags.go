// Package cmd provides CLI commands for the ascent binary.
package cmd

import "github.com/urfave/cli/v2"

// DefaultConfigPath is where the stage commands look for settings unless
// --config points elsewhere.
const DefaultConfigPath = "/etc/ascent/ascent.yaml"

// Shared flags for the read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// StageFlags returns the flags shared by every stage command. CLI flags
// override config file values.
func StageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the ascent config file",
			Value:   DefaultConfigPath,
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Collect solver debug data",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Verbose package manager output",
		},
		&cli.StringFlag{
			Name:  "target-release",
			Usage: "Full target release (e.g. 9.4)",
		},
		&cli.StringFlag{
			Name:  "target-major",
			Usage: "Target OS major version (8 or 9)",
		},
		&cli.BoolFlag{
			Name:  "legacy-space-handling",
			Usage: "Use the pre-overlay disk-space failure strategy",
		},
		&cli.BoolFlag{
			Name:  "skip-subscription-manager",
			Usage: "Disable the subscription-manager plugin in every stage",
		},
		&cli.BoolFlag{
			Name:  "no-gpg-check",
			Usage: "Skip package signature verification",
		},
		&cli.StringFlag{
			Name:  "state-dir",
			Usage: "Directory holding the stage journal",
		},
		&cli.StringFlag{
			Name:  "log-dir",
			Usage: "Directory receiving plan archives and debug data",
		},
	}
}
