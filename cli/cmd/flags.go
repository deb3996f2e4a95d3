// Package cmd provides CLI commands for the encore binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/lode"
)

// Shared flags for read-only commands.
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

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// StagingReadFlags returns the flags locating a staging dataset for reads.
func StagingReadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "staging-backend", Usage: "Staging backend: fs or s3", Value: "fs"},
		&cli.StringFlag{Name: "staging-path", Usage: "Staging path (fs: directory, s3: bucket/prefix)", Required: true},
		&cli.StringFlag{Name: "staging-dataset", Usage: "Staging dataset ID", Value: lode.DefaultDataset},
		&cli.StringFlag{Name: "staging-region", Usage: "AWS region for the s3 backend"},
		&cli.StringFlag{Name: "staging-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "staging-s3-path-style", Usage: "Force path-style S3 addressing"},
	}
}
