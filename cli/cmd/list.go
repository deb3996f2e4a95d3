package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/cli/reader"
	"github.com/justapithecus/encore/cli/render"
	"github.com/justapithecus/encore/types"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	return render.IsTTY(os.Stderr)
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, one row per entity.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (runs)",
		Subcommands: []*cli.Command{
			listRunsCommand(),
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs from a directory of run reports, newest first",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "reports",
				Usage:    "Directory of run report files",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Filter by outcome: success, partial, load_failure, canceled",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	opts := reader.ListRunsOptions{
		Outcome: c.String("outcome"),
		Limit:   c.Int("limit"),
	}
	if opts.Outcome != "" && !types.OutcomeStatus(opts.Outcome).Valid() {
		return cli.Exit(fmt.Sprintf("invalid --outcome %q", opts.Outcome), 1)
	}
	if opts.Limit < 0 {
		return cli.Exit("--limit must be >= 0", 1)
	}

	reports, invalid, err := reader.LoadReports(c.String("reports"))
	if err != nil {
		return err
	}
	for _, inv := range invalid {
		fmt.Fprintf(os.Stderr, "Warning: skipping %s: %s\n", inv.Path, inv.Error)
	}

	results := reader.ListRuns(reports, opts)

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
