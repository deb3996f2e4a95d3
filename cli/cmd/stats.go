package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/cli/reader"
	"github.com/justapithecus/encore/cli/render"
	"github.com/justapithecus/encore/cli/tui"
	"github.com/justapithecus/encore/lode"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (runs, run, metrics)",
		Subcommands: []*cli.Command{
			statsRunsCommand(),
			statsRunCommand(),
			statsMetricsCommand(),
		},
	}
}

func statsRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Aggregate a directory of run reports",
		Flags: append(TUIReadOnlyFlags(),
			&cli.StringFlag{Name: "reports", Usage: "Directory of run report files", Required: true},
		),
		Action: statsRunsAction,
	}
}

func statsRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	reports, invalid, err := reader.LoadReports(c.String("reports"))
	if err != nil {
		return err
	}
	stats := reader.AggregateRuns(reports, len(invalid))

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsRuns, stats)
	}
	return r.Render(stats)
}

func statsRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show one run report",
		ArgsUsage: "<report>",
		Flags:     TUIReadOnlyFlags(),
		Action:    statsRunAction,
	}
}

func statsRunAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("report path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := reader.ReadReport(c.Args().First())
	if err != nil {
		return err
	}
	detail := reader.Detail(report)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsRun, detail)
	}
	return r.Render(detail)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Show the metrics snapshot a run staged (latest by default)",
		Flags: append(append(TUIReadOnlyFlags(), StagingReadFlags()...),
			&cli.StringFlag{Name: "run-id", Usage: "Read metrics for a specific run ID"},
		),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to initialize staging reader: %w", err)
	}

	record, err := lode.QueryLatestMetrics(ctx, ds, c.String("run-id"))
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return fmt.Errorf("failed to read staged metrics: %w", err)
	}

	snapshot, err := reader.ParseMetricsRecord(record)
	if err != nil {
		return fmt.Errorf("failed to parse metrics record: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsMetrics, snapshot)
	}
	return r.Render(snapshot)
}
