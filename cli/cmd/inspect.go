package cmd

import (
	"context"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/cli/render"
	"github.com/justapithecus/encore/cli/tui"
	"github.com/justapithecus/encore/lode"
	"github.com/justapithecus/encore/types"
)

// readTimeout bounds a single staging read.
const readTimeout = 30 * time.Second

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of staged data.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect staged data (rows)",
		Subcommands: []*cli.Command{
			inspectRowsCommand(),
		},
	}
}

func inspectRowsCommand() *cli.Command {
	flags := append(TUIReadOnlyFlags(), StagingReadFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "table", Usage: "Filter by table: artists, songs, users, time, songplays"},
		&cli.StringFlag{Name: "run-id", Usage: "Filter by run ID"},
		&cli.StringFlag{Name: "source", Usage: "Filter by source partition"},
		&cli.StringFlag{Name: "day", Usage: "Filter by day partition (YYYY-MM-DD)"},
		&cli.IntFlag{Name: "limit", Usage: "Maximum number of rows to return (0 = no limit)", Value: 50},
	)
	return &cli.Command{
		Name:   "rows",
		Usage:  "Show rows staged by earlier runs",
		Flags:  flags,
		Action: inspectRowsAction,
	}
}

func inspectRowsAction(c *cli.Context) error {
	filter := lode.RowFilter{
		Table:  c.String("table"),
		RunID:  c.String("run-id"),
		Source: c.String("source"),
		Day:    c.String("day"),
		Limit:  c.Int("limit"),
	}
	if filter.Table != "" && !types.Table(filter.Table).IsKnown() {
		return cli.Exit(fmt.Sprintf("invalid --table %q", filter.Table), 1)
	}
	if filter.Limit < 0 {
		return cli.Exit("--limit must be >= 0", 1)
	}

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

	rows, err := lode.QueryRows(ctx, ds, filter)
	if err != nil {
		return fmt.Errorf("failed to read staged rows: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectRows, rows)
	}
	return r.Render(rows)
}

// buildReadDataset creates a Lode dataset for reading from the staging flags.
func buildReadDataset(ctx context.Context, c *cli.Context) (lodelibrary.Dataset, error) {
	s := stagingChoice{
		backend:     c.String("staging-backend"),
		path:        c.String("staging-path"),
		dataset:     c.String("staging-dataset"),
		region:      c.String("staging-region"),
		endpoint:    c.String("staging-endpoint"),
		s3PathStyle: c.Bool("staging-s3-path-style"),
	}
	switch s.backend {
	case "fs":
		return lode.NewDatasetFS(s.dataset, s.path)
	case "s3":
		factory, err := buildStagingFactory(ctx, s)
		if err != nil {
			return nil, err
		}
		return lode.NewDataset(s.dataset, factory)
	default:
		return nil, fmt.Errorf("unsupported staging-backend: %s (must be fs or s3)", s.backend)
	}
}
