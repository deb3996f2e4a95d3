package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/batch"
	"github.com/justapithecus/encore/cache"
	"github.com/justapithecus/encore/catalog"
	"github.com/justapithecus/encore/cli/render"
	"github.com/justapithecus/encore/events"
	"github.com/justapithecus/encore/validate"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools and never write.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (cache, validate)",
		Subcommands: []*cli.Command{
			debugCacheCommand(),
			debugValidateCommand(),
		},
	}
}

// CacheInfo describes a catalog cache snapshot.
type CacheInfo struct {
	Path          string `json:"path"`
	FormatVersion int    `json:"format_version"`
	Artists       int    `json:"artists"`
	Songs         int    `json:"songs"`
}

func debugCacheCommand() *cli.Command {
	return &cli.Command{
		Name:      "cache",
		Usage:     "Describe a catalog cache snapshot",
		ArgsUsage: "<path>",
		Flags:     ReadOnlyFlags(),
		Action:    debugCacheAction,
	}
}

func debugCacheAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("cache path required", 1)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	cat, err := cache.Load(path)
	if err != nil {
		if cache.IsFrameError(err, cache.FrameErrorVersion) {
			return cli.Exit(fmt.Sprintf("unsupported cache format: %v", err), 1)
		}
		return cli.Exit(fmt.Sprintf("failed to load cache: %v", err), 1)
	}

	return r.Render(CacheInfo{
		Path:          path,
		FormatVersion: cache.FormatVersion,
		Artists:       len(cat.Artists),
		Songs:         len(cat.Songs),
	})
}

// ValidateResult reports how one input file fares against a family schema.
type ValidateResult struct {
	Path    string   `json:"path"`
	Family  string   `json:"family"`
	Records int      `json:"records"`
	Valid   bool     `json:"valid"`
	Rows    int      `json:"rows"`
	Reason  string   `json:"reason,omitempty"`
	Error   string   `json:"error,omitempty"`
	Columns []string `json:"columns"`
}

func debugValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate one input file without loading it",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "family",
				Usage: "Input family: songs or logs",
				Value: "songs",
			},
		),
		Action: debugValidateAction,
	}
}

func debugValidateAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("file path required", 1)
	}
	path := c.Args().First()

	schema, err := familySchema(c.String("family"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	return r.Render(validateFile(path, c.String("family"), schema))
}

func familySchema(family string) (validate.Schema, error) {
	switch family {
	case "songs":
		return catalog.Schema, nil
	case "logs":
		return events.Schema, nil
	default:
		return validate.Schema{}, fmt.Errorf("invalid --family %q (must be songs or logs)", family)
	}
}

// validateFile runs one file through the same read and validation steps a
// run applies to each batch.
func validateFile(path, family string, schema validate.Schema) ValidateResult {
	res := ValidateResult{Path: path, Family: family, Columns: schema.ColumnNames()}

	b, err := batch.ReadFile(0, path)
	res.Records = len(b.Records)
	if err != nil {
		res.Reason = validate.Reason(err)
		res.Error = err.Error()
		return res
	}

	table, err := validate.ValidateBatch(b, schema)
	if err != nil {
		res.Reason = validate.Reason(err)
		res.Error = err.Error()
		return res
	}
	res.Valid = true
	res.Rows = table.Len()
	return res
}
