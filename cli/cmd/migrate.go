package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	encoreconfig "github.com/justapithecus/encore/cli/config"
	"github.com/justapithecus/encore/cli/render"
	"github.com/justapithecus/encore/runtime"
	"github.com/justapithecus/encore/store"
)

// MigrateCommand returns the migrate command with subcommands.
// Migrate is the only command besides run that writes to the store.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the relational schema (up, down, reset, status)",
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Flags:  storeFlags(),
				Action: migrateAction(migrateUp),
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Flags:  storeFlags(),
				Action: migrateAction(migrateDown),
			},
			{
				Name:   "reset",
				Usage:  "Roll back every migration (drops all tables)",
				Flags:  storeFlags(),
				Action: migrateAction(migrateReset),
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Flags:  append(storeFlags(), ReadOnlyFlags()...),
				Action: migrateStatusAction,
			},
		},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Path to encore.yaml"},
		&cli.StringFlag{Name: "store-driver", Usage: "Store driver: sqlite or postgres", Value: string(store.DriverSQLite)},
		&cli.StringFlag{Name: "store-dsn", Usage: "Store DSN (sqlite: file path, postgres: connection URL)"},
	}
}

// openStore resolves store flags over config and opens the store.
func openStore(c *cli.Context) (*store.Store, error) {
	var cfg *encoreconfig.Config
	if path := c.String("config"); path != "" {
		loaded, err := encoreconfig.Load(path)
		if err != nil {
			return nil, cli.Exit(err.Error(), runtime.ExitCodeInvalidConfig)
		}
		cfg = loaded
	}

	sc := configVal(cfg, func(c *encoreconfig.Config) encoreconfig.StoreConfig { return c.Store })
	driver, err := store.ParseDriver(resolveString(c, "store-driver", sc.Driver))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid --store-driver: %v", err), runtime.ExitCodeInvalidConfig)
	}

	st, err := store.Open(c.Context, store.Config{Driver: driver, DSN: resolveString(c, "store-dsn", sc.DSN)})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open store: %v", err), runtime.ExitCodeInvalidConfig)
	}
	return st, nil
}

type migrateFunc func(ctx context.Context, st *store.Store, c *cli.Context) error

func migrateAction(fn migrateFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		st, err := openStore(c)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := fn(c.Context, st, c); err != nil {
			return cli.Exit(err.Error(), runtime.ExitCodeLoadFailure)
		}
		return nil
	}
}

func migrateUp(ctx context.Context, st *store.Store, c *cli.Context) error {
	n, err := st.MigrateUp(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "applied %d migration(s)\n", n)
	return nil
}

func migrateDown(ctx context.Context, st *store.Store, c *cli.Context) error {
	if err := st.MigrateDown(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "rolled back 1 migration")
	return nil
}

func migrateReset(ctx context.Context, st *store.Store, c *cli.Context) error {
	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("migrate reset: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "rolled back all migrations")
	return nil
}

func migrateStatusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for migrate commands", 1)
	}

	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	status, err := st.Status(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("migrate status: %v", err), runtime.ExitCodeLoadFailure)
	}
	return r.Render(status)
}
