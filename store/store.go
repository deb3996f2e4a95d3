// Package store loads row sets into the relational analytics store.
//
// SQLite (modernc.org/sqlite) is the default driver; Postgres is reached
// through pgx's database/sql adapter. Both dialects share one schema,
// managed by embedded goose migrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/justapithecus/encore/types"
)

// Driver names a supported database.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultSQLiteDSN is used when the sqlite driver is selected without a DSN.
const DefaultSQLiteDSN = "encore.db"

// ErrUnknownDriver is returned for a driver other than sqlite or postgres.
var ErrUnknownDriver = errors.New("unknown store driver")

// ParseDriver parses a driver name. Empty selects sqlite.
func ParseDriver(s string) (Driver, error) {
	switch s {
	case "", string(DriverSQLite):
		return DriverSQLite, nil
	case string(DriverPostgres), "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, s)
	}
}

// sqlName returns the database/sql driver name registered for d.
func (d Driver) sqlName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Config selects and addresses the database.
type Config struct {
	Driver Driver
	DSN    string
}

// Store owns the database connection pool.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := cfg.DSN
	if dsn == "" {
		if driver != DriverSQLite {
			return nil, errors.New("store DSN is required for postgres")
		}
		dsn = DefaultSQLiteDSN
	}

	db, err := sql.Open(driver.sqlName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection keeps pragmas and savepoints on the same handle.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Driver returns the store's driver.
func (s *Store) Driver() Driver { return s.driver }

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Counts returns the row count of every table.
func (s *Store) Counts(ctx context.Context) (map[types.Table]int64, error) {
	out := make(map[types.Table]int64, len(types.LoadOrder))
	for _, t := range types.LoadOrder {
		var n int64
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(string(t)))
		if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
