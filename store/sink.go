package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/justapithecus/encore/policy"
	"github.com/justapithecus/encore/types"
)

// conflictClause is the upsert behavior per table. Users refresh their
// mutable attributes; everything else keeps the first loaded version.
var conflictClause = map[types.Table]string{
	types.TableArtists:   `ON CONFLICT ("artist_id") DO NOTHING`,
	types.TableSongs:     `ON CONFLICT ("song_id") DO NOTHING`,
	types.TableUsers:     `ON CONFLICT ("user_id") DO UPDATE SET "gender" = excluded."gender", "level" = excluded."level"`,
	types.TableTime:      `ON CONFLICT ("start_time") DO NOTHING`,
	types.TableSongplays: `ON CONFLICT ("start_time", "user_id", "session_id") DO NOTHING`,
}

// Sink upserts row sets into the store. It implements policy.Sink.
//
// Each WriteRows call runs in one transaction and each row in its own
// savepoint, so a rejected row never aborts its siblings.
type Sink struct {
	store *Store
	stmts map[types.Table]string
}

// NewSink creates a sink over s. Closing the sink leaves the store open.
func NewSink(s *Store) *Sink {
	stmts := make(map[types.Table]string, len(conflictClause))
	for _, t := range types.LoadOrder {
		stmts[t] = upsertSQL(s.driver, t)
	}
	return &Sink{store: s, stmts: stmts}
}

func upsertSQL(driver Driver, table types.Table) string {
	cols := types.Columns(table)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		if driver == DriverPostgres {
			params[i] = fmt.Sprintf("$%d", i+1)
		} else {
			params[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		quoteIdent(string(table)),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
		conflictClause[table],
	)
}

// WriteRows implements policy.Sink.
func (s *Sink) WriteRows(ctx context.Context, table types.Table, keys []string, rows []types.Row) (rejected []policy.RowError, err error) {
	if len(rows) == 0 {
		return nil, nil
	}
	stmt, ok := s.stmts[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s write: %w", table, err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowErr, err := s.writeRow(ctx, tx, stmt, row)
		if err != nil {
			return nil, fmt.Errorf("write %s row %q: %w", table, keys[i], err)
		}
		if rowErr != nil {
			rejected = append(rejected, policy.RowError{Table: table, Key: keys[i], Err: rowErr})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s write: %w", table, err)
	}
	return rejected, nil
}

// writeRow executes one upsert inside a savepoint. A row-local failure is
// returned as rowErr with the savepoint rolled back; anything else is fatal.
func (s *Sink) writeRow(ctx context.Context, tx *sql.Tx, stmt string, row types.Row) (rowErr, err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT encore_row"); err != nil {
		return nil, err
	}

	if _, execErr := tx.ExecContext(ctx, stmt, bindValues(row)...); execErr != nil {
		if ctx.Err() != nil || !rowLocal(execErr) {
			return nil, execErr
		}
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT encore_row"); err != nil {
			return nil, multierr.Append(execErr, err)
		}
		rowErr = execErr
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT encore_row"); err != nil {
		return nil, err
	}
	return rowErr, nil
}

// bindValues normalizes a load tuple for database/sql.
func bindValues(row types.Row) []any {
	args := make([]any, len(row))
	for i, v := range row {
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		args[i] = v
	}
	return args
}

// Close implements policy.Sink. The store's connection stays open.
func (s *Sink) Close() error {
	return nil
}

var _ policy.Sink = (*Sink)(nil)
