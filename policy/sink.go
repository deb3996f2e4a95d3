package policy

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/justapithecus/encore/types"
)

// RowError is a sink-reported failure for one row. It never affects sibling
// rows in the same write.
type RowError struct {
	Table types.Table
	// Key is the row identity (types.Fact.Key).
	Key string
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %q rejected: %v", e.Table, e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e RowError) Unwrap() error { return e.Err }

// Sink abstracts persistence for policies. Implementations may write to a
// relational store, a staging dataset, or a stub for tests.
//
// Writes are batch-oriented so strict (batch of 1) and buffered policies
// share one interface.
type Sink interface {
	// WriteRows persists rows for one table in order. keys is parallel to
	// rows. Row-level failures are reported in the returned slice; a
	// non-nil error means the sink itself failed and nothing further
	// should be attempted.
	WriteRows(ctx context.Context, table types.Table, keys []string, rows []types.Row) ([]RowError, error)

	// Close releases any resources held by the sink.
	Close() error
}

// Tee returns a sink that writes to primary and then to every mirror.
// Row rejections come from primary only; a failure in any sink is fatal.
func Tee(primary Sink, mirrors ...Sink) Sink {
	return &teeSink{primary: primary, mirrors: mirrors}
}

type teeSink struct {
	primary Sink
	mirrors []Sink
}

func (t *teeSink) WriteRows(ctx context.Context, table types.Table, keys []string, rows []types.Row) ([]RowError, error) {
	rejected, err := t.primary.WriteRows(ctx, table, keys, rows)
	if err != nil {
		return rejected, err
	}
	for _, m := range t.mirrors {
		if _, err := m.WriteRows(ctx, table, keys, rows); err != nil {
			return rejected, err
		}
	}
	return rejected, nil
}

func (t *teeSink) Close() error {
	err := t.primary.Close()
	for _, m := range t.mirrors {
		err = multierr.Append(err, m.Close())
	}
	return err
}

// WriteOp records one WriteRows call for ordering assertions.
type WriteOp struct {
	Table types.Table
	Keys  []string
	Rows  []types.Row
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// RowsWritten is the total count of rows offered.
	RowsWritten int64
	// Writes is the number of WriteRows calls.
	Writes int64
	// Closed indicates whether Close was called.
	Closed bool

	// WriteOrder tracks every call in order.
	WriteOrder []WriteOp

	// RejectKeys makes the sink reject rows whose key is present, with the
	// mapped error.
	RejectKeys map[string]error

	// ErrorOnWrite, if non-nil, is returned by WriteRows.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{RejectKeys: make(map[string]error)}
}

// WriteRows records the rows without persisting.
func (s *StubSink) WriteRows(_ context.Context, table types.Table, keys []string, rows []types.Row) ([]RowError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return nil, s.ErrorOnWrite
	}

	s.Writes++
	s.RowsWritten += int64(len(rows))
	s.WriteOrder = append(s.WriteOrder, WriteOp{Table: table, Keys: keys, Rows: rows})

	var rejected []RowError
	for _, k := range keys {
		if err, ok := s.RejectKeys[k]; ok {
			rejected = append(rejected, RowError{Table: table, Key: k, Err: err})
		}
	}
	return rejected, nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		RowsWritten: s.RowsWritten,
		Writes:      s.Writes,
		Closed:      s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	RowsWritten int64
	Writes      int64
	Closed      bool
}
