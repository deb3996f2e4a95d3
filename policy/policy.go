// Package policy controls how load-ready row sets reach a Sink.
//
// A policy never drops rows. Row-level rejections reported by the sink are
// recorded and the remaining rows continue; a sink-level failure is returned
// to the caller and ends the load.
package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/encore/types"
)

// Policy defines the load policy interface.
type Policy interface {
	// Ingest hands one table's rows to the policy. Row rejections are
	// recorded, not returned. A returned error is fatal to the load.
	Ingest(ctx context.Context, set types.RowSet) error

	// Flush writes any buffered rows.
	Flush(ctx context.Context) error

	// Close releases policy resources and closes the sink.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats

	// Rejections returns every row rejection recorded so far, in the
	// order the sink reported them.
	Rejections() []RowError
}

// Stats is a point-in-time view of policy counters.
type Stats struct {
	// TotalRows is the number of rows handed to the policy.
	TotalRows int64
	// RowsPersisted is the number of rows the sink accepted.
	RowsPersisted int64
	// RowsRejected is the number of rows the sink rejected.
	RowsRejected int64
	// PersistedByTable and RejectedByTable break the counts down per table.
	PersistedByTable map[types.Table]int64
	RejectedByTable  map[types.Table]int64
	// BufferRows is the number of rows currently buffered.
	BufferRows int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the number of sink-level failures.
	Errors int64
}

// statsRecorder is a thread-safe stats holder shared by the policies.
//
// StrictPolicy and NoopPolicy use the locking methods. BufferedPolicy and
// StreamingPolicy use the Locked variants while holding their own mutex, so
// buffer state and counters move together.
type statsRecorder struct {
	mu         sync.Mutex
	stats      Stats
	rejections []RowError
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			PersistedByTable: make(map[types.Table]int64),
			RejectedByTable:  make(map[types.Table]int64),
		},
	}
}

func (r *statsRecorder) incTotal(n int64) {
	r.mu.Lock()
	r.incTotalLocked(n)
	r.mu.Unlock()
}

func (r *statsRecorder) recordWrite(table types.Table, written int, rejected []RowError) {
	r.mu.Lock()
	r.recordWriteLocked(table, written, rejected)
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.stats.BufferRows)
}

func (r *statsRecorder) rejected() []RowError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejectedLocked()
}

// --- Locked methods for BufferedPolicy and StreamingPolicy ---

func (r *statsRecorder) incTotalLocked(n int64) {
	r.stats.TotalRows += n
}

// recordWriteLocked accounts for one sink call of written rows, of which
// len(rejected) were refused.
func (r *statsRecorder) recordWriteLocked(table types.Table, written int, rejected []RowError) {
	ok := int64(written - len(rejected))
	r.stats.RowsPersisted += ok
	r.stats.PersistedByTable[table] += ok
	r.stats.RowsRejected += int64(len(rejected))
	if len(rejected) > 0 {
		r.stats.RejectedByTable[table] += int64(len(rejected))
		r.rejections = append(r.rejections, rejected...)
	}
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferRowsLocked(n int64) {
	r.stats.BufferRows = n
}

func (r *statsRecorder) snapshotLocked(bufferRows int64) Stats {
	s := r.stats
	s.BufferRows = bufferRows
	s.PersistedByTable = copyCounts(r.stats.PersistedByTable)
	s.RejectedByTable = copyCounts(r.stats.RejectedByTable)
	return s
}

func (r *statsRecorder) rejectedLocked() []RowError {
	out := make([]RowError, len(r.rejections))
	copy(out, r.rejections)
	return out
}

func copyCounts(m map[types.Table]int64) map[types.Table]int64 {
	out := make(map[types.Table]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
