package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/encore/log"
	"github.com/justapithecus/encore/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRows is the per-table row count that triggers a flush of
	// that table. Must be positive.
	MaxBufferRows int

	// Logger is an optional logger for flush observability.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBufferRows: 500}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferRows must be positive")

type tableBuffer struct {
	keys []string
	rows []types.Row
}

// BufferedPolicy collects rows per table and writes them in batches.
//
// A table's buffer is written when it reaches MaxBufferRows and on Flush.
// Flush writes tables in types.LoadOrder so dimensions land before plays.
// A failed write keeps the buffer intact; retrying may rewrite rows, which
// the upsert sinks tolerate.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu       sync.Mutex // guards buffers and stats
	buffers  map[types.Table]*tableBuffer
	buffered int64
	stats    *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRows <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:    sink,
		config:  config,
		logger:  config.Logger,
		buffers: make(map[types.Table]*tableBuffer),
		stats:   newStatsRecorder(),
	}, nil
}

// Ingest buffers the set, writing full table buffers as they fill.
func (p *BufferedPolicy) Ingest(ctx context.Context, set types.RowSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked(int64(set.Len()))

	buf := p.buffers[set.Table]
	if buf == nil {
		buf = &tableBuffer{}
		p.buffers[set.Table] = buf
	}
	for i, row := range set.Rows {
		buf.keys = append(buf.keys, set.Keys[i])
		buf.rows = append(buf.rows, row)
		p.buffered++
		if len(buf.rows) >= p.config.MaxBufferRows {
			if err := p.writeLocked(ctx, set.Table, buf); err != nil {
				p.stats.setBufferRowsLocked(p.buffered)
				return err
			}
		}
	}
	p.stats.setBufferRowsLocked(p.buffered)
	return nil
}

// Flush writes every buffered table in load order.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incFlushLocked()
	for _, table := range types.LoadOrder {
		buf := p.buffers[table]
		if buf == nil || len(buf.rows) == 0 {
			continue
		}
		if err := p.writeLocked(ctx, table, buf); err != nil {
			p.stats.setBufferRowsLocked(p.buffered)
			return err
		}
	}
	p.stats.setBufferRowsLocked(p.buffered)
	return nil
}

// writeLocked writes and clears one table buffer. Caller must hold mu.
func (p *BufferedPolicy) writeLocked(ctx context.Context, table types.Table, buf *tableBuffer) error {
	rejected, err := p.sink.WriteRows(ctx, table, buf.keys, buf.rows)
	if err != nil {
		p.stats.incErrorsLocked()
		p.logFlushFailure(table, len(buf.rows), err)
		return err
	}
	n := len(buf.rows)
	p.stats.recordWriteLocked(table, n, rejected)
	p.buffered -= int64(n)
	buf.keys = nil
	buf.rows = nil
	p.logFlush(table, n, len(rejected))
	return nil
}

// Close flushes remaining rows and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy counters.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.buffered)
}

// Rejections returns the recorded row rejections.
func (p *BufferedPolicy) Rejections() []RowError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.rejectedLocked()
}

func (p *BufferedPolicy) logFlush(table types.Table, rows, rejected int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("buffer flushed", map[string]any{
		"table":    string(table),
		"rows":     rows,
		"rejected": rejected,
		"policy":   "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(table types.Table, rows int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"table":  string(table),
		"rows":   rows,
		"error":  err.Error(),
		"policy": "buffered",
	})
}
