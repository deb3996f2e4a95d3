package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/encore/log"
	"github.com/justapithecus/encore/types"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush once N rows are buffered across all
	// tables. Zero disables the count trigger.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero disables the interval trigger.
	FlushInterval time.Duration

	// Logger is an optional logger for flush observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates an end-of-load flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy buffers rows and writes them when a count or interval
// trigger fires, bounding how long rows sit in memory during long loads.
//
// Each flush writes the swapped-out buffers in types.LoadOrder. Callers
// ingest tables in load order, so dimension rows always reach the sink
// before the plays that reference them. A failed write puts the unwritten
// tables back in front of anything ingested since, and the next trigger
// retries them.
//
// mu guards buffers and stats; flushMu serializes flushes so the interval
// goroutine and the count trigger never write concurrently.
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu      sync.Mutex
	buffers map[types.Table]*tableBuffer
	pending int64
	stats   *statsRecorder

	flushMu sync.Mutex

	// Per-trigger flush counts. Guarded by mu.
	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	stopCh  chan struct{}
	stopped bool // guarded by mu
	loop    sync.WaitGroup
}

// NewStreamingPolicy creates a new streaming policy.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount < 0 || config.FlushInterval < 0 ||
		(config.FlushCount == 0 && config.FlushInterval == 0) {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:    sink,
		config:  config,
		logger:  config.Logger,
		buffers: make(map[types.Table]*tableBuffer),
		stats:   newStatsRecorder(),
		stopCh:  make(chan struct{}),
	}
	if config.FlushInterval > 0 {
		p.loop.Add(1)
		go p.intervalLoop()
	}
	return p, nil
}

// Ingest buffers the set. When the count trigger is enabled, a flush runs
// every time FlushCount rows are pending, so one large set is written in
// several flushes.
func (p *StreamingPolicy) Ingest(ctx context.Context, set types.RowSet) error {
	p.mu.Lock()
	p.stats.incTotalLocked(int64(set.Len()))
	p.mu.Unlock()

	for i := 0; i < set.Len(); {
		full := false

		p.mu.Lock()
		buf := p.buffers[set.Table]
		if buf == nil {
			buf = &tableBuffer{}
			p.buffers[set.Table] = buf
		}
		for i < set.Len() && !full {
			buf.keys = append(buf.keys, set.Keys[i])
			buf.rows = append(buf.rows, set.Rows[i])
			p.pending++
			i++
			full = p.config.FlushCount > 0 && p.pending >= int64(p.config.FlushCount)
		}
		p.stats.setBufferRowsLocked(p.pending)
		p.mu.Unlock()

		if full {
			if err := p.triggerFlush(ctx, FlushTriggerCount); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes everything buffered (termination trigger).
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush swaps the buffers out under mu and writes them outside it,
// so ingestion continues into fresh buffers while the sink is busy.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	switch trigger {
	case FlushTriggerCount:
		p.flushByCount++
	case FlushTriggerInterval:
		p.flushByInterval++
	case FlushTriggerTermination:
		p.flushByTermination++
	}
	p.stats.incFlushLocked()

	if p.pending == 0 {
		p.mu.Unlock()
		return nil
	}
	swapped := p.buffers
	p.buffers = make(map[types.Table]*tableBuffer)
	p.pending = 0
	p.stats.setBufferRowsLocked(0)
	p.mu.Unlock()

	written := 0
	for i, table := range types.LoadOrder {
		buf := swapped[table]
		if buf == nil || len(buf.rows) == 0 {
			continue
		}
		rejected, err := p.sink.WriteRows(ctx, table, buf.keys, buf.rows)
		if err != nil {
			p.mu.Lock()
			p.stats.incErrorsLocked()
			p.restoreLocked(swapped, types.LoadOrder[i:])
			p.mu.Unlock()
			p.logFlushFailure(table, trigger, err)
			return err
		}
		p.mu.Lock()
		p.stats.recordWriteLocked(table, len(buf.rows), rejected)
		p.mu.Unlock()
		written += len(buf.rows)
	}

	p.logFlush(trigger, written)
	return nil
}

// restoreLocked prepends the unwritten tables of a failed flush to the
// live buffers. Caller must hold mu.
func (p *StreamingPolicy) restoreLocked(swapped map[types.Table]*tableBuffer, tables []types.Table) {
	for _, table := range tables {
		old := swapped[table]
		if old == nil || len(old.rows) == 0 {
			continue
		}
		if cur := p.buffers[table]; cur != nil {
			old.keys = append(old.keys, cur.keys...)
			old.rows = append(old.rows, cur.rows...)
			p.pending -= int64(len(cur.rows))
		}
		p.buffers[table] = old
		p.pending += int64(len(old.rows))
	}
	p.stats.setBufferRowsLocked(p.pending)
}

// Close stops the interval goroutine, flushes what remains and closes
// the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
	p.loop.Wait()

	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy counters.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(p.pending)
}

// Rejections returns the recorded row rejections.
func (p *StreamingPolicy) Rejections() []RowError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.rejectedLocked()
}

// FlushTriggerStats returns per-trigger flush counts.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByCount,
		FlushTriggerInterval:    p.flushByInterval,
		FlushTriggerTermination: p.flushByTermination,
	}
}

// intervalLoop flushes on every tick that finds buffered rows. A failed
// interval flush keeps its rows buffered; the termination flush reports
// the error if it persists.
func (p *StreamingPolicy) intervalLoop() {
	defer p.loop.Done()

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasRows := p.pending > 0
			p.mu.Unlock()
			if hasRows {
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, rows int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("streaming flush", map[string]any{
		"trigger": string(trigger),
		"rows":    rows,
		"policy":  "streaming",
	})
}

func (p *StreamingPolicy) logFlushFailure(table types.Table, trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"table":   string(table),
		"trigger": string(trigger),
		"error":   err.Error(),
		"policy":  "streaming",
	})
}

var _ Policy = (*StreamingPolicy)(nil)
