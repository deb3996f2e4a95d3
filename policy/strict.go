package policy

import (
	"context"

	"github.com/justapithecus/encore/types"
)

// StrictPolicy writes every row as its own sink call, unbuffered.
// The caller blocks on sink latency, and a row rejection can never
// interfere with another row's write.
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink, stats: newStatsRecorder()}
}

// Ingest writes each row immediately.
func (p *StrictPolicy) Ingest(ctx context.Context, set types.RowSet) error {
	p.stats.incTotal(int64(set.Len()))
	for i, row := range set.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rejected, err := p.sink.WriteRows(ctx, set.Table, set.Keys[i:i+1], []types.Row{row})
		if err != nil {
			p.stats.incErrors()
			return err
		}
		p.stats.recordWrite(set.Table, 1, rejected)
	}
	return nil
}

// Flush is a no-op for strict policy.
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Rejections returns the recorded row rejections.
func (p *StrictPolicy) Rejections() []RowError {
	return p.stats.rejected()
}
