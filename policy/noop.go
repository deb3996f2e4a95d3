package policy

import (
	"context"

	"github.com/justapithecus/encore/types"
)

// NoopPolicy accepts every row without writing it. Used for dry runs: the
// pipeline runs end to end and counts what would have been loaded.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest counts the rows as persisted.
func (p *NoopPolicy) Ingest(_ context.Context, set types.RowSet) error {
	p.stats.incTotal(int64(set.Len()))
	p.stats.recordWrite(set.Table, set.Len(), nil)
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Rejections always returns an empty slice.
func (p *NoopPolicy) Rejections() []RowError {
	return p.stats.rejected()
}
