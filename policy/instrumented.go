package policy

import (
	"context"

	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/types"
)

// InstrumentedSink wraps a Sink and counts write calls on a collector,
// keyed by sink name. Row rejections do not count as failed writes.
type InstrumentedSink struct {
	name      string
	inner     Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(name string, inner Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{name: name, inner: inner, collector: collector}
}

// WriteRows delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteRows(ctx context.Context, table types.Table, keys []string, rows []types.Row) ([]RowError, error) {
	rejected, err := s.inner.WriteRows(ctx, table, keys, rows)
	s.collector.IncSinkWrite(s.name, err == nil)
	return rejected, err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ Sink = (*InstrumentedSink)(nil)
