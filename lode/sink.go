package lode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/policy"
	"github.com/justapithecus/encore/types"
)

// DeriveDay computes the partition day (YYYY-MM-DD, UTC) from the run
// start time.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds staging sink configuration. Every partition key is required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source identifies the producing job.
	Source string
	// Day is the run's partition day.
	Day string
	// RunID is the run identifier.
	RunID string
}

func (c Config) path(table string) string {
	return fmt.Sprintf("%s/source=%s/table=%s/day=%s/run_id=%s", c.Dataset, c.Source, table, c.Day, c.RunID)
}

// Sink stages load tuples in a Lode dataset. It implements policy.Sink.
// Staging accepts every row: it never reports row rejections.
type Sink struct {
	config  Config
	dataset lode.Dataset

	mu sync.Mutex // serializes dataset writes
}

// NewSink creates a staging sink over the given store factory.
// Use lode.NewMemoryFactory() for testing.
func NewSink(cfg Config, factory lode.StoreFactory) (*Sink, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	return &Sink{config: cfg, dataset: ds}, nil
}

// NewSinkFS creates a staging sink rooted at a local directory.
func NewSinkFS(cfg Config, root string) (*Sink, error) {
	return NewSink(cfg, lode.NewFSFactory(root))
}

// WriteRows implements policy.Sink.
func (s *Sink) WriteRows(ctx context.Context, table types.Table, keys []string, rows []types.Row) ([]policy.RowError, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	records := make([]any, 0, len(rows))
	for i, row := range rows {
		records = append(records, toRowRecord(s.config, table, keys[i], row))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return nil, wrap("write", s.config.path(string(table)), err)
	}
	return nil, nil
}

// WriteMetrics stages the run's final metrics snapshot.
func (s *Sink) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record, err := toMetricsRecord(s.config, snap, completedAt)
	if err != nil {
		return fmt.Errorf("encode metrics record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return wrap("write", s.config.path(MetricsTable), err)
	}
	return nil
}

// Close implements policy.Sink. The dataset holds no open handles.
func (s *Sink) Close() error {
	return nil
}

var _ policy.Sink = (*Sink)(nil)
