package runtime

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/encore/batch"
	"github.com/justapithecus/encore/log"
	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/validate"
)

// DefaultWorkers is the file worker pool size when none is configured.
const DefaultWorkers = 4

// IngestionError classifies ingestion errors for outcome determination.
type IngestionError struct {
	// Kind indicates whether discovery failed or the run was canceled.
	Kind IngestionErrorKind
	// Family is the input family being read ("songs" or "logs").
	Family string
	// Err is the underlying error.
	Err error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorDiscovery indicates the input root could not be walked.
	IngestionErrorDiscovery IngestionErrorKind = iota
	// IngestionErrorCanceled indicates context cancellation at a batch boundary.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Family, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorCanceled
	}
	return false
}

// IsDiscoveryError returns true if an input root could not be walked.
func IsDiscoveryError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorDiscovery
	}
	return false
}

// Family is one input family: a root directory of newline-delimited JSON
// files and the schema every file must satisfy.
type Family struct {
	Name   string
	Root   string
	Schema validate.Schema
	// Sorted orders files lexically, which keeps date-named logs
	// chronological.
	Sorted bool
}

// SkippedBatch is a diagnostic attributed to its input family.
type SkippedBatch struct {
	Family string
	validate.Diagnostic
}

// IngestResult is the merged output of reading one family.
type IngestResult struct {
	Table       *batch.Table
	Skipped     []SkippedBatch
	FilesRead   int
	RecordsRead int
}

type fileResult struct {
	table   *batch.Table
	diag    *validate.Diagnostic
	records int
}

// IngestionEngine reads and validates input files on a bounded worker pool.
type IngestionEngine struct {
	workers   int
	logger    *log.Logger
	collector *metrics.Collector
}

// NewIngestionEngine creates an ingestion engine. workers <= 0 selects
// DefaultWorkers.
func NewIngestionEngine(workers int, logger *log.Logger, collector *metrics.Collector) *IngestionEngine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &IngestionEngine{workers: workers, logger: logger, collector: collector}
}

// Run discovers and validates every file of a family. Files are processed
// concurrently, but results merge in file order so downstream dedup keeps
// first-seen semantics. An empty root yields an empty result.
func (e *IngestionEngine) Run(ctx context.Context, fam Family) (*IngestResult, error) {
	res := &IngestResult{Table: batch.NewTable(fam.Schema.ColumnNames())}
	if fam.Root == "" {
		return res, nil
	}

	paths, err := batch.Discover(fam.Root, batch.DefaultExtension, fam.Sorted)
	if err != nil {
		return nil, &IngestionError{Kind: IngestionErrorDiscovery, Family: fam.Name, Err: err}
	}

	results := make([]fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processFile(i, path, fam.Schema)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &IngestionError{Kind: IngestionErrorCanceled, Family: fam.Name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &IngestionError{Kind: IngestionErrorCanceled, Family: fam.Name, Err: err}
	}

	tables := make([]*batch.Table, 0, len(results))
	for _, r := range results {
		res.FilesRead++
		res.RecordsRead += r.records
		e.collector.AddFileRead(r.records)
		if r.diag != nil {
			res.Skipped = append(res.Skipped, SkippedBatch{Family: fam.Name, Diagnostic: *r.diag})
			e.collector.IncBatchSkipped(r.diag.Reason())
			e.logger.Warn("batch skipped", map[string]any{
				"family": fam.Name,
				"source": r.diag.Source,
				"batch":  r.diag.BatchIndex,
				"reason": r.diag.Reason(),
				"error":  r.diag.Err.Error(),
			})
			continue
		}
		tables = append(tables, r.table)
	}
	res.Table = batch.Concat(fam.Schema.ColumnNames(), tables...)

	e.logger.Info("family ingested", map[string]any{
		"family":  fam.Name,
		"files":   res.FilesRead,
		"records": res.RecordsRead,
		"rows":    res.Table.Len(),
		"skipped": len(res.Skipped),
	})
	return res, nil
}

// processFile reads and validates one file. Failures become diagnostics;
// they never stop the pool.
func (e *IngestionEngine) processFile(index int, path string, schema validate.Schema) fileResult {
	b, err := batch.ReadFile(index, path)
	if err != nil {
		return fileResult{diag: &validate.Diagnostic{BatchIndex: index, Source: path, Err: err}}
	}
	t, err := validate.ValidateBatch(b, schema)
	if err != nil {
		return fileResult{
			diag:    &validate.Diagnostic{BatchIndex: index, Source: path, Err: err},
			records: len(b.Records),
		}
	}
	return fileResult{table: t, records: len(b.Records)}
}
