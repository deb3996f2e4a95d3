// Package types defines the core domain types for the encore ETL runtime:
// the five load-ready fact shapes, the play-candidate intermediate, table
// metadata and run lineage.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// RunMeta contains run identity and lineage metadata.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// JobID is the logical job identifier (e.g. a scheduler job). May be nil.
	JobID *string
	// ParentRunID links retry runs to their predecessor. Nil for initial runs.
	ParentRunID *string
	// Attempt is the attempt number. Starts at 1 for initial runs.
	Attempt int
}

// Validate validates lineage rules:
//   - attempt >= 1
//   - attempt == 1 => parent_run_id must be nil (initial run)
//   - attempt > 1 => parent_run_id must be present (retry run)
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}

	if r.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", r.Attempt)
	}

	if r.Attempt == 1 && r.ParentRunID != nil {
		return errors.New("initial run (attempt=1) must not have parent_run_id")
	}

	if r.Attempt > 1 && r.ParentRunID == nil {
		return fmt.Errorf("retry run (attempt=%d) must have parent_run_id", r.Attempt)
	}

	return nil
}

// OutcomeStatus represents the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every batch validated and every row loaded.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomePartial indicates the run finished but skipped batches or rejected rows.
	OutcomePartial OutcomeStatus = "partial"
	// OutcomeLoadFailure indicates a sink failed and the load was abandoned.
	OutcomeLoadFailure OutcomeStatus = "load_failure"
	// OutcomeCanceled indicates the run stopped at a batch boundary on cancellation.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// Valid reports whether s is one of the defined outcomes.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeSuccess, OutcomePartial, OutcomeLoadFailure, OutcomeCanceled:
		return true
	}
	return false
}

// RunOutcome represents the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
}
