// Package adapter defines the completion notification boundary.
//
// Adapters publish one run_completed event per run to a downstream system
// (a Redis channel or an HTTP endpoint). The CLI owns adapter lifecycle;
// users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeRunCompleted is the only event type adapters publish.
const EventTypeRunCompleted = "run_completed"

// DefaultBackoff is the delay before the first retry. Each further retry
// doubles it.
const DefaultBackoff = 500 * time.Millisecond

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	ContractVersion string           `json:"contract_version"`
	EventType       string           `json:"event_type"`
	RunID           string           `json:"run_id"`
	JobID           string           `json:"job_id,omitempty"`
	Attempt         int              `json:"attempt"`
	Outcome         string           `json:"outcome"` // success, partial, load_failure, canceled
	Message         string           `json:"message"`
	Timestamp       string           `json:"timestamp"` // RFC 3339
	DurationMs      int64            `json:"duration_ms"`
	StoreDriver     string           `json:"store_driver"`
	StagingPath     string           `json:"staging_path,omitempty"`
	RowsPersisted   map[string]int64 `json:"rows_persisted"`
	RowsRejected    int64            `json:"rows_rejected"`
	BatchesSkipped  int              `json:"batches_skipped"`
	Plays           int              `json:"plays"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// ErrPermanent marks a failure that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Retry calls attempt once plus up to retries more times, sleeping with
// exponential backoff between calls. It stops early on success, on context
// cancellation, or when attempt returns an error wrapping ErrPermanent.
// name prefixes every returned error.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, attempt func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			delay := backoff << uint(i-1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
