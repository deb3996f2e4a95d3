// Package reader provides the read-side data access layer for the encore CLI.
//
// Read-only commands never open the relational store for writing. They
// read run reports from disk and staged records from the Lode dataset.
package reader

import "time"

// ListRunItem is one row of `encore list runs`.
type ListRunItem struct {
	RunID      string    `json:"run_id"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Plays      int       `json:"plays"`
	Persisted  int64     `json:"rows_persisted"`
	Skipped    int       `json:"batches_skipped"`
	Rejected   int64     `json:"rows_rejected"`
}

// ListRunsOptions filters `encore list runs`.
type ListRunsOptions struct {
	Outcome string
	Limit   int
}

// RunStats aggregates a directory of run reports.
type RunStats struct {
	Total          int   `json:"total"`
	Succeeded      int   `json:"succeeded"`
	Partial        int   `json:"partial"`
	LoadFailed     int   `json:"load_failed"`
	Canceled       int   `json:"canceled"`
	Invalid        int   `json:"invalid_reports"`
	RowsPersisted  int64 `json:"rows_persisted"`
	RowsRejected   int64 `json:"rows_rejected"`
	BatchesSkipped int   `json:"batches_skipped"`
	Plays          int   `json:"plays"`
	SongMatched    int   `json:"song_matched"`
	// MatchRate is SongMatched / Plays, or 0 with no plays.
	MatchRate float64 `json:"match_rate"`
}

// RunDetail is the `encore stats run` view of one report.
type RunDetail struct {
	RunID         string     `json:"run_id"`
	JobID         string     `json:"job_id,omitempty"`
	Attempt       int        `json:"attempt"`
	Outcome       string     `json:"outcome"`
	Message       string     `json:"message"`
	ExitCode      int        `json:"exit_code"`
	StartedAt     time.Time  `json:"started_at"`
	DurationMs    int64      `json:"duration_ms"`
	FilesRead     int        `json:"files_read"`
	RecordsRead   int        `json:"records_read"`
	Plays         int        `json:"plays"`
	ArtistMatched int        `json:"artist_matched"`
	SongMatched   int        `json:"song_matched"`
	Policy        string     `json:"policy"`
	Tables        []TableRow `json:"tables"`
	Skipped       int        `json:"batches_skipped"`
	Rejected      int64      `json:"rows_rejected"`
}

// TableRow holds one table's counts in load order.
type TableRow struct {
	Table     string `json:"table"`
	Produced  int64  `json:"produced"`
	Persisted int64  `json:"persisted"`
	Rejected  int64  `json:"rejected"`
}

// InvalidReport names a report file that could not be parsed.
type InvalidReport struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// MetricsSnapshot is the metrics record staged by a run.
type MetricsSnapshot struct {
	CompletedAt string `json:"completed_at"`

	// Run lifecycle
	RunsStarted   int64 `json:"runs_started_total"`
	RunsCompleted int64 `json:"runs_completed_total"`
	RunsPartial   int64 `json:"runs_partial_total"`
	RunsFailed    int64 `json:"runs_failed_total"`
	RunsCanceled  int64 `json:"runs_canceled_total"`

	// Input
	FilesRead       int64            `json:"files_read_total"`
	RecordsRead     int64            `json:"records_read_total"`
	BatchesSkipped  int64            `json:"batches_skipped_total"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason,omitempty"`

	// Join
	Plays         int64 `json:"plays_total"`
	ArtistMatched int64 `json:"plays_artist_matched_total"`
	SongMatched   int64 `json:"plays_song_matched_total"`

	// Load
	RowsReceived    int64            `json:"rows_received_total"`
	RowsPersisted   int64            `json:"rows_persisted_total"`
	RowsRejected    int64            `json:"rows_rejected_total"`
	RejectedByTable map[string]int64 `json:"rejected_by_table,omitempty"`

	// Dimensions
	Policy         string `json:"policy"`
	StoreDriver    string `json:"store_driver"`
	StagingBackend string `json:"staging_backend"`
	RunID          string `json:"run_id"`
	JobID          string `json:"job_id,omitempty"`
}
