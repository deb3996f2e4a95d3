package reader

import "errors"

// ParseMetricsRecord converts a staged metrics record (map[string]any) to a
// MetricsSnapshot. Handles both int64 (direct writes) and float64 (JSON
// round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		CompletedAt: toString(record["completed_at"]),

		RunsStarted:   toInt64(record["runs_started_total"]),
		RunsCompleted: toInt64(record["runs_completed_total"]),
		RunsPartial:   toInt64(record["runs_partial_total"]),
		RunsFailed:    toInt64(record["runs_failed_total"]),
		RunsCanceled:  toInt64(record["runs_canceled_total"]),

		FilesRead:       toInt64(record["files_read_total"]),
		RecordsRead:     toInt64(record["records_read_total"]),
		BatchesSkipped:  toInt64(record["batches_skipped_total"]),
		SkippedByReason: toCounts(record["skipped_by_reason"]),

		Plays:         toInt64(record["plays_total"]),
		ArtistMatched: toInt64(record["plays_artist_matched_total"]),
		SongMatched:   toInt64(record["plays_song_matched_total"]),

		RowsReceived:    toInt64(record["rows_received_total"]),
		RowsPersisted:   toInt64(record["rows_persisted_total"]),
		RowsRejected:    toInt64(record["rows_rejected_total"]),
		RejectedByTable: toCounts(record["rejected_by_table"]),

		Policy:         toString(record["policy"]),
		StoreDriver:    toString(record["store_driver"]),
		StagingBackend: toString(record["staging_backend"]),
		RunID:          toString(record["run_id"]),
		JobID:          toString(record["job_id"]),
	}

	// The write path always populates these.
	if snap.CompletedAt == "" {
		return nil, errors.New("metrics record missing required field: completed_at")
	}
	if snap.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}
	if snap.Policy == "" {
		return nil, errors.New("metrics record missing required field: policy")
	}
	if snap.StoreDriver == "" {
		return nil, errors.New("metrics record missing required field: store_driver")
	}

	return snap, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toCounts handles both map[string]int64 (direct) and map[string]any
// (JSON round-trip).
func toCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
