package reader

import (
	"strings"
	"testing"
)

func metricsRecord() map[string]any {
	// JSON-round-tripped record (float64 values)
	return map[string]any{
		"record_kind":                "metrics",
		"completed_at":               "2018-11-30T12:00:01Z",
		"runs_started_total":         float64(1),
		"runs_partial_total":         float64(1),
		"files_read_total":           float64(101),
		"records_read_total":         float64(8127),
		"batches_skipped_total":      float64(2),
		"skipped_by_reason":          map[string]any{"null_constraint": float64(2)},
		"plays_total":                float64(6820),
		"plays_artist_matched_total": float64(1),
		"plays_song_matched_total":   float64(1),
		"rows_received_total":        float64(7000),
		"rows_persisted_total":       int64(6999),
		"rows_rejected_total":        1,
		"rejected_by_table":          map[string]int64{"songplays": 1},
		"policy":                     "buffered",
		"store_driver":               "sqlite",
		"staging_backend":            "fs",
		"run_id":                     "run-abc",
		"job_id":                     "nightly",
	}
}

func TestParseMetricsRecord(t *testing.T) {
	parsed, err := ParseMetricsRecord(metricsRecord())
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}

	checks := []struct {
		name      string
		got, want int64
	}{
		{"RunsStarted", parsed.RunsStarted, 1},
		{"RunsPartial", parsed.RunsPartial, 1},
		{"FilesRead", parsed.FilesRead, 101},
		{"RecordsRead", parsed.RecordsRead, 8127},
		{"BatchesSkipped", parsed.BatchesSkipped, 2},
		{"Plays", parsed.Plays, 6820},
		{"SongMatched", parsed.SongMatched, 1},
		{"RowsReceived", parsed.RowsReceived, 7000},
		{"RowsPersisted", parsed.RowsPersisted, 6999},
		{"RowsRejected", parsed.RowsRejected, 1},
		{"SkippedByReason[null_constraint]", parsed.SkippedByReason["null_constraint"], 2},
		{"RejectedByTable[songplays]", parsed.RejectedByTable["songplays"], 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if parsed.CompletedAt != "2018-11-30T12:00:01Z" {
		t.Errorf("CompletedAt = %q", parsed.CompletedAt)
	}
	if parsed.Policy != "buffered" || parsed.StoreDriver != "sqlite" || parsed.StagingBackend != "fs" {
		t.Errorf("dimensions = %q/%q/%q", parsed.Policy, parsed.StoreDriver, parsed.StagingBackend)
	}
	if parsed.RunID != "run-abc" || parsed.JobID != "nightly" {
		t.Errorf("identity = %q/%q", parsed.RunID, parsed.JobID)
	}
}

func TestParseMetricsRecord_MissingRequired(t *testing.T) {
	for _, field := range []string{"completed_at", "run_id", "policy", "store_driver"} {
		t.Run(field, func(t *testing.T) {
			rec := metricsRecord()
			delete(rec, field)
			_, err := ParseMetricsRecord(rec)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), field) {
				t.Errorf("error should name %s, got %v", field, err)
			}
		})
	}
}

func TestParseMetricsRecord_Nil(t *testing.T) {
	if _, err := ParseMetricsRecord(nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestParseMetricsRecord_OptionalMapsAbsent(t *testing.T) {
	rec := metricsRecord()
	delete(rec, "skipped_by_reason")
	rec["rejected_by_table"] = "garbage"

	parsed, err := ParseMetricsRecord(rec)
	if err != nil {
		t.Fatalf("ParseMetricsRecord failed: %v", err)
	}
	if parsed.SkippedByReason != nil || parsed.RejectedByTable != nil {
		t.Errorf("expected nil maps, got %v / %v", parsed.SkippedByReason, parsed.RejectedByTable)
	}
}
