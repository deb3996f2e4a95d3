package reader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/encore/reconcile"
	"github.com/justapithecus/encore/runtime"
	"github.com/justapithecus/encore/types"
)

var baseTime = time.Date(2018, 11, 30, 0, 0, 0, 0, time.UTC)

func writeReport(t *testing.T, dir string, r *runtime.RunReport) {
	t.Helper()
	if err := runtime.WriteRunReport(r, filepath.Join(dir, r.RunID+".json")); err != nil {
		t.Fatalf("write report: %v", err)
	}
}

func report(runID string, outcome types.OutcomeStatus, offset time.Duration, persisted, rejected int64, skipped int) *runtime.RunReport {
	r := &runtime.RunReport{
		Version:    types.ContractVersion,
		RunID:      runID,
		Attempt:    1,
		Outcome:    outcome,
		StartedAt:  baseTime.Add(offset),
		DurationMs: 1200,
		Tables: map[types.Table]runtime.ReportTable{
			types.TableSongplays: {Produced: 10, Persisted: persisted, Rejected: rejected},
			types.TableUsers:     {Produced: 2, Persisted: 2},
		},
		Join:   reconcile.Summary{Plays: 10, ArtistMatched: 2, SongMatched: 1},
		Policy: &runtime.ReportPolicy{Name: "strict", RowsPersisted: persisted, RowsRejected: rejected},
	}
	for i := range skipped {
		r.Skipped = append(r.Skipped, runtime.ReportSkip{Family: "logs", Batch: i, Reason: "null_constraint"})
	}
	return r
}

func TestLoadReports(t *testing.T) {
	dir := t.TempDir()
	writeReport(t, dir, report("run-b", types.OutcomePartial, time.Hour, 9, 1, 0))
	writeReport(t, dir, report("run-a", types.OutcomeSuccess, 0, 10, 0, 0))
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	reports, invalid, err := LoadReports(dir)
	if err != nil {
		t.Fatalf("LoadReports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].RunID != "run-a" || reports[1].RunID != "run-b" {
		t.Errorf("expected oldest first, got %s, %s", reports[0].RunID, reports[1].RunID)
	}
	if len(invalid) != 1 || filepath.Base(invalid[0].Path) != "broken.json" {
		t.Errorf("invalid = %+v", invalid)
	}
}

func TestLoadReports_MissingDir(t *testing.T) {
	if _, _, err := LoadReports(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestAggregateRuns(t *testing.T) {
	reports := []*runtime.RunReport{
		report("r1", types.OutcomeSuccess, 0, 10, 0, 0),
		report("r2", types.OutcomePartial, time.Hour, 9, 1, 2),
		report("r3", types.OutcomeLoadFailure, 2*time.Hour, 0, 0, 0),
		report("r4", types.OutcomeCanceled, 3*time.Hour, 0, 0, 1),
	}

	s := AggregateRuns(reports, 1)
	if s.Total != 4 || s.Succeeded != 1 || s.Partial != 1 || s.LoadFailed != 1 || s.Canceled != 1 {
		t.Errorf("outcome counts = %+v", s)
	}
	if s.Invalid != 1 {
		t.Errorf("Invalid = %d, want 1", s.Invalid)
	}
	if s.RowsPersisted != 19 || s.RowsRejected != 1 {
		t.Errorf("rows = %d/%d, want 19/1", s.RowsPersisted, s.RowsRejected)
	}
	if s.BatchesSkipped != 3 {
		t.Errorf("BatchesSkipped = %d, want 3", s.BatchesSkipped)
	}
	if s.Plays != 40 || s.SongMatched != 4 {
		t.Errorf("join = %d/%d", s.Plays, s.SongMatched)
	}
	if s.MatchRate != 0.1 {
		t.Errorf("MatchRate = %v, want 0.1", s.MatchRate)
	}
}

func TestAggregateRuns_Empty(t *testing.T) {
	s := AggregateRuns(nil, 0)
	if s.Total != 0 || s.MatchRate != 0 {
		t.Errorf("expected zero stats, got %+v", s)
	}
}

func TestListRuns(t *testing.T) {
	reports := []*runtime.RunReport{
		report("r1", types.OutcomeSuccess, 0, 10, 0, 0),
		report("r2", types.OutcomePartial, time.Hour, 9, 1, 2),
		report("r3", types.OutcomeSuccess, 2*time.Hour, 10, 0, 0),
	}

	tests := []struct {
		name string
		opts ListRunsOptions
		want []string
	}{
		{"all newest first", ListRunsOptions{}, []string{"r3", "r2", "r1"}},
		{"filter outcome", ListRunsOptions{Outcome: "success"}, []string{"r3", "r1"}},
		{"limit", ListRunsOptions{Limit: 2}, []string{"r3", "r2"}},
		{"filter and limit", ListRunsOptions{Outcome: "success", Limit: 1}, []string{"r3"}},
		{"no match", ListRunsOptions{Outcome: "canceled"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := ListRuns(reports, tt.opts)
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.want))
			}
			for i, id := range tt.want {
				if items[i].RunID != id {
					t.Errorf("items[%d] = %s, want %s", i, items[i].RunID, id)
				}
			}
		})
	}

	items := ListRuns(reports, ListRunsOptions{Limit: 2})
	if items[1].Skipped != 2 || items[1].Rejected != 1 || items[1].Persisted != 9 {
		t.Errorf("r2 item = %+v", items[1])
	}
}

func TestDetail_TablesInLoadOrder(t *testing.T) {
	d := Detail(report("r1", types.OutcomePartial, 0, 9, 1, 1))

	if d.RunID != "r1" || d.Outcome != "partial" || d.Policy != "strict" {
		t.Errorf("detail = %+v", d)
	}
	if len(d.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(d.Tables))
	}
	// users loads before songplays
	if d.Tables[0].Table != "users" || d.Tables[1].Table != "songplays" {
		t.Errorf("tables = %+v", d.Tables)
	}
	if d.Tables[1].Rejected != 1 || d.Rejected != 1 || d.Skipped != 1 {
		t.Errorf("counts = %+v", d)
	}
}
