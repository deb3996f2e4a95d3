package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics record matches.
var ErrNoMetricsFound = errors.New("no metrics records found")

// RowFilter selects staged rows. Empty fields match everything; Limit 0
// means no limit.
type RowFilter struct {
	Table  string
	RunID  string
	Source string
	Day    string
	Limit  int
}

// StagedRow is one row read back from the staging dataset.
type StagedRow struct {
	Table  string         `json:"table"`
	Key    string         `json:"key"`
	RunID  string         `json:"run_id"`
	Day    string         `json:"day"`
	Source string         `json:"source"`
	Values map[string]any `json:"values"`
}

// QueryRows reads staged rows matching f, oldest snapshot first. A row
// staged twice under the same run is returned once.
func QueryRows(ctx context.Context, ds lode.Dataset, f RowFilter) ([]StagedRow, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("list", "snapshots", err)
	}

	type identity struct{ table, runID, key string }
	seen := make(map[identity]struct{})
	var out []StagedRow

	for _, snap := range snapshots {
		if !snapshotMatches(snap, "table", f.Table) ||
			!snapshotMatches(snap, "run_id", f.RunID) ||
			!snapshotMatches(snap, "source", f.Source) ||
			!snapshotMatches(snap, "day", f.Day) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}

		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindRow {
				continue
			}
			row := StagedRow{
				Table:  toString(rec["table"]),
				Key:    toString(rec["key"]),
				RunID:  toString(rec["run_id"]),
				Day:    toString(rec["day"]),
				Source: toString(rec["source"]),
			}
			if !f.matches(row) {
				continue
			}
			id := identity{row.Table, row.RunID, row.Key}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			row.Values, _ = rec["values"].(map[string]any)
			out = append(out, row)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// matches applies the record-level filter. Manifest paths are only a
// coarse pre-filter; record fields are authoritative.
func (f RowFilter) matches(r StagedRow) bool {
	return (f.Table == "" || r.Table == f.Table) &&
		(f.RunID == "" || r.RunID == f.RunID) &&
		(f.Source == "" || r.Source == f.Source) &&
		(f.Day == "" || r.Day == f.Day)
}

// QueryLatestMetrics returns the most recent metrics record, optionally
// filtered by run ID.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrap("list", "snapshots", err)
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "table", MetricsTable) || !snapshotMatches(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		for j := len(data) - 1; j >= 0; j-- {
			rec, ok := data[j].(map[string]any)
			if !ok || rec["record_kind"] != RecordKindMetrics {
				continue
			}
			if runID != "" && toString(rec["run_id"]) != runID {
				continue
			}
			return rec, nil
		}
	}
	return nil, ErrNoMetricsFound
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
