package lode

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/types"
)

// Record kinds distinguish staged rows from run metrics.
const (
	RecordKindRow     = "row"
	RecordKindMetrics = "metrics"
)

// MetricsTable is the table partition that holds run metrics records.
const MetricsTable = "_metrics"

// toRowRecord converts one load tuple into a staged record. Column values
// sit under "values" so they never collide with partition keys.
func toRowRecord(cfg Config, table types.Table, key string, row types.Row) map[string]any {
	cols := types.Columns(table)
	values := make(map[string]any, len(cols))
	for i, c := range cols {
		if i >= len(row) {
			break
		}
		values[c] = stageValue(row[i])
	}
	return map[string]any{
		"record_kind": RecordKindRow,
		"key":         key,
		"values":      values,
		"source":      cfg.Source,
		"table":       string(table),
		"day":         cfg.Day,
		"run_id":      cfg.RunID,
	}
}

// stageValue renders times as RFC 3339 text so staged rows read back
// identically from every backend.
func stageValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// toMetricsRecord converts a metrics snapshot into a staged record.
func toMetricsRecord(cfg Config, snap metrics.Snapshot, completedAt time.Time) (map[string]any, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m["record_kind"] = RecordKindMetrics
	m["completed_at"] = completedAt.UTC().Format(time.RFC3339Nano)
	m["source"] = cfg.Source
	m["table"] = MetricsTable
	m["day"] = cfg.Day
	m["run_id"] = cfg.RunID
	return m, nil
}
