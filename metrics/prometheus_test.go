package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func sampleSnapshot() Snapshot {
	c := NewCollector("strict", "sqlite", "fs", "run-001", "")
	c.IncRunStarted()
	c.IncRunPartial()
	c.AddFileRead(12)
	c.IncBatchSkipped("coercion")
	c.IncSinkWrite("store", true)
	c.IncSinkWrite("store", false)
	c.SetJoinStats(4, 3, 1)
	c.AbsorbPolicyStats(20, 19, 1, map[string]int64{"songplays": 1})
	return c.Snapshot()
}

func TestExporter_ExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewExporter(reg).Export(sampleSnapshot())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	tests := []struct {
		name, label, value string
		want               float64
	}{
		{"encore_runs_total", "outcome", "partial", 1},
		{"encore_batches_skipped_total", "reason", "coercion", 1},
		{"encore_rows_total", "result", "persisted", 19},
		{"encore_rows_rejected_total", "table", "songplays", 1},
		{"encore_sink_writes_total", "result", "failure", 1},
	}
	for _, tt := range tests {
		got, err := fetchValue(mfs, tt.name, tt.label, tt.value)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s{%s=%q} = %v, want %v", tt.name, tt.label, tt.value, got, tt.want)
		}
	}

	if got, err := fetchValue(mfs, "encore_last_run_plays", "match", "artist"); err != nil || got != 3 {
		t.Errorf("last_run_plays{match=artist} = %v, %v", got, err)
	}
}

func TestExporter_NilRegisterer(t *testing.T) {
	NewExporter(nil).Export(sampleSnapshot())
	var e *Exporter
	e.Export(sampleSnapshot())
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encore.prom")
	if err := WriteTextfile(path, sampleSnapshot()); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `encore_rows_total{result="persisted"} 19`) {
		t.Errorf("textfile missing persisted rows:\n%s", data)
	}
}

func fetchValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					if c := m.GetCounter(); c != nil {
						return c.GetValue(), nil
					}
					return m.GetGauge().GetValue(), nil
				}
			}
		}
		return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}
