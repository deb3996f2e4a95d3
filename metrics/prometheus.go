package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "encore"

// Exporter publishes run snapshots as Prometheus metrics.
type Exporter struct {
	runs     *prometheus.CounterVec
	records  prometheus.Counter
	files    prometheus.Counter
	skipped  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	rejected *prometheus.CounterVec
	writes   *prometheus.CounterVec
	plays    *prometheus.GaugeVec
}

// NewExporter registers the run metrics on reg. A nil registerer yields an
// exporter whose Export is a no-op.
func NewExporter(reg prometheus.Registerer) *Exporter {
	if reg == nil {
		return &Exporter{}
	}
	e := &Exporter{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome.",
		}, []string{"outcome", "policy", "store_driver"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Input records decoded.",
		}),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_read_total",
			Help:      "Input files read.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_skipped_total",
			Help:      "Input batches skipped, by reason.",
		}, []string{"reason"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows handed to the load policy, by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows rejected by the store, by table.",
		}, []string{"table"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Sink write calls, by sink and result.",
		}, []string{"sink", "result"}),
		plays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_plays",
			Help:      "Plays produced by the last run, by join result.",
		}, []string{"match"}),
	}
	reg.MustRegister(e.runs, e.records, e.files, e.skipped, e.rows, e.rejected, e.writes, e.plays)
	return e
}

// Export adds a run snapshot to the registered metrics.
func (e *Exporter) Export(s Snapshot) {
	if e == nil || e.runs == nil {
		return
	}
	for outcome, n := range map[string]int64{
		"success":      s.RunsCompleted,
		"partial":      s.RunsPartial,
		"load_failure": s.RunsFailed,
		"canceled":     s.RunsCanceled,
	} {
		if n > 0 {
			e.runs.WithLabelValues(outcome, normalizeLabel(s.Policy), normalizeLabel(s.StoreDriver)).Add(float64(n))
		}
	}
	e.records.Add(float64(s.RecordsRead))
	e.files.Add(float64(s.FilesRead))
	for reason, n := range s.SkippedByReason {
		e.skipped.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
	}
	e.rows.WithLabelValues("persisted").Add(float64(s.RowsPersisted))
	e.rows.WithLabelValues("rejected").Add(float64(s.RowsRejected))
	for table, n := range s.RejectedByTable {
		e.rejected.WithLabelValues(normalizeLabel(table)).Add(float64(n))
	}
	for sink, n := range s.SinkWriteSuccess {
		e.writes.WithLabelValues(normalizeLabel(sink), "success").Add(float64(n))
	}
	for sink, n := range s.SinkWriteFailure {
		e.writes.WithLabelValues(normalizeLabel(sink), "failure").Add(float64(n))
	}
	e.plays.WithLabelValues("total").Set(float64(s.Plays))
	e.plays.WithLabelValues("artist").Set(float64(s.ArtistMatched))
	e.plays.WithLabelValues("song").Set(float64(s.SongMatched))
}

// WriteTextfile writes the snapshot in the node_exporter textfile format.
// The file is written atomically.
func WriteTextfile(path string, s Snapshot) error {
	reg := prometheus.NewRegistry()
	NewExporter(reg).Export(s)
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
