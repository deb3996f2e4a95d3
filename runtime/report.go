package runtime

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/reconcile"
	"github.com/justapithecus/encore/types"
)

// MaxReportRejections caps the rejections listed in a report. Counts stay
// exact; only the listing is truncated.
const MaxReportRejections = 1000

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	Version     string              `json:"version"`
	RunID       string              `json:"run_id"`
	JobID       string              `json:"job_id,omitempty"`
	Attempt     int                 `json:"attempt"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	StartedAt   time.Time           `json:"started_at"`
	DurationMs  int64               `json:"duration_ms"`
	FilesRead   int                 `json:"files_read"`
	RecordsRead int                 `json:"records_read"`

	Tables  map[types.Table]ReportTable `json:"tables"`
	Join    reconcile.Summary           `json:"join"`
	Dropped ReportDropped               `json:"dropped"`
	Policy  *ReportPolicy               `json:"policy"`

	Skipped             []ReportSkip      `json:"skipped"`
	Rejections          []ReportRejection `json:"rejections"`
	RejectionsTruncated bool              `json:"rejections_truncated,omitempty"`

	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportTable holds per-table row counts.
type ReportTable struct {
	Produced  int64 `json:"produced"`
	Persisted int64 `json:"persisted"`
	Rejected  int64 `json:"rejected"`
}

// ReportDropped counts rows removed during projection.
type ReportDropped struct {
	Artists      int `json:"artists"`
	Songs        int `json:"songs"`
	Users        int `json:"users"`
	UntimedPlays int `json:"untimed_plays"`
}

// ReportPolicy holds policy stats in the report.
type ReportPolicy struct {
	Name          string `json:"name"`
	RowsReceived  int64  `json:"rows_received"`
	RowsPersisted int64  `json:"rows_persisted"`
	RowsRejected  int64  `json:"rows_rejected"`
	Flushes       int64  `json:"flushes"`
}

// ReportSkip describes one skipped batch.
type ReportSkip struct {
	Family string `json:"family"`
	Source string `json:"source"`
	Batch  int    `json:"batch"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// ReportRejection describes one rejected row.
type ReportRejection struct {
	Table types.Table `json:"table"`
	Key   string      `json:"key"`
	Error string      `json:"error"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, policyName string, exitCode int) *RunReport {
	ps := result.PolicyStats
	report := &RunReport{
		Version:     types.ContractVersion,
		RunID:       result.RunMeta.RunID,
		Attempt:     result.RunMeta.Attempt,
		Outcome:     result.Outcome.Status,
		Message:     result.Outcome.Message,
		ExitCode:    exitCode,
		StartedAt:   result.StartedAt.UTC(),
		DurationMs:  result.Duration.Milliseconds(),
		FilesRead:   result.FilesRead,
		RecordsRead: result.RecordsRead,
		Tables:      make(map[types.Table]ReportTable, len(types.LoadOrder)),
		Join:        result.Join,
		Dropped: ReportDropped{
			Artists:      result.Produced.DroppedArtists,
			Songs:        result.Produced.DroppedSongs,
			Users:        result.Produced.DroppedUsers,
			UntimedPlays: result.Produced.UntimedPlays,
		},
		Policy: &ReportPolicy{
			Name:          policyName,
			RowsReceived:  ps.TotalRows,
			RowsPersisted: ps.RowsPersisted,
			RowsRejected:  ps.RowsRejected,
			Flushes:       ps.FlushCount,
		},
		Skipped:    make([]ReportSkip, 0, len(result.Skipped)),
		Rejections: make([]ReportRejection, 0, min(len(result.Rejections), MaxReportRejections)),
		Metrics:    &snap,
	}

	if result.RunMeta.JobID != nil {
		report.JobID = *result.RunMeta.JobID
	}

	for _, t := range types.LoadOrder {
		report.Tables[t] = ReportTable{
			Produced:  result.Produced.Counts[t],
			Persisted: ps.PersistedByTable[t],
			Rejected:  ps.RejectedByTable[t],
		}
	}

	for _, s := range result.Skipped {
		report.Skipped = append(report.Skipped, ReportSkip{
			Family: s.Family,
			Source: s.Source,
			Batch:  s.BatchIndex,
			Reason: s.Reason(),
			Error:  s.Err.Error(),
		})
	}

	for i, rej := range result.Rejections {
		if i == MaxReportRejections {
			report.RejectionsTruncated = true
			break
		}
		report.Rejections = append(report.Rejections, ReportRejection{
			Table: rej.Table,
			Key:   rej.Key,
			Error: rej.Err.Error(),
		})
	}

	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadRunReport parses a report file written by WriteRunReport.
func ReadRunReport(r io.Reader) (*RunReport, error) {
	var report RunReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if report.RunID == "" {
		return nil, errors.New("report has no run_id")
	}
	return &report, nil
}
