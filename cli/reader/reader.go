package reader

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/justapithecus/encore/iox"
	"github.com/justapithecus/encore/runtime"
	"github.com/justapithecus/encore/types"
)

// ReadReport reads a single run report file.
func ReadReport(path string) (*runtime.RunReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	report, err := runtime.ReadRunReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// LoadReports reads every *.json report in dir, oldest first. Files that
// fail to parse are returned as InvalidReport rather than failing the
// whole directory.
func LoadReports(dir string) ([]*runtime.RunReport, []InvalidReport, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, fmt.Errorf("report directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, err
	}

	var reports []*runtime.RunReport
	var invalid []InvalidReport
	for _, p := range paths {
		r, err := ReadReport(p)
		if err != nil {
			invalid = append(invalid, InvalidReport{Path: p, Error: err.Error()})
			continue
		}
		reports = append(reports, r)
	}

	slices.SortStableFunc(reports, func(a, b *runtime.RunReport) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
	return reports, invalid, nil
}

// AggregateRuns folds reports into run statistics.
func AggregateRuns(reports []*runtime.RunReport, invalid int) *RunStats {
	s := &RunStats{Total: len(reports), Invalid: invalid}
	for _, r := range reports {
		switch r.Outcome {
		case types.OutcomeSuccess:
			s.Succeeded++
		case types.OutcomePartial:
			s.Partial++
		case types.OutcomeLoadFailure:
			s.LoadFailed++
		case types.OutcomeCanceled:
			s.Canceled++
		}
		if r.Policy != nil {
			s.RowsPersisted += r.Policy.RowsPersisted
			s.RowsRejected += r.Policy.RowsRejected
		}
		s.BatchesSkipped += len(r.Skipped)
		s.Plays += r.Join.Plays
		s.SongMatched += r.Join.SongMatched
	}
	if s.Plays > 0 {
		s.MatchRate = float64(s.SongMatched) / float64(s.Plays)
	}
	return s
}

// ListRuns returns thin run rows, newest first.
func ListRuns(reports []*runtime.RunReport, opts ListRunsOptions) []ListRunItem {
	items := make([]ListRunItem, 0, len(reports))
	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		if opts.Outcome != "" && string(r.Outcome) != opts.Outcome {
			continue
		}
		item := ListRunItem{
			RunID:      r.RunID,
			Outcome:    string(r.Outcome),
			StartedAt:  r.StartedAt,
			DurationMs: r.DurationMs,
			Plays:      r.Join.Plays,
			Skipped:    len(r.Skipped),
		}
		if r.Policy != nil {
			item.Persisted = r.Policy.RowsPersisted
			item.Rejected = r.Policy.RowsRejected
		}
		items = append(items, item)
		if opts.Limit > 0 && len(items) == opts.Limit {
			break
		}
	}
	return items
}

// Detail flattens one report for rendering.
func Detail(r *runtime.RunReport) *RunDetail {
	d := &RunDetail{
		RunID:         r.RunID,
		JobID:         r.JobID,
		Attempt:       r.Attempt,
		Outcome:       string(r.Outcome),
		Message:       r.Message,
		ExitCode:      r.ExitCode,
		StartedAt:     r.StartedAt,
		DurationMs:    r.DurationMs,
		FilesRead:     r.FilesRead,
		RecordsRead:   r.RecordsRead,
		Plays:         r.Join.Plays,
		ArtistMatched: r.Join.ArtistMatched,
		SongMatched:   r.Join.SongMatched,
		Skipped:       len(r.Skipped),
		Tables:        make([]TableRow, 0, len(types.LoadOrder)),
	}
	if r.Policy != nil {
		d.Policy = r.Policy.Name
		d.Rejected = r.Policy.RowsRejected
	}
	for _, t := range types.LoadOrder {
		c, ok := r.Tables[t]
		if !ok {
			continue
		}
		d.Tables = append(d.Tables, TableRow{
			Table:     string(t),
			Produced:  c.Produced,
			Persisted: c.Persisted,
			Rejected:  c.Rejected,
		})
	}
	return d
}
