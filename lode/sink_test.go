package lode

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read datasets share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr  error
	GetErr  error
	ListErr error

	PutCalls int
}

func (s *FailingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	s.PutCalls++
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, s.GetErr
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, s.ListErr
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

func testConfig(runID string) Config {
	return Config{
		Dataset: "encore",
		Source:  "sparkify",
		Day:     "2018-11-02",
		RunID:   runID,
	}
}

func strPtr(s string) *string { return &s }

func TestSink_WriteAndQueryRows(t *testing.T) {
	store := lode.NewMemory()
	sink, err := NewSink(testConfig("run-001"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	users := types.NewRowSet(types.TableUsers, []types.UserFact{
		{UserID: "10", FirstName: strPtr("Sylvie"), Level: "free"},
		{UserID: "26", Gender: strPtr("F"), Level: "paid"},
	})
	rejections, err := sink.WriteRows(t.Context(), users.Table, users.Keys, users.Rows)
	if err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	if len(rejections) != 0 {
		t.Errorf("rejections = %v, want none", rejections)
	}

	start := time.UnixMilli(1541121934796).UTC()
	times := types.NewRowSet(types.TableTime, []types.TimeFact{
		{StartTime: start, Hour: 1, Week: 44, Month: 11, Year: 2018, Weekday: 4},
	})
	if _, err := sink.WriteRows(t.Context(), times.Table, times.Keys, times.Rows); err != nil {
		t.Fatalf("WriteRows(time) failed: %v", err)
	}

	ds, err := NewDataset("encore", sharedFactory(store))
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	rows, err := QueryRows(t.Context(), ds, RowFilter{Table: "users"})
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d user rows, want 2", len(rows))
	}
	if rows[0].Key != "10" || rows[1].Key != "26" {
		t.Errorf("keys = %q, %q; want 10, 26", rows[0].Key, rows[1].Key)
	}
	if rows[0].RunID != "run-001" || rows[0].Day != "2018-11-02" || rows[0].Source != "sparkify" {
		t.Errorf("partition fields = %+v", rows[0])
	}
	if got := rows[0].Values["first_name"]; got != "Sylvie" {
		t.Errorf("first_name = %v, want Sylvie", got)
	}
	if got := rows[0].Values["gender"]; got != nil {
		t.Errorf("gender = %v, want nil", got)
	}

	timeRows, err := QueryRows(t.Context(), ds, RowFilter{Table: "time"})
	if err != nil {
		t.Fatalf("QueryRows(time) failed: %v", err)
	}
	if len(timeRows) != 1 {
		t.Fatalf("got %d time rows, want 1", len(timeRows))
	}
	if got := timeRows[0].Values["start_time"]; got != "2018-11-02T01:25:34.796Z" {
		t.Errorf("start_time = %v, want 2018-11-02T01:25:34.796Z", got)
	}
}

func TestQueryRows_FiltersByRunAndLimit(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for _, runID := range []string{"run-1", "run-10"} {
		sink, err := NewSink(testConfig(runID), factory)
		if err != nil {
			t.Fatalf("NewSink failed: %v", err)
		}
		set := types.NewRowSet(types.TableArtists, []types.ArtistFact{
			{ArtistID: "AR1", Name: "Line Renaud"},
			{ArtistID: "AR2", Name: "Elena"},
		})
		if _, err := sink.WriteRows(t.Context(), set.Table, set.Keys, set.Rows); err != nil {
			t.Fatalf("WriteRows failed: %v", err)
		}
	}

	ds, err := NewDataset("encore", factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	rows, err := QueryRows(t.Context(), ds, RowFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows for run-1, want 2", len(rows))
	}
	for _, r := range rows {
		if r.RunID != "run-1" {
			t.Errorf("row from run %q leaked into run-1 query", r.RunID)
		}
	}

	limited, err := QueryRows(t.Context(), ds, RowFilter{Table: "artists", Limit: 3})
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("got %d rows with limit 3, want 3", len(limited))
	}
}

func TestSink_EmptyWriteIsNoop(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("should not be called")}
	sink, err := NewSink(testConfig("run-1"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	if _, err := sink.WriteRows(t.Context(), types.TableUsers, nil, nil); err != nil {
		t.Fatalf("WriteRows(empty) = %v, want nil", err)
	}
	if store.PutCalls != 0 {
		t.Errorf("PutCalls = %d, want 0", store.PutCalls)
	}
}

func TestSink_WriteFailureIsClassified(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("write /data: no space left on device")}
	sink, err := NewSink(testConfig("run-1"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}

	set := types.NewRowSet(types.TableUsers, []types.UserFact{{UserID: "1", Level: "free"}})
	_, err = sink.WriteRows(t.Context(), set.Table, set.Keys, set.Rows)
	if err == nil {
		t.Fatal("WriteRows succeeded, want error")
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("errors.Is(err, ErrDiskFull) = false, err = %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error is %T, want *StorageError", err)
	}
	if se.Op != "write" {
		t.Errorf("Op = %q, want write", se.Op)
	}
	if se.Path != "encore/source=sparkify/table=users/day=2018-11-02/run_id=run-1" {
		t.Errorf("Path = %q", se.Path)
	}
}

func TestQueryLatestMetrics(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for i, runID := range []string{"run-a", "run-b"} {
		sink, err := NewSink(testConfig(runID), factory)
		if err != nil {
			t.Fatalf("NewSink failed: %v", err)
		}
		snap := metrics.Snapshot{
			RunsStarted:   1,
			RunsCompleted: 1,
			RowsPersisted: int64(10 * (i + 1)),
			Policy:        "buffered",
			RunID:         runID,
		}
		completedAt := time.Date(2018, 11, 2, 12, i, 0, 0, time.UTC)
		if err := sink.WriteMetrics(t.Context(), snap, completedAt); err != nil {
			t.Fatalf("WriteMetrics failed: %v", err)
		}
	}

	ds, err := NewDataset("encore", factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	latest, err := QueryLatestMetrics(t.Context(), ds, "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics failed: %v", err)
	}
	if got := toString(latest["run_id"]); got != "run-b" {
		t.Errorf("latest run_id = %q, want run-b", got)
	}

	byRun, err := QueryLatestMetrics(t.Context(), ds, "run-a")
	if err != nil {
		t.Fatalf("QueryLatestMetrics(run-a) failed: %v", err)
	}
	if got := toString(byRun["policy"]); got != "buffered" {
		t.Errorf("policy = %q, want buffered", got)
	}
	if byRun["rows_persisted_total"] == nil {
		t.Error("rows_persisted_total missing")
	}

	if _, err := QueryLatestMetrics(t.Context(), ds, "run-missing"); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("missing run err = %v, want ErrNoMetricsFound", err)
	}
}

func TestDeriveDay(t *testing.T) {
	start := time.Date(2018, 11, 2, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	if got := DeriveDay(start); got != "2018-11-03" {
		t.Errorf("DeriveDay = %q, want 2018-11-03", got)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	tests := []struct {
		path  string
		value string
		want  bool
	}{
		{"encore/source=s/table=users/day=d/run_id=run-1/data.jsonl", "run-1", true},
		{"encore/source=s/table=users/day=d/run_id=run-10/data.jsonl", "run-1", false},
		{"encore/source=s/table=users/day=d/data.jsonl", "run-1", false},
	}
	for _, tt := range tests {
		if got := matchesPartitionValue(tt.path, "run_id", tt.value); got != tt.want {
			t.Errorf("matchesPartitionValue(%q, %q) = %v, want %v", tt.path, tt.value, got, tt.want)
		}
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"my-bucket", "my-bucket", ""},
		{"my-bucket/staging", "my-bucket", "staging"},
		{"s3://my-bucket/a/b/", "my-bucket", "a/b"},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.in)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.in, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestS3Config_Validate(t *testing.T) {
	cfg := S3Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with empty bucket should fail")
	}
	cfg.Bucket = "b"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
