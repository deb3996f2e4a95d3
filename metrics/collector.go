// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies: load counters are absorbed from
// policy stats at run completion rather than recorded live, so rows are
// never counted twice.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the run's metrics.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started_total"`
	RunsCompleted int64 `json:"runs_completed_total"`
	RunsPartial   int64 `json:"runs_partial_total"`
	RunsFailed    int64 `json:"runs_failed_total"`
	RunsCanceled  int64 `json:"runs_canceled_total"`

	// Input
	FilesRead       int64            `json:"files_read_total"`
	RecordsRead     int64            `json:"records_read_total"`
	BatchesSkipped  int64            `json:"batches_skipped_total"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason"`

	// Join
	Plays         int64 `json:"plays_total"`
	ArtistMatched int64 `json:"plays_artist_matched_total"`
	SongMatched   int64 `json:"plays_song_matched_total"`

	// Load (absorbed from policy stats at run completion)
	RowsReceived    int64            `json:"rows_received_total"`
	RowsPersisted   int64            `json:"rows_persisted_total"`
	RowsRejected    int64            `json:"rows_rejected_total"`
	RejectedByTable map[string]int64 `json:"rejected_by_table"`

	// Sink writes, per call and per sink name
	SinkWriteSuccess map[string]int64 `json:"sink_write_success_total"`
	SinkWriteFailure map[string]int64 `json:"sink_write_failure_total"`

	// Catalog cache
	CacheArtists int64 `json:"cache_artists_loaded"`
	CacheSongs   int64 `json:"cache_songs_loaded"`

	// Dimensions (informational, set at construction)
	Policy         string `json:"policy"`
	StoreDriver    string `json:"store_driver"`
	StagingBackend string `json:"staging_backend"`
	RunID          string `json:"run_id"`
	JobID          string `json:"job_id,omitempty"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsPartial   int64
	runsFailed    int64
	runsCanceled  int64

	filesRead       int64
	recordsRead     int64
	batchesSkipped  int64
	skippedByReason map[string]int64

	plays         int64
	artistMatched int64
	songMatched   int64

	rowsReceived    int64
	rowsPersisted   int64
	rowsRejected    int64
	rejectedByTable map[string]int64

	sinkWriteSuccess map[string]int64
	sinkWriteFailure map[string]int64

	cacheArtists int64
	cacheSongs   int64

	policy         string
	storeDriver    string
	stagingBackend string
	runID          string
	jobID          string
}

// NewCollector creates a Collector with dimension labels. stagingBackend
// is "none" when staging is disabled.
func NewCollector(policy, storeDriver, stagingBackend, runID, jobID string) *Collector {
	return &Collector{
		skippedByReason:  make(map[string]int64),
		rejectedByTable:  make(map[string]int64),
		sinkWriteSuccess: make(map[string]int64),
		sinkWriteFailure: make(map[string]int64),
		policy:           policy,
		storeDriver:      storeDriver,
		stagingBackend:   stagingBackend,
		runID:            runID,
		jobID:            jobID,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a run that finished with nothing skipped.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunPartial records a run that finished with skipped batches or
// rejected rows.
func (c *Collector) IncRunPartial() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsPartial++
	c.mu.Unlock()
}

// IncRunFailed records a run that ended on a sink failure.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// IncRunCanceled records a canceled run.
func (c *Collector) IncRunCanceled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCanceled++
	c.mu.Unlock()
}

// --- Input ---

// AddFileRead records one input file and the number of records decoded.
func (c *Collector) AddFileRead(records int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesRead++
	c.recordsRead += int64(records)
	c.mu.Unlock()
}

// IncBatchSkipped records a skipped batch with its classified reason.
func (c *Collector) IncBatchSkipped(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesSkipped++
	c.skippedByReason[reason]++
	c.mu.Unlock()
}

// --- Join ---

// SetJoinStats records how many plays the reconciler produced and how many
// resolved each foreign key.
func (c *Collector) SetJoinStats(plays, artistMatched, songMatched int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.plays = int64(plays)
	c.artistMatched = int64(artistMatched)
	c.songMatched = int64(songMatched)
	c.mu.Unlock()
}

// --- Sinks ---
// Sink counters are per call, not per row. Per-row outcomes come from
// AbsorbPolicyStats.

// IncSinkWrite records one sink call for the named sink.
func (c *Collector) IncSinkWrite(sink string, ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if ok {
		c.sinkWriteSuccess[sink]++
	} else {
		c.sinkWriteFailure[sink]++
	}
	c.mu.Unlock()
}

// SetCacheLoaded records how many catalog rows were loaded from the cache.
func (c *Collector) SetCacheLoaded(artists, songs int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheArtists = int64(artists)
	c.cacheSongs = int64(songs)
	c.mu.Unlock()
}

// --- Load (absorbed from policy stats) ---

// AbsorbPolicyStats copies load counters from the final policy stats.
// Table keys are plain strings to keep this package free of internal
// dependencies.
func (c *Collector) AbsorbPolicyStats(received, persisted, rejected int64, rejectedByTable map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rowsReceived = received
	c.rowsPersisted = persisted
	c.rowsRejected = rejected
	c.rejectedByTable = copyMap(rejectedByTable)
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsPartial:   c.runsPartial,
		RunsFailed:    c.runsFailed,
		RunsCanceled:  c.runsCanceled,

		FilesRead:       c.filesRead,
		RecordsRead:     c.recordsRead,
		BatchesSkipped:  c.batchesSkipped,
		SkippedByReason: copyMap(c.skippedByReason),

		Plays:         c.plays,
		ArtistMatched: c.artistMatched,
		SongMatched:   c.songMatched,

		RowsReceived:    c.rowsReceived,
		RowsPersisted:   c.rowsPersisted,
		RowsRejected:    c.rowsRejected,
		RejectedByTable: copyMap(c.rejectedByTable),

		SinkWriteSuccess: copyMap(c.sinkWriteSuccess),
		SinkWriteFailure: copyMap(c.sinkWriteFailure),

		CacheArtists: c.cacheArtists,
		CacheSongs:   c.cacheSongs,

		Policy:         c.policy,
		StoreDriver:    c.storeDriver,
		StagingBackend: c.stagingBackend,
		RunID:          c.runID,
		JobID:          c.jobID,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
