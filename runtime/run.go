// Package runtime orchestrates one encore run: discovery, concurrent
// ingestion, transformation, reconciliation and loading through a policy.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/encore/cache"
	"github.com/justapithecus/encore/catalog"
	"github.com/justapithecus/encore/events"
	"github.com/justapithecus/encore/log"
	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/policy"
	"github.com/justapithecus/encore/reconcile"
	"github.com/justapithecus/encore/types"
)

// Input family names.
const (
	FamilySongs = "songs"
	FamilyLogs  = "logs"
)

// flushTimeout bounds the best-effort final flush.
const flushTimeout = 30 * time.Second

// RunConfig configures a single run.
type RunConfig struct {
	// RunMeta is the run identity and lineage metadata.
	RunMeta *types.RunMeta
	// SongRoot is the song catalog root. Empty skips the catalog.
	SongRoot string
	// LogRoot is the listening event log root. Empty skips events.
	LogRoot string
	// Workers bounds concurrent file reads per family.
	Workers int
	// Policy is the load policy. The orchestrator flushes but does not
	// close it.
	Policy policy.Policy
	// CatalogCache is the optional catalog snapshot path.
	CatalogCache string
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the default JSON logger (for testing).
	Logger *log.Logger
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// Produced counts what the transformation emitted before loading.
type Produced struct {
	Counts         map[types.Table]int64
	DroppedArtists int
	DroppedSongs   int
	DroppedUsers   int
	UntimedPlays   int
	CacheArtists   int
	CacheSongs     int
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunMeta is the run identity and lineage.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// StartedAt and Duration time the run.
	StartedAt time.Time
	Duration  time.Duration
	// FilesRead and RecordsRead cover both families.
	FilesRead   int
	RecordsRead int
	// Skipped lists every skipped batch in family then file order.
	Skipped []SkippedBatch
	// Produced describes the transformation output.
	Produced Produced
	// Join summarizes how plays resolved against the catalog.
	Join reconcile.Summary
	// PolicyStats is the policy statistics.
	PolicyStats policy.Stats
	// Rejections lists every row the sink rejected.
	Rejections []policy.RowError
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	ingestion *IngestionEngine
	now       func() time.Time
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if run metadata or the policy is invalid.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Policy == nil {
		return nil, errors.New("policy is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &RunOrchestrator{
		config:    config,
		logger:    logger,
		ingestion: NewIngestionEngine(config.Workers, logger, config.Collector),
		now:       now,
	}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Read and validate both families (concurrently per family)
//  2. Project catalog and events; merge the catalog cache
//  3. Reconcile plays against the catalog
//  4. Hand row sets to the policy in load order, then flush
//  5. Determine outcome
//
// The returned error is non-nil only when an input root cannot be read;
// every other failure is reported through the outcome.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = r.now()
	r.config.Collector.IncRunStarted()

	r.logger.Info("starting run", map[string]any{
		"song_root": r.config.SongRoot,
		"log_root":  r.config.LogRoot,
		"workers":   r.ingestion.workers,
	})

	result := &RunResult{RunMeta: r.config.RunMeta, StartedAt: r.startTime}

	songs, err := r.ingestion.Run(ctx, Family{Name: FamilySongs, Root: r.config.SongRoot, Schema: catalog.Schema})
	if err != nil {
		return r.abort(result, err)
	}
	r.absorbIngest(result, songs)

	logs, err := r.ingestion.Run(ctx, Family{Name: FamilyLogs, Root: r.config.LogRoot, Schema: events.Schema, Sorted: true})
	if err != nil {
		return r.abort(result, err)
	}
	r.absorbIngest(result, logs)

	cat := catalog.Project(songs.Table)
	evt := events.Project(logs.Table)

	fresh := cache.Catalog{Artists: cat.Artists, Songs: cat.Songs}
	known := fresh
	if r.config.CatalogCache != "" {
		cached, err := cache.Load(r.config.CatalogCache)
		if err != nil {
			// An unreadable snapshot is rebuilt from this run's catalog.
			r.logger.Warn("catalog cache unreadable, ignoring", map[string]any{
				"path":  r.config.CatalogCache,
				"error": err.Error(),
			})
		}
		known = cache.Merge(cached, fresh)
		result.Produced.CacheArtists = len(cached.Artists)
		result.Produced.CacheSongs = len(cached.Songs)
		r.config.Collector.SetCacheLoaded(len(cached.Artists), len(cached.Songs))
	}

	plays := reconcile.Reconcile(evt.Candidates, known.Artists, known.Songs)
	result.Join = reconcile.Summarize(plays)
	r.config.Collector.SetJoinStats(result.Join.Plays, result.Join.ArtistMatched, result.Join.SongMatched)

	load := &types.LoadSet{
		Artists: cat.Artists,
		Songs:   cat.Songs,
		Users:   evt.Users,
		Times:   evt.Times,
		Plays:   plays,
	}
	result.Produced.Counts = load.Counts()
	result.Produced.DroppedArtists = cat.DroppedArtists
	result.Produced.DroppedSongs = cat.DroppedSongs
	result.Produced.DroppedUsers = evt.DroppedUsers
	result.Produced.UntimedPlays = evt.UntimedPlays

	r.logger.Info("transformation complete", map[string]any{
		"artists":        len(load.Artists),
		"songs":          len(load.Songs),
		"users":          len(load.Users),
		"times":          len(load.Times),
		"plays":          len(load.Plays),
		"artist_matched": result.Join.ArtistMatched,
		"song_matched":   result.Join.SongMatched,
	})

	canceled, loadErr := r.load(ctx, load)

	if loadErr == nil && !canceled && r.config.CatalogCache != "" {
		if err := cache.Save(r.config.CatalogCache, known, r.now()); err != nil {
			r.logger.Warn("catalog cache not saved", map[string]any{
				"path":  r.config.CatalogCache,
				"error": err.Error(),
			})
		}
	}

	result.Rejections = r.config.Policy.Rejections()
	for _, rej := range result.Rejections {
		r.logger.Warn("row rejected", map[string]any{
			"table": string(rej.Table),
			"key":   rej.Key,
			"error": rej.Err.Error(),
		})
	}

	outcome := DetermineOutcome(canceled, loadErr, len(result.Skipped), len(result.Rejections))
	return r.finish(result, outcome), nil
}

// load hands every row set to the policy and flushes. Cancellation is
// checked between row sets; the final flush is always attempted.
func (r *RunOrchestrator) load(ctx context.Context, load *types.LoadSet) (canceled bool, loadErr error) {
	for _, set := range load.RowSets() {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		if err := r.config.Policy.Ingest(ctx, set); err != nil {
			if ctx.Err() != nil {
				canceled = true
			} else {
				loadErr = fmt.Errorf("ingest %s: %w", set.Table, err)
			}
			break
		}
	}

	// WithoutCancel keeps context values while ignoring parent cancellation.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer flushCancel()
	if err := r.config.Policy.Flush(flushCtx); err != nil {
		r.logger.Error("policy flush failed", map[string]any{
			"error": err.Error(),
		})
		if loadErr == nil && !canceled {
			loadErr = fmt.Errorf("flush: %w", err)
		}
	}
	return canceled, loadErr
}

func (r *RunOrchestrator) absorbIngest(result *RunResult, in *IngestResult) {
	result.FilesRead += in.FilesRead
	result.RecordsRead += in.RecordsRead
	result.Skipped = append(result.Skipped, in.Skipped...)
}

// abort ends a run that stopped during ingestion. Cancellation is an
// outcome; a discovery failure is returned to the caller.
func (r *RunOrchestrator) abort(result *RunResult, err error) (*RunResult, error) {
	if IsCanceledError(err) {
		r.logger.Warn("run canceled during ingestion", map[string]any{
			"error": err.Error(),
		})
		return r.finish(result, DetermineOutcome(true, nil, len(result.Skipped), 0)), nil
	}
	r.logger.Error("input discovery failed", map[string]any{
		"error": err.Error(),
	})
	r.config.Collector.IncRunFailed()
	return nil, err
}

// finish stamps the outcome, records outcome metrics and absorbs policy
// stats into the collector.
func (r *RunOrchestrator) finish(result *RunResult, outcome *types.RunOutcome) *RunResult {
	result.Outcome = outcome
	result.Duration = r.now().Sub(r.startTime)
	result.PolicyStats = r.config.Policy.Stats()

	switch outcome.Status {
	case types.OutcomeSuccess:
		r.config.Collector.IncRunCompleted()
	case types.OutcomePartial:
		r.config.Collector.IncRunPartial()
	case types.OutcomeLoadFailure:
		r.config.Collector.IncRunFailed()
	case types.OutcomeCanceled:
		r.config.Collector.IncRunCanceled()
	}

	ps := result.PolicyStats
	rejectedByTable := make(map[string]int64, len(ps.RejectedByTable))
	for t, n := range ps.RejectedByTable {
		rejectedByTable[string(t)] = n
	}
	r.config.Collector.AbsorbPolicyStats(ps.TotalRows, ps.RowsPersisted, ps.RowsRejected, rejectedByTable)

	r.logger.Info("run completed", map[string]any{
		"outcome":  string(outcome.Status),
		"message":  outcome.Message,
		"duration": result.Duration.String(),
		"skipped":  len(result.Skipped),
		"rejected": len(result.Rejections),
	})
	return result
}
