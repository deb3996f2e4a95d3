package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	encoreconfig "github.com/justapithecus/encore/cli/config"
	"github.com/justapithecus/encore/iox"
	"github.com/justapithecus/encore/lode"
	"github.com/justapithecus/encore/log"
	"github.com/justapithecus/encore/metrics"
	"github.com/justapithecus/encore/policy"
	"github.com/justapithecus/encore/runtime"
	"github.com/justapithecus/encore/store"
	"github.com/justapithecus/encore/types"
)

// Default values for run flags.
const (
	defaultPolicy     = "strict"
	defaultBufferRows = 500
	defaultSource     = "default"
)

// RunCommand returns the run command.
// This is the only command that writes to the store.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Validate, transform and load one batch of song and log files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to encore.yaml"},
			// Input
			&cli.StringFlag{Name: "song-root", Usage: "Song catalog root directory"},
			&cli.StringFlag{Name: "log-root", Usage: "Listening event log root directory"},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent file readers per input family", Value: runtime.DefaultWorkers},
			&cli.StringFlag{Name: "catalog-cache", Usage: "Catalog snapshot path for resolving plays across runs"},
			// Run identity
			&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: random UUID)"},
			&cli.IntFlag{Name: "attempt", Usage: "Attempt number (starts at 1)", Value: 1},
			&cli.StringFlag{Name: "job-id", Usage: "Job ID (optional)"},
			&cli.StringFlag{Name: "parent-run-id", Usage: "Parent run ID (required for retries)"},
			// Store
			&cli.StringFlag{Name: "store-driver", Usage: "Store driver: sqlite or postgres", Value: string(store.DriverSQLite)},
			&cli.StringFlag{Name: "store-dsn", Usage: "Store DSN (sqlite: file path, postgres: connection URL)"},
			&cli.BoolFlag{Name: "migrate", Usage: "Apply pending schema migrations before loading", Value: true},
			&cli.BoolFlag{Name: "dry-run", Usage: "Validate and transform without loading, staging or touching the catalog cache"},
			// Policy
			&cli.StringFlag{Name: "policy", Usage: "Load policy: strict, buffered or streaming", Value: defaultPolicy},
			&cli.IntFlag{Name: "buffer-rows", Usage: "Rows per table buffered before a write (buffered policy)", Value: defaultBufferRows},
			&cli.IntFlag{Name: "flush-count", Usage: "Buffered rows that trigger a flush (streaming policy)"},
			&cli.DurationFlag{Name: "flush-interval", Usage: "Flush every interval (streaming policy)"},
			// Staging
			&cli.StringFlag{Name: "staging-backend", Usage: "Staging backend: fs or s3", Value: "fs"},
			&cli.StringFlag{Name: "staging-path", Usage: "Staging path (fs: directory, s3: bucket/prefix); empty disables staging"},
			&cli.StringFlag{Name: "staging-dataset", Usage: "Staging dataset ID", Value: lode.DefaultDataset},
			&cli.StringFlag{Name: "staging-source", Usage: "Source partition for staged rows", Value: defaultSource},
			&cli.StringFlag{Name: "staging-region", Usage: "AWS region for the s3 backend"},
			&cli.StringFlag{Name: "staging-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
			&cli.BoolFlag{Name: "staging-s3-path-style", Usage: "Force path-style S3 addressing"},
			// Adapter
			&cli.StringFlag{Name: "adapter", Usage: "Completion notification adapter: webhook or redis"},
			&cli.StringFlag{Name: "adapter-url", Usage: "Webhook URL or redis:// URL"},
			&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
			&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header as name=value (repeatable)"},
			&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt adapter timeout", Value: 10 * time.Second},
			&cli.IntFlag{Name: "adapter-retries", Usage: "Adapter retry attempts", Value: 3},
			// Output
			&cli.StringFlag{Name: "report", Usage: "Write a JSON run report to this path (- for stderr)"},
			&cli.StringFlag{Name: "metrics-textfile", Usage: "Write node_exporter textfile metrics to this path"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "info"},
			&cli.BoolFlag{Name: "quiet", Usage: "Suppress result output"},
		},
		Action: runAction,
	}
}

// policyChoice holds parsed policy configuration.
type policyChoice struct {
	name          string
	bufferRows    int
	flushCount    int
	flushInterval time.Duration
}

// stagingChoice holds parsed staging configuration.
type stagingChoice struct {
	backend     string // "fs" or "s3"
	path        string // fs: directory, s3: bucket/prefix
	dataset     string
	source      string
	region      string
	endpoint    string
	s3PathStyle bool
}

func (s stagingChoice) enabled() bool { return s.path != "" }

// location renders the staging root for events and logs.
func (s stagingChoice) location() string {
	if !s.enabled() {
		return ""
	}
	if s.backend == "s3" {
		bucket, prefix := lode.ParseS3Path(s.path)
		if prefix == "" {
			return "s3://" + bucket
		}
		return "s3://" + bucket + "/" + prefix
	}
	return s.path
}

// runOptions is the fully resolved run configuration.
type runOptions struct {
	songRoot        string
	logRoot         string
	workers         int
	catalogCache    string
	runMeta         *types.RunMeta
	store           store.Config
	migrate         bool
	dryRun          bool
	policy          policyChoice
	staging         stagingChoice
	adapter         adapterChoice
	report          string
	metricsTextfile string
	logLevel        zapcore.Level
	quiet           bool
}

func runAction(c *cli.Context) error {
	var cfg *encoreconfig.Config
	if path := c.String("config"); path != "" {
		loaded, err := encoreconfig.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), runtime.ExitCodeInvalidConfig)
		}
		cfg = loaded
	}

	opts, err := resolveRunOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInvalidConfig)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := executeRun(ctx, opts, c.App.Writer)
	if err != nil {
		return cli.Exit(err.Error(), code)
	}
	return cli.Exit("", code)
}

// resolveRunOptions merges flags over config and validates the result.
func resolveRunOptions(c *cli.Context, cfg *encoreconfig.Config) (*runOptions, error) {
	opts := &runOptions{
		songRoot:        resolveString(c, "song-root", configVal(cfg, func(c *encoreconfig.Config) string { return c.Input.SongRoot })),
		logRoot:         resolveString(c, "log-root", configVal(cfg, func(c *encoreconfig.Config) string { return c.Input.LogRoot })),
		workers:         resolveInt(c, "workers", configVal(cfg, func(c *encoreconfig.Config) int { return c.Workers })),
		catalogCache:    resolveString(c, "catalog-cache", configVal(cfg, func(c *encoreconfig.Config) string { return c.CatalogCache })),
		migrate:         c.Bool("migrate"),
		dryRun:          c.Bool("dry-run"),
		report:          resolveString(c, "report", configVal(cfg, func(c *encoreconfig.Config) string { return c.Report })),
		metricsTextfile: resolveString(c, "metrics-textfile", configVal(cfg, func(c *encoreconfig.Config) string { return c.MetricsTextfile })),
		quiet:           c.Bool("quiet"),
		policy: policyChoice{
			name:       resolveString(c, "policy", configVal(cfg, func(c *encoreconfig.Config) string { return c.Policy.Name })),
			bufferRows: resolveInt(c, "buffer-rows", configVal(cfg, func(c *encoreconfig.Config) int { return c.Policy.BufferRows })),
			flushCount: resolveInt(c, "flush-count", configVal(cfg, func(c *encoreconfig.Config) int { return c.Policy.FlushCount })),
			flushInterval: resolveDuration(c, "flush-interval", configVal(cfg, func(c *encoreconfig.Config) time.Duration {
				return c.Policy.FlushInterval.Duration
			})),
		},
	}

	if opts.songRoot == "" && opts.logRoot == "" {
		return nil, errors.New("at least one of --song-root or --log-root is required")
	}
	if err := validatePolicyConfig(opts.policy); err != nil {
		return nil, err
	}

	sc := configVal(cfg, func(c *encoreconfig.Config) encoreconfig.StagingConfig { return c.Staging })
	opts.staging = stagingChoice{
		backend:     resolveString(c, "staging-backend", sc.Backend),
		path:        resolveString(c, "staging-path", sc.Path),
		dataset:     resolveString(c, "staging-dataset", sc.Dataset),
		source:      resolveString(c, "staging-source", sc.Source),
		region:      resolveString(c, "staging-region", sc.Region),
		endpoint:    resolveString(c, "staging-endpoint", sc.Endpoint),
		s3PathStyle: resolveBool(c, "staging-s3-path-style", sc.S3PathStyle),
	}
	if err := validateStagingConfig(opts.staging); err != nil {
		return nil, err
	}
	if opts.dryRun {
		opts.policy = policyChoice{name: "noop"}
		opts.staging = stagingChoice{}
	}

	st := configVal(cfg, func(c *encoreconfig.Config) encoreconfig.StoreConfig { return c.Store })
	driver, err := store.ParseDriver(resolveString(c, "store-driver", st.Driver))
	if err != nil {
		return nil, fmt.Errorf("invalid --store-driver: %w", err)
	}
	opts.store = store.Config{Driver: driver, DSN: resolveString(c, "store-dsn", st.DSN)}
	if driver == store.DriverPostgres && opts.store.DSN == "" {
		return nil, errors.New("--store-dsn is required for the postgres driver")
	}

	level, err := log.ParseLevel(resolveString(c, "log-level", configVal(cfg, func(c *encoreconfig.Config) string { return c.LogLevel })))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	opts.logLevel = level

	if opts.adapter, err = parseAdapterConfig(c, cfg); err != nil {
		return nil, err
	}

	runMeta := &types.RunMeta{
		RunID:   c.String("run-id"),
		Attempt: c.Int("attempt"),
	}
	if runMeta.RunID == "" {
		runMeta.RunID = uuid.NewString()
	}
	if jobID := c.String("job-id"); jobID != "" {
		runMeta.JobID = &jobID
	}
	if parentRunID := c.String("parent-run-id"); parentRunID != "" {
		runMeta.ParentRunID = &parentRunID
	}
	if err := runMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	opts.runMeta = runMeta

	return opts, nil
}

func validatePolicyConfig(choice policyChoice) error {
	switch choice.name {
	case "strict":
		return nil
	case "buffered":
		if choice.bufferRows <= 0 {
			return fmt.Errorf("buffered policy requires --buffer-rows > 0, got %d", choice.bufferRows)
		}
		return nil
	case "streaming":
		if choice.flushCount < 0 || choice.flushInterval < 0 {
			return errors.New("streaming policy flush triggers must not be negative")
		}
		if choice.flushCount == 0 && choice.flushInterval == 0 {
			return errors.New("streaming policy requires --flush-count > 0 or --flush-interval > 0")
		}
		return nil
	default:
		return fmt.Errorf("invalid --policy %q (must be strict, buffered or streaming)", choice.name)
	}
}

func validateStagingConfig(s stagingChoice) error {
	switch s.backend {
	case "fs", "":
	case "s3":
		if s.enabled() {
			if bucket, _ := lode.ParseS3Path(s.path); bucket == "" {
				return fmt.Errorf("invalid --staging-path %q: expected bucket/prefix", s.path)
			}
		}
	default:
		return fmt.Errorf("invalid --staging-backend %q (must be fs or s3)", s.backend)
	}
	if s.enabled() && s.source == "" {
		return errors.New("--staging-source must not be empty")
	}
	return nil
}

// executeRun performs the run and returns its exit code. A non-nil error
// carries a message for the exit handler.
func executeRun(ctx context.Context, opts *runOptions, out io.Writer) (int, error) {
	startTime := time.Now()
	logger := log.NewLoggerWithOutput(opts.runMeta, os.Stderr, opts.logLevel)
	defer func() { _ = logger.Sync() }()

	var closers []io.Closer
	defer func() {
		if err := iox.CloseAll(closers...); err != nil {
			logger.Warn("failed to close run resources", map[string]any{"error": err.Error()})
		}
	}()

	lp, err := buildLoadPath(ctx, opts, logger, startTime, &closers)
	if err != nil {
		return runtime.ExitCodeInvalidConfig, err
	}
	collector := lp.collector

	catalogCache := opts.catalogCache
	if opts.dryRun {
		catalogCache = ""
	}
	orchestrator, err := runtime.NewRunOrchestrator(&runtime.RunConfig{
		RunMeta:      opts.runMeta,
		SongRoot:     opts.songRoot,
		LogRoot:      opts.logRoot,
		Workers:      opts.workers,
		Policy:       lp.policy,
		CatalogCache: catalogCache,
		Collector:    collector,
		Logger:       logger,
	})
	if err != nil {
		return runtime.ExitCodeInvalidConfig, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		return runtime.ExitCodeInvalidConfig, fmt.Errorf("run failed: %w", err)
	}
	exitCode := runtime.OutcomeToExitCode(result.Outcome.Status)
	snap := collector.Snapshot()

	// Post-run outputs run even after cancellation.
	postCtx := context.WithoutCancel(ctx)
	if lp.staged != nil {
		if err := lp.staged.WriteMetrics(postCtx, snap, time.Now()); err != nil {
			logger.Warn("failed to stage metrics", map[string]any{"error": err.Error()})
		}
	}
	if opts.metricsTextfile != "" {
		if err := metrics.WriteTextfile(opts.metricsTextfile, snap); err != nil {
			logger.Warn("failed to write metrics textfile", map[string]any{"error": err.Error()})
		}
	}
	if opts.report != "" {
		report := runtime.BuildRunReport(result, snap, opts.policy.name, exitCode)
		if err := runtime.WriteRunReport(report, opts.report); err != nil {
			logger.Warn("failed to write run report", map[string]any{"error": err.Error()})
		}
	}
	if opts.adapter.kind != "" {
		publishCompletion(postCtx, logger, opts, result, lp.driver)
	}

	if !opts.quiet {
		printRunResult(out, result, opts)
	}
	return exitCode, nil
}

// loadPath is where a run's rows go.
type loadPath struct {
	policy    policy.Policy
	collector *metrics.Collector
	driver    string
	staged    *lode.Sink
}

// buildLoadPath opens the store and optional staging sink and wraps them in
// the configured policy. Dry runs open nothing. Opened resources are
// appended to closers.
func buildLoadPath(ctx context.Context, opts *runOptions, logger *log.Logger, startTime time.Time, closers *[]io.Closer) (*loadPath, error) {
	var jobID string
	if opts.runMeta.JobID != nil {
		jobID = *opts.runMeta.JobID
	}

	if opts.dryRun {
		return &loadPath{
			policy:    policy.NewNoopPolicy(),
			collector: metrics.NewCollector(opts.policy.name, "none", "none", opts.runMeta.RunID, jobID),
			driver:    "none",
		}, nil
	}

	st, err := store.Open(ctx, opts.store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	*closers = append(*closers, st)

	if opts.migrate {
		applied, err := st.MigrateUp(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate store: %w", err)
		}
		if applied > 0 {
			logger.Info("migrations applied", map[string]any{"count": applied})
		}
	}

	stagingLabel := "none"
	if opts.staging.enabled() {
		stagingLabel = opts.staging.backend
	}
	lp := &loadPath{
		collector: metrics.NewCollector(opts.policy.name, string(st.Driver()), stagingLabel, opts.runMeta.RunID, jobID),
		driver:    string(st.Driver()),
	}

	var sink policy.Sink = policy.NewInstrumentedSink("store", store.NewSink(st), lp.collector)
	if opts.staging.enabled() {
		lp.staged, err = buildStagingSink(ctx, opts.staging, opts.runMeta.RunID, startTime)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging sink: %w", err)
		}
		sink = policy.Tee(sink, policy.NewInstrumentedSink("staging", lp.staged, lp.collector))
	}

	lp.policy, err = buildPolicy(opts.policy, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}
	*closers = append(*closers, lp.policy)
	return lp, nil
}

func publishCompletion(ctx context.Context, logger *log.Logger, opts *runOptions, result *runtime.RunResult, driver string) {
	a, err := buildAdapter(opts.adapter)
	if err != nil {
		logger.Warn("failed to create adapter", map[string]any{"adapter": opts.adapter.kind, "error": err.Error()})
		return
	}
	defer func() { _ = a.Close() }()

	event := buildRunCompletedEvent(result, driver, opts.staging.location(), time.Now())
	if err := notify(ctx, a, event); err != nil {
		logger.Warn("failed to publish run completion", map[string]any{"adapter": opts.adapter.kind, "error": err.Error()})
		return
	}
	logger.Debug("run completion published", map[string]any{"adapter": opts.adapter.kind})
}

func buildPolicy(choice policyChoice, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch choice.name {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "noop":
		return policy.NewNoopPolicy(), nil
	case "buffered":
		p, err := policy.NewBufferedPolicy(sink, policy.BufferedConfig{
			MaxBufferRows: choice.bufferRows,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "streaming":
		p, err := policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    choice.flushCount,
			FlushInterval: choice.flushInterval,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown policy: %s", choice.name)
	}
}

// buildStagingFactory returns the Lode store factory for a staging choice.
func buildStagingFactory(ctx context.Context, s stagingChoice) (lodelib.StoreFactory, error) {
	switch s.backend {
	case "fs", "":
		if err := os.MkdirAll(s.path, 0o755); err != nil {
			return nil, fmt.Errorf("create staging directory: %w", err)
		}
		return lodelib.NewFSFactory(s.path), nil
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.path)
		return lode.NewS3Factory(ctx, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.region,
			Endpoint:     s.endpoint,
			UsePathStyle: s.s3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown staging backend: %s", s.backend)
	}
}

func buildStagingSink(ctx context.Context, s stagingChoice, runID string, startTime time.Time) (*lode.Sink, error) {
	factory, err := buildStagingFactory(ctx, s)
	if err != nil {
		return nil, err
	}
	return lode.NewSink(lode.Config{
		Dataset: s.dataset,
		Source:  s.source,
		Day:     lode.DeriveDay(startTime),
		RunID:   runID,
	}, factory)
}

func printRunResult(w io.Writer, result *runtime.RunResult, opts *runOptions) {
	fmt.Fprintf(w, "\nrun_id=%s, attempt=%d, outcome=%s, duration=%s\n",
		result.RunMeta.RunID,
		result.RunMeta.Attempt,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)
	switch opts.policy.name {
	case "buffered":
		fmt.Fprintf(w, "policy=%s, buffer_rows=%d, flushes=%d\n", opts.policy.name, opts.policy.bufferRows, result.PolicyStats.FlushCount)
	case "streaming":
		fmt.Fprintf(w, "policy=%s, flush_count=%d, flush_interval=%s, flushes=%d\n",
			opts.policy.name, opts.policy.flushCount, opts.policy.flushInterval, result.PolicyStats.FlushCount)
	default:
		fmt.Fprintf(w, "policy=%s\n", opts.policy.name)
	}

	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:       %s\n", result.RunMeta.RunID)
	if result.RunMeta.JobID != nil {
		fmt.Fprintf(w, "Job ID:       %s\n", *result.RunMeta.JobID)
	}
	if result.RunMeta.ParentRunID != nil {
		fmt.Fprintf(w, "Parent Run:   %s\n", *result.RunMeta.ParentRunID)
	}
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Files:        %d\n", result.FilesRead)
	fmt.Fprintf(w, "Records:      %d\n", result.RecordsRead)
	if loc := opts.staging.location(); loc != "" {
		fmt.Fprintf(w, "Staging:      %s\n", loc)
	}

	fmt.Fprintf(w, "\n=== Tables ===\n")
	ps := result.PolicyStats
	for _, t := range types.LoadOrder {
		fmt.Fprintf(w, "%-10s produced=%d persisted=%d rejected=%d\n",
			t, result.Produced.Counts[t], ps.PersistedByTable[t], ps.RejectedByTable[t])
	}

	fmt.Fprintf(w, "\n=== Join ===\n")
	fmt.Fprintf(w, "Plays:          %d\n", result.Join.Plays)
	fmt.Fprintf(w, "Artist matched: %d\n", result.Join.ArtistMatched)
	fmt.Fprintf(w, "Song matched:   %d\n", result.Join.SongMatched)

	if len(result.Skipped) > 0 {
		fmt.Fprintf(w, "\n=== Skipped Batches ===\n")
		for _, s := range result.Skipped {
			fmt.Fprintf(w, "  - %s %s: %s\n", s.Family, s.Source, s.Err)
		}
	}
}
