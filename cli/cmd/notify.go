package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/encore/adapter"
	redisadapter "github.com/justapithecus/encore/adapter/redis"
	"github.com/justapithecus/encore/adapter/webhook"
	encoreconfig "github.com/justapithecus/encore/cli/config"
	"github.com/justapithecus/encore/runtime"
	"github.com/justapithecus/encore/types"
)

// notifyTimeout bounds the whole publish, retries included.
const notifyTimeout = time.Minute

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	kind    string // "", "webhook" or "redis"
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// parseAdapterConfig resolves adapter settings from flags and config.
// An empty kind means no adapter.
func parseAdapterConfig(c *cli.Context, cfg *encoreconfig.Config) (adapterChoice, error) {
	ac := configVal(cfg, func(c *encoreconfig.Config) encoreconfig.AdapterConfig { return c.Adapter })

	choice := adapterChoice{
		kind:    resolveString(c, "adapter", ac.Type),
		url:     resolveString(c, "adapter-url", ac.URL),
		channel: resolveString(c, "adapter-channel", ac.Channel),
		timeout: resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries: c.Int("adapter-retries"),
	}
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		choice.retries = *ac.Retries
	}

	choice.headers = make(map[string]string, len(ac.Headers))
	for k, v := range ac.Headers {
		choice.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		name, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return adapterChoice{}, fmt.Errorf("invalid --adapter-header %q: expected name=value", h)
		}
		choice.headers[strings.TrimSpace(name)] = value
	}

	switch choice.kind {
	case "":
		return choice, nil
	case "webhook", "redis":
		if choice.url == "" {
			return adapterChoice{}, fmt.Errorf("--adapter-url is required when --adapter=%s", choice.kind)
		}
	default:
		return adapterChoice{}, fmt.Errorf("invalid --adapter %q (must be webhook or redis)", choice.kind)
	}
	if choice.retries < 0 {
		return adapterChoice{}, fmt.Errorf("--adapter-retries must be >= 0, got %d", choice.retries)
	}
	return choice, nil
}

// buildAdapter constructs the configured adapter, or nil when none is set.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redisadapter.New(redisadapter.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, nil
	}
}

// buildRunCompletedEvent maps a run result to the completion event.
func buildRunCompletedEvent(result *runtime.RunResult, driver, stagingPath string, now time.Time) *adapter.RunCompletedEvent {
	ps := result.PolicyStats
	persisted := make(map[string]int64, len(types.LoadOrder))
	for _, t := range types.LoadOrder {
		persisted[string(t)] = ps.PersistedByTable[t]
	}

	event := &adapter.RunCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeRunCompleted,
		RunID:           result.RunMeta.RunID,
		Attempt:         result.RunMeta.Attempt,
		Outcome:         string(result.Outcome.Status),
		Message:         result.Outcome.Message,
		Timestamp:       now.UTC().Format(time.RFC3339),
		DurationMs:      result.Duration.Milliseconds(),
		StoreDriver:     driver,
		StagingPath:     stagingPath,
		RowsPersisted:   persisted,
		RowsRejected:    ps.RowsRejected,
		BatchesSkipped:  len(result.Skipped),
		Plays:           result.Join.Plays,
	}
	if result.RunMeta.JobID != nil {
		event.JobID = *result.RunMeta.JobID
	}
	return event
}

// notify publishes the event. Failures are returned for logging; they
// never change the run's exit code.
func notify(ctx context.Context, a adapter.Adapter, event *adapter.RunCompletedEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	return a.Publish(ctx, event)
}
