// Package engine orchestrates scraping: it drives each source through fetch,
// extraction and filtering, runs categories concurrently and merges the
// results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/fetcher"
	"github.com/IshaanNene/sourcewatch/internal/observability"
	"github.com/IshaanNene/sourcewatch/internal/parser"
	"github.com/IshaanNene/sourcewatch/internal/pipeline"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// DefaultFetcher is the fetcher type used by sources that do not name one.
const DefaultFetcher = "http"

// Engine is the scrape orchestrator. It is safe for concurrent use once its
// fetchers are registered.
type Engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	extractor *parser.Extractor
	filter    *pipeline.Pipeline
	builder   *pipeline.RecordBuilder
	metrics   *observability.Metrics

	rules    map[string]*parser.Rules
	fetchers map[string]*fetcher.RetryFetcher
	sleep    fetcher.SleepFunc
	now      func() time.Time

	mu sync.RWMutex
}

// New validates the configured sources, compiles their rulesets and creates
// an Engine. Configuration problems are returned as *types.ConfigError.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.ValidateSources(cfg.Sources); err != nil {
		return nil, err
	}

	rules := make(map[string]*parser.Rules, len(cfg.Sources))
	for i, src := range cfg.Sources {
		compiled, err := parser.CompileRuleset(src.Rules)
		if err != nil {
			return nil, &types.ConfigError{Field: fmt.Sprintf("sources[%d].rules", i), Err: err}
		}
		rules[src.Name] = compiled
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		extractor: parser.NewExtractor(cfg.Scrape, logger),
		filter:    pipeline.NewQualityFilter(cfg.Filter, logger),
		builder:   pipeline.NewRecordBuilder(cfg.Filter),
		metrics:   observability.NewMetrics(logger),
		rules:     rules,
		fetchers:  make(map[string]*fetcher.RetryFetcher),
		sleep:     fetcher.Sleep,
		now:       time.Now,
	}, nil
}

// SetFetcher registers a single-attempt fetcher for a fetcher type. The
// engine wraps it with the configured retry policy.
func (e *Engine) SetFetcher(fetcherType string, f fetcher.Fetcher) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rf := fetcher.NewRetryFetcher(f, e.cfg.Retry, e.logger)
	rf.SetSleep(e.sleep)
	e.fetchers[fetcherType] = rf
}

// SetSleep replaces the function used for the politeness delay and the retry
// backoff.
func (e *Engine) SetSleep(sleep fetcher.SleepFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sleep = sleep
	for _, rf := range e.fetchers {
		rf.SetSleep(sleep)
	}
}

// SetMetrics replaces the engine's counters, e.g. to share them with a
// metrics server.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *observability.Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Sources returns the configured sources of a category in order.
func (e *Engine) Sources(category types.Category) []config.Source {
	return e.cfg.SourcesFor(category)
}

// Close closes every registered fetcher.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, f := range e.fetchers {
		if err := f.Close(); err != nil {
			e.logger.Error("fetcher close error", "fetcher", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s fetcher: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// fetcherFor returns the retrying fetcher for a source. Sources without a
// fetcher use fetcher.type; unregistered types use the http fetcher.
func (e *Engine) fetcherFor(src config.Source) (*fetcher.RetryFetcher, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name := src.Fetcher
	if name == "" {
		name = e.cfg.Fetcher.Type
	}
	if name == "" {
		name = DefaultFetcher
	}
	if f, ok := e.fetchers[name]; ok {
		return f, nil
	}
	if f, ok := e.fetchers[DefaultFetcher]; ok {
		e.logger.Debug("fetcher type not registered, using default",
			"source", src.Name,
			"fetcher", name,
		)
		return f, nil
	}
	return nil, fmt.Errorf("no fetcher registered for type %q", name)
}

func (e *Engine) rulesFor(src config.Source) (*parser.Rules, error) {
	e.mu.RLock()
	rules, ok := e.rules[src.Name]
	e.mu.RUnlock()
	if ok {
		return rules, nil
	}
	return parser.CompileRuleset(src.Rules)
}

func (e *Engine) sleepFunc() fetcher.SleepFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sleep
}

// withDeadline applies the configured overall deadline when the caller did
// not set a tighter one.
func (e *Engine) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Scrape.Deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Scrape.Deadline)
}
