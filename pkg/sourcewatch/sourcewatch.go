// Package sourcewatch is the public API for embedding the scraper as a
// library.
//
// Example usage:
//
//	client, err := sourcewatch.New(
//	    sourcewatch.WithRetry(3, time.Second),
//	    sourcewatch.WithDeadline(2*time.Minute),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	result := client.ScrapeAll(ctx, "budget")
//	for _, rec := range result.Records {
//	    fmt.Println(rec.Source, rec.Title)
//	}
package sourcewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/engine"
	"github.com/IshaanNene/sourcewatch/internal/fetcher"
	"github.com/IshaanNene/sourcewatch/internal/observability"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

type (
	// Record is one validated headline with its content preview.
	Record = types.Record
	// Category groups sources that are scraped together.
	Category = types.Category
	// Source describes one external site and its extraction rules.
	Source = config.Source
	// Ruleset holds the ordered selector chains of a source.
	Ruleset = config.Ruleset
	// Result is the output of ScrapeAll.
	Result = types.AggregationResult
	// Outcome is the manifest entry of one source in a Result.
	Outcome = types.SourceOutcome
	// Config is the full configuration.
	Config = config.Config
)

const (
	News       = types.CategoryNews
	Government = types.CategoryGovernment
	Social     = types.CategorySocial
)

// Categories lists every category in merge order.
func Categories() []Category {
	return append([]Category(nil), types.Categories...)
}

// ParseCategory converts a category name.
func ParseCategory(s string) (Category, error) {
	return types.ParseCategory(s)
}

// DefaultSources returns the built-in source catalog.
func DefaultSources() []Source {
	return config.DefaultSources()
}

// ErrorClass returns the short failure class of a per-source error.
func ErrorClass(err error) string {
	return types.ErrorClass(err)
}

// Client scrapes the configured sources.
type Client struct {
	cfg     *config.Config
	engine  *engine.Engine
	logger  *slog.Logger
	metrics *http.Server
}

// New creates a Client from the default configuration and options.
func New(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg, nil)
}

// Load creates a Client from a config file (or the standard search paths
// when path is empty), then applies the options.
func Load(path string, opts ...Option) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg, nil)
}

// NewWithConfig validates cfg and wires the engine. A nil logger is built
// from cfg.Logging and writes to stderr.
func NewWithConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(cfg.Logging, os.Stderr)
	}

	eng, err := engine.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	eng.SetFetcher("http", httpFetcher)

	if usesBrowser(cfg) {
		eng.SetFetcher("browser", fetcher.NewBrowserFetcher(cfg, logger))
	}

	c := &Client{
		cfg:    cfg,
		engine: eng,
		logger: logger.With("component", "client"),
	}

	if cfg.Metrics.Enabled {
		srv, err := eng.Metrics().StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		if err != nil {
			c.logger.Warn("failed to start metrics server", "error", err)
		} else {
			c.metrics = srv
		}
	}

	return c, nil
}

func usesBrowser(cfg *config.Config) bool {
	if cfg.Fetcher.Type == "browser" {
		return true
	}
	for _, src := range cfg.Sources {
		if src.Fetcher == "browser" {
			return true
		}
	}
	return false
}

// Scrape scrapes one category. Sources that failed are listed in the error
// map; the records of the others are returned regardless.
func (c *Client) Scrape(ctx context.Context, category Category, query string) ([]Record, map[string]error) {
	return c.engine.Scrape(ctx, category, query)
}

// ScrapeSource scrapes a single source, which does not need to be part of
// the configuration.
func (c *Client) ScrapeSource(ctx context.Context, src Source, query string) ([]Record, error) {
	return c.engine.ScrapeSource(ctx, src, query)
}

// ScrapeAll scrapes every category concurrently and returns the merged,
// deduplicated records with a per-source manifest.
func (c *Client) ScrapeAll(ctx context.Context, query string) *Result {
	return c.engine.ScrapeAll(ctx, query)
}

// HealthCheck makes one fetch attempt per URL and reports which respond.
func (c *Client) HealthCheck(ctx context.Context, urls ...string) (working, failed []string) {
	return c.engine.HealthCheck(ctx, urls)
}

// HealthCheckSources checks the URL of every configured source.
func (c *Client) HealthCheckSources(ctx context.Context) (working, failed []string) {
	urls := make([]string, 0, len(c.cfg.Sources))
	for _, src := range c.cfg.Sources {
		urls = append(urls, src.URL)
	}
	return c.engine.HealthCheck(ctx, urls)
}

// Sources returns the configured sources of a category.
func (c *Client) Sources(category Category) []Source {
	return c.engine.Sources(category)
}

// Config returns the client's configuration.
func (c *Client) Config() *Config {
	return c.cfg
}

// Stats returns the run counters.
func (c *Client) Stats() map[string]int64 {
	return c.engine.Metrics().Snapshot()
}

// Close stops the metrics server and releases the fetchers.
func (c *Client) Close() error {
	var errs []error
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	if err := c.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
