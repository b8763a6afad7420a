package sourcewatch

import (
	"time"

	"github.com/IshaanNene/sourcewatch/internal/config"
)

// Option configures a Client.
type Option func(*config.Config)

// WithSources replaces the built-in source catalog.
func WithSources(sources ...Source) Option {
	return func(c *config.Config) { c.Sources = sources }
}

// WithRetry sets the number of fetch attempts per source and the base
// backoff delay. The wait before attempt n+1 is n times the base delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *config.Config) {
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.BaseDelay = baseDelay
	}
}

// WithTimeout sets the per-attempt fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config.Config) { c.Retry.Timeout = d }
}

// WithDelay sets the politeness delay between sources of one category.
func WithDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Scrape.InterSourceDelay = d }
}

// WithDeadline bounds every Scrape and ScrapeAll call.
func WithDeadline(d time.Duration) Option {
	return func(c *config.Config) { c.Scrape.Deadline = d }
}

// WithUserAgent replaces the User-Agent pool with a single value.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Fetcher.UserAgents = []string{ua} }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(c *config.Config) {
		c.Proxy.Enabled = true
		c.Proxy.URLs = urls
	}
}

// WithKeywords replaces the keywords the generic fallback pass looks for.
func WithKeywords(keywords ...string) Option {
	return func(c *config.Config) { c.Scrape.Keywords = keywords }
}

// WithMetrics serves Prometheus-style counters on the given port.
func WithMetrics(port int) Option {
	return func(c *config.Config) {
		c.Metrics.Enabled = true
		c.Metrics.Port = port
	}
}

// WithLogFormat selects "text" or "json" logs.
func WithLogFormat(format string) Option {
	return func(c *config.Config) { c.Logging.Format = format }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}
