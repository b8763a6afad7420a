package config

import (
	"time"

	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for sourcewatch.
type Config struct {
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Retry   RetryPolicy   `mapstructure:"retry"   yaml:"retry"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"  yaml:"scrape"`
	Filter  FilterConfig  `mapstructure:"filter"  yaml:"filter"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Sources []Source      `mapstructure:"sources" yaml:"sources"`
}

// FetcherConfig controls the transport layer.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MinBodySize     int           `mapstructure:"min_body_size"     yaml:"min_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	AcceptLanguage  string        `mapstructure:"accept_language"   yaml:"accept_language"`
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
}

// RetryPolicy bounds how hard the transport tries a single URL. The wait
// before attempt n+1 is BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"   yaml:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"`
}

// Delay returns the wait after the given (1-based) failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt)
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// ScrapeConfig controls the orchestrator and the extraction bounds.
type ScrapeConfig struct {
	InterSourceDelay     time.Duration `mapstructure:"inter_source_delay"     yaml:"inter_source_delay"`
	Deadline             time.Duration `mapstructure:"deadline"               yaml:"deadline"`
	MaxContainers        int           `mapstructure:"max_containers"         yaml:"max_containers"`
	FallbackScanLimit    int           `mapstructure:"fallback_scan_limit"    yaml:"fallback_scan_limit"`
	FallbackAcceptLimit  int           `mapstructure:"fallback_accept_limit"  yaml:"fallback_accept_limit"`
	FallbackMinTitle     int           `mapstructure:"fallback_min_title"     yaml:"fallback_min_title"`
	FallbackMaxTitle     int           `mapstructure:"fallback_max_title"     yaml:"fallback_max_title"`
	FallbackContentLimit int           `mapstructure:"fallback_content_limit" yaml:"fallback_content_limit"`
	Keywords             []string      `mapstructure:"keywords"               yaml:"keywords"`
}

// FilterConfig holds the quality thresholds and noise markers. The values are
// heuristic defaults and are expected to be recalibrated per deployment.
type FilterConfig struct {
	MaxTitleLen     int      `mapstructure:"max_title_len"     yaml:"max_title_len"`
	MaxContentLen   int      `mapstructure:"max_content_len"   yaml:"max_content_len"`
	TitleNoise      []string `mapstructure:"title_noise"       yaml:"title_noise"`
	ContentNoise    []string `mapstructure:"content_noise"     yaml:"content_noise"`
	TitleLimit      int      `mapstructure:"title_limit"       yaml:"title_limit"`
	ContentLimit    int      `mapstructure:"content_limit"     yaml:"content_limit"`
	MinTitleLen     int      `mapstructure:"min_title_len"     yaml:"min_title_len"`
	MinContentLen   int      `mapstructure:"min_content_len"   yaml:"min_content_len"`
	SanitizeContent bool     `mapstructure:"sanitize_content"  yaml:"sanitize_content"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus-style metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Source describes one external site. Sources are static configuration and
// are never mutated once loaded.
type Source struct {
	Name     string         `mapstructure:"name"     yaml:"name"`
	URL      string         `mapstructure:"url"      yaml:"url"`
	Category types.Category `mapstructure:"category" yaml:"category"`
	Fetcher  string         `mapstructure:"fetcher"  yaml:"fetcher,omitempty"`
	Rules    Ruleset        `mapstructure:"rules"    yaml:"rules"`
}

// Ruleset lists ordered candidate selectors for one source. Each entry is a
// css selector, optionally prefixed with "css:", or an "xpath:" expression.
type Ruleset struct {
	ArticleContainers []string `mapstructure:"article_containers" yaml:"article_containers"`
	Title             []string `mapstructure:"title"              yaml:"title"`
	Content           []string `mapstructure:"content"            yaml:"content"`
}

// SourcesFor returns the configured sources of one category, in order.
func (c *Config) SourcesFor(category types.Category) []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Type:            "http",
			MaxRedirects:    5,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MinBodySize:     100,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			},
			AcceptLanguage: "en-US,en;q=0.9",
			Headless:       true,
			Stealth:        true,
		},
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			Timeout:     15 * time.Second,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Scrape: ScrapeConfig{
			InterSourceDelay:     2 * time.Second,
			MaxContainers:        10,
			FallbackScanLimit:    5,
			FallbackAcceptLimit:  3,
			FallbackMinTitle:     20,
			FallbackMaxTitle:     200,
			FallbackContentLimit: 300,
			Keywords: []string{
				"kenya", "nairobi", "county", "governor", "president",
				"parliament", "senate", "minister", "cabinet", "government",
				"budget", "court",
			},
		},
		Filter: FilterConfig{
			MaxTitleLen:     200,
			MaxContentLen:   500,
			TitleNoise:      []string{"cookie", "subscribe"},
			ContentNoise:    []string{"click here"},
			TitleLimit:      150,
			ContentLimit:    400,
			MinTitleLen:     10,
			MinContentLen:   30,
			SanitizeContent: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Sources: DefaultSources(),
	}
}
