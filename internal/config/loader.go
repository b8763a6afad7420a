package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("SOURCEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sourcewatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".sourcewatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	// Decode into a zero Config so list values from the file replace the
	// defaults instead of being merged into them element by element.
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A config file without a sources list keeps the built-in catalog.
	if !v.IsSet("sources") {
		cfg.Sources = DefaultSources()
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.min_body_size", cfg.Fetcher.MinBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)

	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.timeout", cfg.Retry.Timeout)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("scrape.inter_source_delay", cfg.Scrape.InterSourceDelay)
	v.SetDefault("scrape.deadline", cfg.Scrape.Deadline)
	v.SetDefault("scrape.max_containers", cfg.Scrape.MaxContainers)
	v.SetDefault("scrape.fallback_scan_limit", cfg.Scrape.FallbackScanLimit)
	v.SetDefault("scrape.fallback_accept_limit", cfg.Scrape.FallbackAcceptLimit)
	v.SetDefault("scrape.fallback_min_title", cfg.Scrape.FallbackMinTitle)
	v.SetDefault("scrape.fallback_max_title", cfg.Scrape.FallbackMaxTitle)
	v.SetDefault("scrape.fallback_content_limit", cfg.Scrape.FallbackContentLimit)
	v.SetDefault("scrape.keywords", cfg.Scrape.Keywords)

	v.SetDefault("filter.max_title_len", cfg.Filter.MaxTitleLen)
	v.SetDefault("filter.max_content_len", cfg.Filter.MaxContentLen)
	v.SetDefault("filter.title_noise", cfg.Filter.TitleNoise)
	v.SetDefault("filter.content_noise", cfg.Filter.ContentNoise)
	v.SetDefault("filter.title_limit", cfg.Filter.TitleLimit)
	v.SetDefault("filter.content_limit", cfg.Filter.ContentLimit)
	v.SetDefault("filter.min_title_len", cfg.Filter.MinTitleLen)
	v.SetDefault("filter.min_content_len", cfg.Filter.MinContentLen)
	v.SetDefault("filter.sanitize_content", cfg.Filter.SanitizeContent)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
