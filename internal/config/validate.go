package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be <= 10, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0")
	}
	if cfg.Retry.Timeout <= 0 {
		return fmt.Errorf("retry.timeout must be > 0")
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MinBodySize < 0 {
		return fmt.Errorf("fetcher.min_body_size must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Scrape.InterSourceDelay < 0 {
		return fmt.Errorf("scrape.inter_source_delay must be >= 0")
	}
	if cfg.Scrape.Deadline < 0 {
		return fmt.Errorf("scrape.deadline must be >= 0")
	}
	if cfg.Scrape.MaxContainers < 1 {
		return fmt.Errorf("scrape.max_containers must be >= 1, got %d", cfg.Scrape.MaxContainers)
	}
	if cfg.Scrape.FallbackAcceptLimit > cfg.Scrape.FallbackScanLimit {
		return fmt.Errorf("scrape.fallback_accept_limit (%d) must not exceed scrape.fallback_scan_limit (%d)",
			cfg.Scrape.FallbackAcceptLimit, cfg.Scrape.FallbackScanLimit)
	}
	if cfg.Scrape.FallbackMinTitle > cfg.Scrape.FallbackMaxTitle {
		return fmt.Errorf("scrape.fallback_min_title must not exceed scrape.fallback_max_title")
	}

	f := cfg.Filter
	if f.MinTitleLen < 1 || f.MinTitleLen > f.TitleLimit {
		return fmt.Errorf("filter.min_title_len must be in [1, title_limit], got %d", f.MinTitleLen)
	}
	if f.MinContentLen < 1 || f.MinContentLen > f.ContentLimit {
		return fmt.Errorf("filter.min_content_len must be in [1, content_limit], got %d", f.MinContentLen)
	}
	if f.MaxTitleLen < f.MinTitleLen || f.MaxContentLen < f.MinContentLen {
		return fmt.Errorf("filter max lengths must be >= min lengths")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return ValidateSources(cfg.Sources)
}

// ValidateSources rejects an empty or malformed source list. Problems here
// are programming or deployment errors and are reported as *types.ConfigError.
func ValidateSources(sources []Source) error {
	if len(sources) == 0 {
		return &types.ConfigError{Field: "sources", Err: types.ErrNoSources}
	}

	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		field := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			return &types.ConfigError{Field: field + ".name", Err: errors.New("name is required")}
		}
		if seen[s.Name] {
			return &types.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate source name %q", s.Name)}
		}
		seen[s.Name] = true

		if err := ValidateURL(s.URL); err != nil {
			return &types.ConfigError{Field: field + ".url", Err: err}
		}
		if !s.Category.Valid() {
			return &types.ConfigError{Field: field + ".category", Err: fmt.Errorf("unknown category %q", s.Category)}
		}
		if s.Fetcher != "" && s.Fetcher != "http" && s.Fetcher != "browser" {
			return &types.ConfigError{Field: field + ".fetcher", Err: fmt.Errorf("unknown fetcher %q", s.Fetcher)}
		}
		if len(s.Rules.ArticleContainers) == 0 {
			return &types.ConfigError{Field: field + ".rules.article_containers", Err: errors.New("at least one container selector is required")}
		}
	}
	return nil
}

// ValidateURL checks if a URL string is absolute http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL must have a host", types.ErrInvalidURL)
	}
	return nil
}
