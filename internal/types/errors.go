package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrBodyTooShort  = errors.New("response body too short")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrNoSources     = errors.New("no sources configured")

	// ErrAttemptTimeout marks a single fetch attempt that ran past the
	// per-attempt timeout while the caller's context was still live.
	ErrAttemptTimeout = errors.New("fetch attempt timed out")

	// ErrExtractionYieldedNothing is internal to extraction: the ruleset
	// matched no containers and the generic fallback pass runs next.
	ErrExtractionYieldedNothing = errors.New("extraction yielded nothing")

	// ErrNoCandidatesAfterFallback means neither the ruleset nor the generic
	// fallback pass produced a candidate.
	ErrNoCandidatesAfterFallback = errors.New("no candidates after fallback")

	// ErrFilterRejectedAll means candidates existed but none passed quality checks.
	ErrFilterRejectedAll = errors.New("filter rejected all candidates")
)

// TransportError wraps errors that occur while fetching a source page.
type TransportError struct {
	URL        string
	StatusCode int
	BodySize   int
	Attempts   int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *TransportError) Error() string {
	attempts := ""
	if e.Attempts > 1 {
		attempts = fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s%s (status %d): %v", e.URL, attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s%s: %v", e.URL, attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while parsing a page.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError reports an empty or malformed source configuration. It is the
// only error class surfaced as fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrorClass maps a per-source error to the short class name recorded in
// the aggregation manifest. Context expiry wins over the error it interrupted.
func ErrorClass(err error) string {
	var te *TransportError
	var pe *ParseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &pe):
		return "parse"
	case errors.Is(err, ErrNoCandidatesAfterFallback):
		return "no_candidates"
	case errors.Is(err, ErrFilterRejectedAll):
		return "filter_rejected_all"
	default:
		return "unknown"
	}
}
