package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Observer receives per-attempt notifications from a RetryFetcher.
type Observer interface {
	// OnAttempt is called before each attempt (1-based).
	OnAttempt(attempt int)

	// OnRetry is called after a failed attempt, before waiting wait.
	OnRetry(attempt int, wait time.Duration, err error)
}

// RetryFetcher retries a wrapped Fetcher with linear backoff: after failed
// attempt n it waits policy.BaseDelay*n before attempt n+1, or longer when
// the server sent Retry-After. Waits never shrink between attempts.
type RetryFetcher struct {
	next   Fetcher
	policy config.RetryPolicy
	sleep  SleepFunc
	logger *slog.Logger
}

// NewRetryFetcher wraps next with the given retry policy.
func NewRetryFetcher(next Fetcher, policy config.RetryPolicy, logger *slog.Logger) *RetryFetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryFetcher{
		next:   next,
		policy: policy,
		sleep:  Sleep,
		logger: logger.With("component", "retry_fetcher", "fetcher", next.Type()),
	}
}

// SetSleep replaces the backoff wait, for instrumentation and tests.
func (f *RetryFetcher) SetSleep(sleep SleepFunc) {
	f.sleep = sleep
}

// Fetch implements Fetcher.
func (f *RetryFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	return f.FetchObserved(ctx, rawURL, nil)
}

// FetchObserved fetches rawURL, reporting every attempt and retry to obs.
// After the last attempt it returns a *types.TransportError carrying the
// URL, the attempt count and the last cause.
func (f *RetryFetcher) FetchObserved(ctx context.Context, rawURL string, obs Observer) (*types.Response, error) {
	var lastErr error
	var prevWait time.Duration
	attempt := 0

	for attempt < f.policy.MaxAttempts {
		attempt++
		if obs != nil {
			obs.OnAttempt(attempt)
		}

		resp, err := f.next.Fetch(ctx, rawURL)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt >= f.policy.MaxAttempts {
			break
		}

		wait := f.policy.Delay(attempt)
		var te *types.TransportError
		if errors.As(err, &te) && te.RetryAfter > wait {
			wait = te.RetryAfter
		}
		// A Retry-After wait raises the floor for every later attempt.
		wait = max(wait, prevWait)
		prevWait = wait

		f.logger.Warn("retrying fetch",
			"url", rawURL,
			"attempt", attempt,
			"max_attempts", f.policy.MaxAttempts,
			"wait", wait,
			"error", err,
		)
		if obs != nil {
			obs.OnRetry(attempt, wait, err)
		}

		if err := f.sleep(ctx, wait); err != nil {
			break
		}
	}

	return nil, finalError(rawURL, attempt, lastErr)
}

// Close closes the wrapped fetcher.
func (f *RetryFetcher) Close() error {
	return f.next.Close()
}

// Type returns the wrapped fetcher's type.
func (f *RetryFetcher) Type() string {
	return f.next.Type()
}

// Unwrap returns the single-attempt fetcher.
func (f *RetryFetcher) Unwrap() Fetcher {
	return f.next
}

func retryable(err error) bool {
	var te *types.TransportError
	if errors.As(err, &te) {
		return te.IsRetryable()
	}
	return true
}

func finalError(rawURL string, attempts int, err error) error {
	var te *types.TransportError
	if errors.As(err, &te) {
		out := *te
		out.Attempts = attempts
		return &out
	}
	return &types.TransportError{URL: rawURL, Attempts: attempts, Err: err}
}
