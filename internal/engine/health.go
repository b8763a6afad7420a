package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/sourcewatch/internal/config"
)

// HealthCheck makes one fetch attempt per URL, without retries or
// extraction, and splits the URLs into working and failed. Both lists keep
// the input order.
func (e *Engine) HealthCheck(ctx context.Context, urls []string) (working, failed []string) {
	f, err := e.fetcherFor(config.Source{Fetcher: DefaultFetcher})
	if err != nil {
		e.logger.Error("health check without fetcher", "error", err)
		return nil, append([]string(nil), urls...)
	}
	single := f.Unwrap()

	ok := make([]bool, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			if err := config.ValidateURL(u); err != nil {
				e.logger.Debug("health check skipped invalid url", "url", u, "error", err)
				return nil
			}

			attemptCtx := ctx
			if e.cfg.Retry.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.Retry.Timeout)
				defer cancel()
			}

			if _, err := single.Fetch(attemptCtx, u); err != nil {
				e.logger.Debug("health check failed", "url", u, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range urls {
		if ok[i] {
			working = append(working, u)
		} else {
			failed = append(failed, u)
		}
	}

	e.logger.Info("health check finished", "working", len(working), "failed", len(failed))
	return working, failed
}
