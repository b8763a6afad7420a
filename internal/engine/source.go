package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/observability"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// sourceRun tracks one source through its lifecycle. It is owned by a
// single goroutine.
type sourceRun struct {
	outcome types.SourceOutcome
	started time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newSourceRun(src config.Source, logger *slog.Logger, metrics *observability.Metrics) *sourceRun {
	return &sourceRun{
		outcome: types.SourceOutcome{
			Source:    src.Name,
			Category:  src.Category,
			State:     types.StatePending,
			StateName: types.StatePending.String(),
		},
		started: time.Now(),
		logger:  logger.With("source", src.Name),
		metrics: metrics,
	}
}

func (r *sourceRun) to(next types.SourceState) {
	prev := r.outcome.State
	if !prev.CanTransition(next) {
		r.logger.Error("illegal state transition", "from", prev, "to", next)
		return
	}
	r.outcome.State = next
	r.outcome.StateName = next.String()
	r.logger.Debug("state transition", "from", prev, "to", next)
}

// OnAttempt moves the source into Fetching before every attempt.
func (r *sourceRun) OnAttempt(attempt int) {
	r.outcome.Attempts = attempt
	r.metrics.FetchAttempts.Add(1)
	r.to(types.StateFetching)
}

// OnRetry moves the source into Retrying after a failed attempt.
func (r *sourceRun) OnRetry(attempt int, wait time.Duration, err error) {
	r.metrics.FetchRetries.Add(1)
	var te *types.TransportError
	if errors.As(err, &te) {
		r.metrics.ObserveStatus(te.StatusCode)
	}
	r.to(types.StateRetrying)
}

func (r *sourceRun) fail(err error) types.SourceOutcome {
	r.to(types.StateFailed)
	r.outcome.Err = err
	r.outcome.Error = err.Error()
	r.outcome.ErrorClass = types.ErrorClass(err)
	r.outcome.Duration = time.Since(r.started)
	r.metrics.ObserveFailure(r.outcome.ErrorClass)

	r.logger.Warn("source failed",
		"class", r.outcome.ErrorClass,
		"attempts", r.outcome.Attempts,
		"error", err,
	)
	return r.outcome
}

func (r *sourceRun) done(records int) types.SourceOutcome {
	r.to(types.StateDone)
	r.outcome.Records = records
	r.outcome.Duration = time.Since(r.started)
	r.metrics.SourcesSucceeded.Add(1)
	r.metrics.RecordsEmitted.Add(int64(records))

	r.logger.Info("source complete",
		"records", records,
		"attempts", r.outcome.Attempts,
		"duration", r.outcome.Duration,
	)
	return r.outcome
}

// ScrapeSource fetches one source and returns its bounded records. A failure
// only concerns this source. The returned slice is never nil.
func (e *Engine) ScrapeSource(ctx context.Context, src config.Source, query string) ([]types.Record, error) {
	records, outcome := e.scrapeSource(ctx, src, query)
	return records, outcome.Err
}

func (e *Engine) scrapeSource(ctx context.Context, src config.Source, query string) ([]types.Record, types.SourceOutcome) {
	metrics := e.Metrics()
	run := newSourceRun(src, e.logger, metrics)
	empty := []types.Record{}

	if err := ctx.Err(); err != nil {
		return empty, run.fail(err)
	}

	f, err := e.fetcherFor(src)
	if err != nil {
		return empty, run.fail(err)
	}

	resp, err := f.FetchObserved(ctx, src.URL, run)
	if err != nil {
		metrics.FetchFailures.Add(1)
		var te *types.TransportError
		if errors.As(err, &te) {
			metrics.ObserveStatus(te.StatusCode)
		}
		return empty, run.fail(err)
	}
	metrics.ObserveStatus(resp.StatusCode)
	metrics.BytesDownloaded.Add(int64(len(resp.Body)))
	if resp.FinalURL != "" && resp.FinalURL != src.URL {
		run.logger.Debug("source redirected", "final_url", resp.FinalURL)
	}
	run.to(types.StateSucceeded)

	run.to(types.StateExtracting)
	rules, err := e.rulesFor(src)
	if err != nil {
		return empty, run.fail(&types.ParseError{URL: src.URL, Err: err})
	}

	res, err := e.extractor.ExtractSource(resp, src, rules, query)
	if res != nil && res.UsedFallback {
		metrics.FallbackPasses.Add(1)
	}
	if err != nil {
		return empty, run.fail(fmt.Errorf("%s: %w", src.Name, err))
	}
	metrics.CandidatesExtracted.Add(int64(len(res.Candidates)))

	run.to(types.StateFiltering)
	accepted, dropped := e.filter.Filter(res.Candidates, query)
	for _, n := range dropped {
		metrics.CandidatesDropped.Add(int64(n))
	}

	records := e.builder.BuildAll(accepted, src, e.now())
	if len(records) == 0 {
		return empty, run.fail(fmt.Errorf("%s: %d candidates: %w", src.Name, len(res.Candidates), types.ErrFilterRejectedAll))
	}
	for i := range records {
		records[i].URL = CanonicalizeURL(records[i].URL)
	}

	return records, run.done(len(records))
}
