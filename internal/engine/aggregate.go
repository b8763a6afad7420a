package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/sourcewatch/internal/types"
)

// categoryResult is what one category goroutine produces. Each goroutine
// writes only its own slot.
type categoryResult struct {
	records  []types.Record
	outcomes []types.SourceOutcome
}

// Scrape runs the sources of one category sequentially, waiting the
// politeness delay between them. Failed sources are reported in the error
// map by name; records from the others are still returned. When ctx ends,
// the remaining sources are skipped and reported with the context error.
func (e *Engine) Scrape(ctx context.Context, category types.Category, query string) ([]types.Record, map[string]error) {
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	res := e.scrapeCategory(ctx, category, query)

	errs := make(map[string]error)
	for _, o := range res.outcomes {
		if o.Err != nil {
			errs[o.Source] = o.Err
		}
	}
	return res.records, errs
}

func (e *Engine) scrapeCategory(ctx context.Context, category types.Category, query string) categoryResult {
	sources := e.Sources(category)
	res := categoryResult{records: []types.Record{}}
	sleep := e.sleepFunc()
	logger := e.logger.With("category", category)

	logger.Info("category scrape starting", "sources", len(sources), "query", query)

	for i, src := range sources {
		if i > 0 && e.cfg.Scrape.InterSourceDelay > 0 && ctx.Err() == nil {
			if err := sleep(ctx, e.cfg.Scrape.InterSourceDelay); err != nil {
				logger.Debug("politeness delay interrupted", "error", err)
			}
		}

		records, outcome := e.scrapeSource(ctx, src, query)
		res.records = append(res.records, records...)
		res.outcomes = append(res.outcomes, outcome)
	}

	logger.Info("category scrape finished",
		"records", len(res.records),
		"sources", len(sources),
	)
	return res
}

// ScrapeAll runs every category concurrently and merges the results in
// category order (news, government, social), then removes duplicate titles.
// A failing source or category never fails the whole run; the outcome of
// every source is listed in the result.
func (e *Engine) ScrapeAll(ctx context.Context, query string) *types.AggregationResult {
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	result := &types.AggregationResult{
		RunID:     uuid.NewString(),
		Query:     query,
		StartedAt: e.now(),
	}
	logger := e.logger.With("run_id", result.RunID)
	logger.Info("aggregation starting", "query", query, "categories", len(types.Categories))

	slots := make([]categoryResult, len(types.Categories))

	// Every goroutine returns nil so one category can never cancel another.
	var g errgroup.Group
	for i, category := range types.Categories {
		g.Go(func() error {
			slots[i] = e.scrapeCategory(ctx, category, query)
			return nil
		})
	}
	_ = g.Wait()

	var merged []types.Record
	for _, slot := range slots {
		merged = append(merged, slot.records...)
		result.Outcomes = append(result.Outcomes, slot.outcomes...)
	}

	result.Records, result.Duplicates = DedupeRecords(merged)
	result.Duration = time.Since(result.StartedAt)

	metrics := e.Metrics()
	metrics.Runs.Add(1)
	metrics.DuplicatesDropped.Add(int64(result.Duplicates))

	logger.Info("aggregation finished",
		"records", len(result.Records),
		"duplicates", result.Duplicates,
		"failed_sources", len(result.Failed()),
		"duration", result.Duration,
	)
	return result
}
