// Package pipeline holds the quality filter applied to raw candidates and the
// builder that turns accepted candidates into bounded records.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Middleware inspects a candidate and returns it, or nil to drop it.
// Filtering middleware must not modify the candidate.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process checks a candidate against the optional query.
	Process(c *types.RawCandidate, query string) (*types.RawCandidate, error)
}

// Pipeline chains middleware together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates an empty Pipeline.
func New(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// NewQualityFilter builds the standard candidate filter: required fields,
// pre-truncation length limits, noise markers and the query match.
func NewQualityFilter(cfg config.FilterConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(RequiredMiddleware{})
	p.Use(LengthMiddleware{MaxTitle: cfg.MaxTitleLen, MaxContent: cfg.MaxContentLen})
	p.Use(NoiseMiddleware{TitleMarkers: cfg.TitleNoise, ContentMarkers: cfg.ContentNoise})
	p.Use(QueryMiddleware{})
	return p
}

// Use adds a middleware to the end of the chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the candidate through all middleware in order. It returns the
// name of the stage that dropped the candidate, if any.
func (p *Pipeline) Process(c *types.RawCandidate, query string) (*types.RawCandidate, string, error) {
	if c == nil {
		return nil, "nil", nil
	}

	current := c
	for _, mw := range p.middlewares {
		result, err := mw.Process(current, query)
		if err != nil {
			return nil, mw.Name(), fmt.Errorf("%s: %w", mw.Name(), err)
		}
		if result == nil {
			return nil, mw.Name(), nil
		}
		current = result
	}
	return current, "", nil
}

// Accept reports whether a candidate passes every stage.
func (p *Pipeline) Accept(c *types.RawCandidate, query string) bool {
	out, _, err := p.Process(c, query)
	return err == nil && out != nil
}

// Filter returns the accepted candidates in their original order along with
// the number of candidates each stage dropped.
func (p *Pipeline) Filter(candidates []*types.RawCandidate, query string) ([]*types.RawCandidate, map[string]int) {
	accepted := make([]*types.RawCandidate, 0, len(candidates))
	dropped := make(map[string]int)

	for _, c := range candidates {
		out, stage, err := p.Process(c, query)
		if err != nil {
			p.logger.Warn("candidate filter error", "stage", stage, "error", err)
			dropped[stage]++
			continue
		}
		if out == nil {
			dropped[stage]++
			continue
		}
		accepted = append(accepted, out)
	}

	if len(dropped) > 0 {
		p.logger.Debug("candidates dropped",
			"accepted", len(accepted),
			"total", len(candidates),
			"by_stage", dropped,
		)
	}
	return accepted, dropped
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
