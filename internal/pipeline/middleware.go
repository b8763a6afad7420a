package pipeline

import (
	"strings"

	"github.com/IshaanNene/sourcewatch/internal/types"
)

// RequiredMiddleware drops candidates with an empty title or content.
type RequiredMiddleware struct{}

func (RequiredMiddleware) Name() string { return "required" }

func (RequiredMiddleware) Process(c *types.RawCandidate, _ string) (*types.RawCandidate, error) {
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Content) == "" {
		return nil, nil
	}
	return c, nil
}

// LengthMiddleware drops candidates whose title or content is at or above the
// limit. This runs before truncation and catches containers that captured
// whole page sections. A zero limit disables the check.
type LengthMiddleware struct {
	MaxTitle   int
	MaxContent int
}

func (m LengthMiddleware) Name() string { return "length" }

func (m LengthMiddleware) Process(c *types.RawCandidate, _ string) (*types.RawCandidate, error) {
	if m.MaxTitle > 0 && types.RuneLen(c.Title) >= m.MaxTitle {
		return nil, nil
	}
	if m.MaxContent > 0 && types.RuneLen(c.Content) >= m.MaxContent {
		return nil, nil
	}
	return c, nil
}

// NoiseMiddleware drops cookie banners, newsletter prompts and similar
// boilerplate. Markers match case-insensitively.
type NoiseMiddleware struct {
	TitleMarkers   []string
	ContentMarkers []string
}

func (m NoiseMiddleware) Name() string { return "noise" }

func (m NoiseMiddleware) Process(c *types.RawCandidate, _ string) (*types.RawCandidate, error) {
	if containsAny(c.Title, m.TitleMarkers) || containsAny(c.Content, m.ContentMarkers) {
		return nil, nil
	}
	return c, nil
}

// QueryMiddleware keeps candidates that mention the query in the title or the
// content. An empty query matches everything.
type QueryMiddleware struct{}

func (QueryMiddleware) Name() string { return "query" }

func (QueryMiddleware) Process(c *types.RawCandidate, query string) (*types.RawCandidate, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return c, nil
	}
	if types.ContainsFold(c.Title, q) || types.ContainsFold(c.Content, q) {
		return c, nil
	}
	return nil, nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && types.ContainsFold(s, m) {
			return true
		}
	}
	return false
}
