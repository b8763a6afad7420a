package pipeline

import (
	"html"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// RecordBuilder turns accepted candidates into records: it strips residual
// markup, truncates to the output limits and tags the source.
type RecordBuilder struct {
	cfg    config.FilterConfig
	policy *bluemonday.Policy
}

// NewRecordBuilder creates a builder for the given limits.
func NewRecordBuilder(cfg config.FilterConfig) *RecordBuilder {
	return &RecordBuilder{
		cfg:    cfg,
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize removes any markup left in extracted text and normalizes
// whitespace.
func (b *RecordBuilder) Sanitize(s string) string {
	return types.CleanText(html.UnescapeString(b.policy.Sanitize(s)))
}

// Build converts one candidate. The second return value is false when the
// truncated record falls under the minimum title or content length.
func (b *RecordBuilder) Build(c *types.RawCandidate, src config.Source, retrievedAt time.Time) (types.Record, bool) {
	title, content := c.Title, c.Content
	if b.cfg.SanitizeContent {
		title = b.Sanitize(title)
		content = b.Sanitize(content)
	} else {
		title = types.CleanText(title)
		content = types.CleanText(content)
	}

	title = types.Truncate(title, b.cfg.TitleLimit)
	content = types.Truncate(content, b.cfg.ContentLimit)

	if types.RuneLen(title) < b.cfg.MinTitleLen || types.RuneLen(content) < b.cfg.MinContentLen {
		return types.Record{}, false
	}

	return types.Record{
		Title:       title,
		Content:     content,
		Source:      src.Name,
		Category:    src.Category,
		RetrievedAt: retrievedAt,
		URL:         c.SourceURL,
	}, true
}

// BuildAll converts candidates in order and skips the ones that end up out of
// bounds. It never returns nil.
func (b *RecordBuilder) BuildAll(candidates []*types.RawCandidate, src config.Source, retrievedAt time.Time) []types.Record {
	records := make([]types.Record, 0, len(candidates))
	for _, c := range candidates {
		if rec, ok := b.Build(c, src, retrievedAt); ok {
			records = append(records, rec)
		}
	}
	return records
}
