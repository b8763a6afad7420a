package types

import (
	"fmt"
	"strings"
	"time"
)

// Category groups sources that are scraped together.
type Category string

const (
	CategoryNews       Category = "news"
	CategoryGovernment Category = "government"
	CategorySocial     Category = "social"
)

// Categories lists every known category in aggregation merge order.
var Categories = []Category{CategoryNews, CategoryGovernment, CategorySocial}

// ParseCategory converts a user-supplied name into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q (valid: news, government, social)", s)
	}
	return c, nil
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// RawCandidate is an unvalidated title/content pair pulled out of a page.
type RawCandidate struct {
	Title       string
	Content     string
	SourceURL   string
	ExtractedAt time.Time

	// Fallback marks candidates produced by the generic heuristic pass.
	Fallback bool
}

// NewCandidate creates a candidate stamped with the current time.
func NewCandidate(title, content, sourceURL string) *RawCandidate {
	return &RawCandidate{
		Title:       title,
		Content:     content,
		SourceURL:   sourceURL,
		ExtractedAt: time.Now(),
	}
}

// Record is a validated, bounded extraction result handed to the caller.
type Record struct {
	Title       string    `json:"title"        yaml:"title"`
	Content     string    `json:"content"      yaml:"content"`
	Source      string    `json:"source"       yaml:"source"`
	Category    Category  `json:"category"     yaml:"category"`
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
}

// DedupeKey is the identity used to collapse records that carry the same
// headline: the lowercased first 50 characters of the title.
func (r Record) DedupeKey() string {
	runes := []rune(strings.ToLower(r.Title))
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}
