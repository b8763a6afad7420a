package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

const (
	minTitleMatch      = 5
	minContentMatch    = 20
	minAnchorTitle     = 10
	minLineTitle       = 10
	maxLineTitle       = 100
	minContentLine     = 20
	maxContentLines    = 2
	titleLeadWords     = 3
	matchesPerSelector = 5
)

var (
	anchorSelector  = compileStatic("a[href]")
	headingSelector = compileStatic("h1, h2, h3, h4, h5, h6")
	noiseElements   = "script, style, noscript, template, iframe, svg"
)

func compileStatic(s string) Matcher {
	m, err := Compile(s)
	if err != nil {
		panic(fmt.Sprintf("parser: bad built-in selector %q: %v", s, err))
	}
	return m
}

// Extractor turns fetched pages into raw candidates.
type Extractor struct {
	cfg      config.ScrapeConfig
	fallback Chain
	logger   *slog.Logger
}

// NewExtractor creates an extractor bounded by the scrape configuration.
func NewExtractor(cfg config.ScrapeConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		cfg:      cfg,
		fallback: fallbackChain(),
		logger:   logger.With("component", "extractor"),
	}
}

// Result is the output of extracting one source page.
type Result struct {
	Candidates []*types.RawCandidate
	// UsedFallback is set when the ruleset found nothing and the generic
	// heuristic pass produced the candidates.
	UsedFallback bool
	Containers   int
}

// ExtractSource runs the ruleset against a fetched page and falls back to the
// generic pass when the ruleset yields nothing. It returns
// types.ErrNoCandidatesAfterFallback when both come up empty.
func (e *Extractor) ExtractSource(resp *types.Response, src config.Source, rules *Rules, query string) (*Result, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: src.URL, Err: err}
	}
	stripNoise(doc)

	candidates, containers, err := e.Extract(doc, rules, src.URL)
	if err == nil {
		return &Result{Candidates: candidates, Containers: containers}, nil
	}

	e.logger.Debug("ruleset yielded nothing, using fallback",
		"source", src.Name,
		"containers", containers,
	)

	candidates = e.Fallback(doc, src.Name, src.URL, query)
	if len(candidates) == 0 {
		return &Result{UsedFallback: true, Containers: containers}, types.ErrNoCandidatesAfterFallback
	}
	return &Result{Candidates: candidates, UsedFallback: true, Containers: containers}, nil
}

// Extract applies a compiled ruleset to a parsed document. Only the first
// container selector with any matches is used and at most MaxContainers
// containers are examined. It returns types.ErrExtractionYieldedNothing when
// no container produced both a title and content.
func (e *Extractor) Extract(doc *goquery.Document, rules *Rules, baseURL string) ([]*types.RawCandidate, int, error) {
	containers, matcher, ok := rules.Containers.FirstNonEmpty(doc.Selection)
	if !ok {
		return nil, 0, types.ErrExtractionYieldedNothing
	}

	limit := containers.Length()
	if e.cfg.MaxContainers > 0 && limit > e.cfg.MaxContainers {
		limit = e.cfg.MaxContainers
	}

	base, _ := url.Parse(baseURL)
	var candidates []*types.RawCandidate
	for i := 0; i < limit; i++ {
		container := containers.Eq(i)

		title := resolveTitle(container, rules.Title)
		if title == "" {
			continue
		}
		content := resolveContent(container, rules.Content, title)
		if content == "" {
			continue
		}

		link := containerLink(container, base)
		if link == "" {
			link = baseURL
		}
		candidates = append(candidates, types.NewCandidate(title, content, link))
	}

	e.logger.Debug("ruleset extraction",
		"selector", matcher.String(),
		"containers", limit,
		"candidates", len(candidates),
	)

	if len(candidates) == 0 {
		return nil, limit, types.ErrExtractionYieldedNothing
	}
	return candidates, limit, nil
}

// resolveTitle walks the title chain and then the heuristics: the first
// anchor, the first heading, and finally the first long line of the
// container's text.
func resolveTitle(container *goquery.Selection, chain Chain) string {
	if text, ok := chain.FirstText(container, minTitleMatch, matchesPerSelector); ok {
		return text
	}

	if text := nodeText(anchorSelector.Find(container).First()); types.RuneLen(text) > minAnchorTitle {
		return text
	}
	if goquery.NodeName(container) == "a" {
		if text := nodeText(container); types.RuneLen(text) > minAnchorTitle {
			return text
		}
	}

	if text := nodeText(headingSelector.Find(container).First()); text != "" {
		return text
	}

	for _, line := range types.Lines(container.Text()) {
		if types.RuneLen(line) >= minLineTitle {
			return types.Truncate(line, maxLineTitle)
		}
	}
	return ""
}

// resolveContent walks the content chain and then joins up to two long lines
// of container text that do not repeat the title.
func resolveContent(container *goquery.Selection, chain Chain, title string) string {
	if text, ok := chain.FirstText(container, minContentMatch, matchesPerSelector); ok {
		return text
	}

	lead := leadingWords(title, titleLeadWords)
	var picked []string
	for _, line := range types.Lines(container.Text()) {
		if types.RuneLen(line) < minContentLine {
			continue
		}
		if lead != "" && types.ContainsFold(line, lead) {
			continue
		}
		picked = append(picked, line)
		if len(picked) == maxContentLines {
			break
		}
	}
	return strings.Join(picked, " ")
}

// containerLink finds the article URL for a container: the container itself
// when it is an anchor, otherwise its first anchor.
func containerLink(container *goquery.Selection, base *url.URL) string {
	if goquery.NodeName(container) == "a" {
		if href, ok := container.Attr("href"); ok {
			if link := resolveURL(base, href); link != "" {
				return link
			}
		}
	}
	var link string
	anchorSelector.Find(container).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		link = resolveURL(base, href)
		return link == ""
	})
	return link
}

// resolveURL resolves href against the source URL. Fragment-only,
// javascript: and mailto: links are dropped.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func leadingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func nodeText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return types.CleanText(sel.Text())
}

func stripNoise(doc *goquery.Document) {
	doc.Find(noiseElements).Remove()
}
