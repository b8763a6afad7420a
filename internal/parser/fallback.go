package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Selectors tried, in order, when a source's own ruleset finds nothing.
var fallbackSelectors = []string{
	"a[href*='/news/']",
	"a[href*='/article/']",
	"a[href*='/story/']",
	"h1, h2, h3, h4, h5, h6",
	"[class*='title']",
	"[class*='headline']",
}

func fallbackChain() Chain {
	chain := make(Chain, 0, len(fallbackSelectors))
	for _, s := range fallbackSelectors {
		chain = append(chain, compileStatic(s))
	}
	return chain
}

// Fallback is the generic heuristic pass. For each fallback selector it
// looks at no more than FallbackScanLimit elements and keeps no more than
// FallbackAcceptLimit of them. An element is kept when its text length is
// within the fallback title bounds and it mentions one of the configured
// keywords or the query. The synthesized content is the source name followed
// by the title.
func (e *Extractor) Fallback(doc *goquery.Document, sourceName, baseURL, query string) []*types.RawCandidate {
	base, _ := url.Parse(baseURL)
	seen := make(map[string]struct{})

	var candidates []*types.RawCandidate
	for _, m := range e.fallback {
		found := m.Find(doc.Selection)

		scan := found.Length()
		if e.cfg.FallbackScanLimit > 0 && scan > e.cfg.FallbackScanLimit {
			scan = e.cfg.FallbackScanLimit
		}

		accepted := 0
		for i := 0; i < scan; i++ {
			if e.cfg.FallbackAcceptLimit > 0 && accepted >= e.cfg.FallbackAcceptLimit {
				break
			}

			el := found.Eq(i)
			title := nodeText(el)
			if !e.fallbackTitleOK(title, query) {
				continue
			}

			key := strings.ToLower(title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			link := fallbackLink(el, base)
			if link == "" {
				link = baseURL
			}

			content := types.Truncate(sourceName+": "+title, e.cfg.FallbackContentLimit)
			c := types.NewCandidate(title, content, link)
			c.Fallback = true
			candidates = append(candidates, c)
			accepted++
		}
	}

	e.logger.Debug("fallback extraction",
		"source", sourceName,
		"candidates", len(candidates),
	)
	return candidates
}

func (e *Extractor) fallbackTitleOK(title, query string) bool {
	n := types.RuneLen(title)
	if n < e.cfg.FallbackMinTitle || (e.cfg.FallbackMaxTitle > 0 && n > e.cfg.FallbackMaxTitle) {
		return false
	}
	if query != "" && types.ContainsFold(title, query) {
		return true
	}
	for _, kw := range e.cfg.Keywords {
		if kw != "" && types.ContainsFold(title, kw) {
			return true
		}
	}
	return false
}

// fallbackLink prefers the element's own href, then an enclosing anchor,
// then the first anchor inside it.
func fallbackLink(el *goquery.Selection, base *url.URL) string {
	if href, ok := el.Attr("href"); ok {
		if link := resolveURL(base, href); link != "" {
			return link
		}
	}
	if href, ok := el.Closest("a[href]").Attr("href"); ok {
		if link := resolveURL(base, href); link != "" {
			return link
		}
	}
	return containerLink(el, base)
}
