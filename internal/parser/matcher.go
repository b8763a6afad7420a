// Package parser is the extraction layer: it turns a fetched page and a
// source ruleset into raw title/content candidates.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

// Kind tags the selector language of a Matcher.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

func (k Kind) String() string {
	if k == KindXPath {
		return "xpath"
	}
	return "css"
}

const (
	cssPrefix   = "css:"
	xpathPrefix = "xpath:"
)

// Matcher is one compiled selector. Chains of matchers are evaluated in order
// and the first one that yields an acceptable match wins.
type Matcher struct {
	Kind Kind
	Expr string

	css   cascadia.Selector
	xpath *xpath.Expr
}

// Compile parses a selector string. Strings prefixed with "xpath:" are XPath
// expressions; everything else, with or without a "css:" prefix, is CSS.
func Compile(selector string) (Matcher, error) {
	s := strings.TrimSpace(selector)
	switch {
	case strings.HasPrefix(s, xpathPrefix):
		expr := strings.TrimSpace(strings.TrimPrefix(s, xpathPrefix))
		compiled, err := xpath.Compile(expr)
		if err != nil {
			return Matcher{}, fmt.Errorf("compile xpath %q: %w", expr, err)
		}
		return Matcher{Kind: KindXPath, Expr: expr, xpath: compiled}, nil
	default:
		expr := strings.TrimSpace(strings.TrimPrefix(s, cssPrefix))
		if expr == "" {
			return Matcher{}, fmt.Errorf("empty selector")
		}
		compiled, err := cascadia.Compile(expr)
		if err != nil {
			return Matcher{}, fmt.Errorf("compile css %q: %w", expr, err)
		}
		return Matcher{Kind: KindCSS, Expr: expr, css: compiled}, nil
	}
}

// Find returns the descendants of sel that the matcher selects, in
// document order.
func (m Matcher) Find(sel *goquery.Selection) *goquery.Selection {
	if m.Kind == KindCSS {
		return sel.FindMatcher(m.css)
	}

	var nodes []*html.Node
	for _, n := range sel.Nodes {
		nodes = append(nodes, htmlquery.QuerySelectorAll(n, m.xpath)...)
	}
	// FindNodes keeps only true descendants, so an absolute "//" expression
	// evaluated from a container cannot escape it.
	return sel.FindNodes(nodes...)
}

func (m Matcher) String() string {
	return m.Kind.String() + ":" + m.Expr
}

// Chain is an ordered list of matchers.
type Chain []Matcher

// CompileChain compiles every selector of a list, in order.
func CompileChain(selectors []string) (Chain, error) {
	chain := make(Chain, 0, len(selectors))
	for _, s := range selectors {
		m, err := Compile(s)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
	}
	return chain, nil
}

// FirstNonEmpty returns the matches of the first matcher that selects at
// least one node under sel, or an empty selection.
func (c Chain) FirstNonEmpty(sel *goquery.Selection) (*goquery.Selection, Matcher, bool) {
	for _, m := range c {
		found := m.Find(sel)
		if found.Length() > 0 {
			return found, m, true
		}
	}
	return sel.Slice(0, 0), Matcher{}, false
}

// FirstText evaluates the chain against sel and returns the first cleaned
// text longer than minLen characters. Each matcher contributes at most
// perMatcher nodes to the search.
func (c Chain) FirstText(sel *goquery.Selection, minLen, perMatcher int) (string, bool) {
	for _, m := range c {
		found := m.Find(sel)
		n := found.Length()
		if perMatcher > 0 && n > perMatcher {
			n = perMatcher
		}
		for i := 0; i < n; i++ {
			text := nodeText(found.Eq(i))
			if types.RuneLen(text) > minLen {
				return text, true
			}
		}
	}
	return "", false
}

// Rules is a compiled config.Ruleset.
type Rules struct {
	Containers Chain
	Title      Chain
	Content    Chain
}

// CompileRuleset compiles all selector chains of a source ruleset.
func CompileRuleset(r config.Ruleset) (*Rules, error) {
	containers, err := CompileChain(r.ArticleContainers)
	if err != nil {
		return nil, fmt.Errorf("article_containers: %w", err)
	}
	title, err := CompileChain(r.Title)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	content, err := CompileChain(r.Content)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	return &Rules{Containers: containers, Title: title, Content: content}, nil
}
