package config

import "github.com/IshaanNene/sourcewatch/internal/types"

// Selector chains shared by sites built on the same CMS families.
var (
	genericContainers = []string{"article", ".article", ".story", ".news-item", ".post"}
	genericTitles     = []string{"h2 a", "h3 a", "h2", "h3", ".title", ".headline"}
	genericContent    = []string{".summary", ".excerpt", ".teaser", "p"}
)

// DefaultSources is the built-in catalog used when the config file does not
// declare a sources list.
func DefaultSources() []Source {
	return []Source{
		// news
		{
			Name:     "nation",
			URL:      "https://nation.africa/kenya/news",
			Category: types.CategoryNews,
			Rules: Ruleset{
				ArticleContainers: []string{".teasers-row .teaser-image-large", ".article-collection article", "article"},
				Title:             []string{"h3.teaser-image-large_title", ".title-small", "h3", "h2"},
				Content:           []string{".teaser-image-large_summary", ".article-summary", "p"},
			},
		},
		{
			Name:     "standard",
			URL:      "https://www.standardmedia.co.ke/kenya",
			Category: types.CategoryNews,
			Rules: Ruleset{
				ArticleContainers: []string{".card", ".mb-4 .row", "article"},
				Title:             []string{".card-title a", "h4 a", "h3 a", "h2"},
				Content:           []string{".card-text", ".story-summary", "p"},
			},
		},
		{
			Name:     "the-star",
			URL:      "https://www.the-star.co.ke/news",
			Category: types.CategoryNews,
			Rules: Ruleset{
				ArticleContainers: []string{".article-card", ".section-article", "xpath://div[contains(@class,'article')]"},
				Title:             []string{".article-title", "h3", "h2"},
				Content:           []string{".article-synopsis", ".article-body p", "p"},
			},
		},
		{
			Name:     "capital-fm",
			URL:      "https://www.capitalfm.co.ke/news/",
			Category: types.CategoryNews,
			Rules: Ruleset{
				ArticleContainers: genericContainers,
				Title:             []string{".entry-title a", ".jeg_post_title a", "h3 a", "h2 a"},
				Content:           []string{".jeg_post_excerpt p", ".entry-summary", "p"},
			},
		},

		// government
		{
			Name:     "president",
			URL:      "https://www.president.go.ke/news/",
			Category: types.CategoryGovernment,
			Rules: Ruleset{
				ArticleContainers: []string{".elementor-post", ".post", "article"},
				Title:             []string{".elementor-post__title a", ".entry-title", "h3", "h2"},
				Content:           []string{".elementor-post__excerpt p", ".entry-content p", "p"},
			},
		},
		{
			Name:     "mygov",
			URL:      "https://www.mygov.go.ke/news",
			Category: types.CategoryGovernment,
			Rules: Ruleset{
				ArticleContainers: []string{".views-row", ".node--type-article", "article"},
				Title:             []string{".views-field-title a", "h2 a", "h3"},
				Content:           []string{".views-field-body", ".field--name-body p", "p"},
			},
		},
		{
			Name:     "parliament",
			URL:      "https://www.parliament.go.ke/news",
			Category: types.CategoryGovernment,
			Rules: Ruleset{
				ArticleContainers: []string{".views-row", "xpath://div[contains(@class,'news')]//li", "article"},
				Title:             []string{".views-field-title", "h4", "h3", "a"},
				Content:           []string{".views-field-body", ".field-content p", "p"},
			},
		},

		// social
		{
			Name:     "reddit-kenya",
			URL:      "https://old.reddit.com/r/Kenya/",
			Category: types.CategorySocial,
			Rules: Ruleset{
				ArticleContainers: []string{"div.thing.link", "div.thing"},
				Title:             []string{"a.title", "p.title a"},
				Content:           []string{".expando .md", ".usertext-body", ".tagline"},
			},
		},
		{
			Name:     "kenyans",
			URL:      "https://www.kenyans.co.ke/news",
			Category: types.CategorySocial,
			Rules: Ruleset{
				ArticleContainers: genericContainers,
				Title:             genericTitles,
				Content:           genericContent,
			},
		},
		{
			Name:     "tuko",
			URL:      "https://www.tuko.co.ke/kenya/",
			Category: types.CategorySocial,
			Fetcher:  "browser",
			Rules: Ruleset{
				ArticleContainers: []string{".c-article-card", ".js-article-card", "article"},
				Title:             []string{".c-article-card__headline", ".c-article-card__title", "h2", "h3"},
				Content:           []string{".c-article-card__lead", ".c-article-card__description", "p"},
			},
		},
	}
}
