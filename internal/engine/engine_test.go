package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/fetcher"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type article struct {
	title   string
	content string
	href    string
}

func articlePage(articles ...article) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Latest news</title></head><body><main>")
	for _, a := range articles {
		fmt.Fprintf(&b, `<article><h2><a href="%s">%s</a></h2><p>%s</p></article>`, a.href, a.title, a.content)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

// sleepRecorder replaces real sleeps and records every requested duration.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func source(name string, category types.Category, url string) config.Source {
	return config.Source{
		Name:     name,
		URL:      url,
		Category: category,
		Rules: config.Ruleset{
			ArticleContainers: []string{"article"},
			Title:             []string{"h2 a", "h2"},
			Content:           []string{"p"},
		},
	}
}

func newTestEngine(t *testing.T, sources ...config.Source) (*Engine, *sleepRecorder) {
	t.Helper()
	return newTestEngineWith(t, func(*config.Config) {}, sources...)
}

func newTestEngineWith(t *testing.T, configure func(*config.Config), sources ...config.Source) (*Engine, *sleepRecorder) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sources = sources
	configure(cfg)

	e, err := New(cfg, testLogger)
	require.NoError(t, err)

	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)

	rec := &sleepRecorder{}
	e.SetSleep(rec.Sleep)
	e.SetFetcher(DefaultFetcher, f)
	t.Cleanup(func() { _ = e.Close() })
	return e, rec
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources = nil
	_, err := New(cfg, testLogger)
	var ce *types.ConfigError
	require.ErrorAs(t, err, &ce)

	cfg.Sources = []config.Source{source("broken", types.CategoryNews, "https://example.com/")}
	cfg.Sources[0].Rules.Title = []string{"xpath://h2["}
	_, err = New(cfg, testLogger)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "sources[0].rules", ce.Field)
}

func TestScrapeGovernorScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(
			article{"County Governor Announces New Budget Plan", "The county governor unveiled a spending plan focused on roads and water.", "/news/budget-plan/"},
			article{"Weekend Football Results Roundup", "Gor Mahia won their derby match on Sunday afternoon at the stadium.", "/sports/derby"},
		))
	}))
	defer srv.Close()

	e, _ := newTestEngine(t, source("nation", types.CategoryNews, srv.URL+"/news"))

	records, errs := e.Scrape(context.Background(), types.CategoryNews, "governor")
	assert.Empty(t, errs)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "County Governor Announces New Budget Plan", rec.Title)
	assert.Equal(t, "The county governor unveiled a spending plan focused on roads and water.", rec.Content)
	assert.Equal(t, "nation", rec.Source)
	assert.Equal(t, types.CategoryNews, rec.Category)
	assert.Equal(t, srv.URL+"/news/budget-plan", rec.URL)
	assert.False(t, rec.RetrievedAt.IsZero())
}

func TestScrapeIsolatesFailingSource(t *testing.T) {
	var failHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Senate passes the county revenue bill", "Senators voted to increase allocations to the counties this year.", "/one/a"}))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		failHits.Add(1)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})
	mux.HandleFunc("/three", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Cabinet approves new health policy", "The policy expands insurance cover for informal sector workers.", "/three/a"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, sleeps := newTestEngine(t,
		source("one", types.CategoryNews, srv.URL+"/one"),
		source("two", types.CategoryNews, srv.URL+"/fail"),
		source("three", types.CategoryNews, srv.URL+"/three"),
	)

	records, errs := e.Scrape(context.Background(), types.CategoryNews, "")
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Source)
	assert.Equal(t, "three", records[1].Source)

	require.Len(t, errs, 1)
	var te *types.TransportError
	require.ErrorAs(t, errs["two"], &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), failHits.Load())

	// politeness, two linear backoffs, politeness
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second, 2 * time.Second, 2 * time.Second}, sleeps.Waits())

	snap := e.Metrics().Snapshot()
	assert.Equal(t, int64(5), snap["fetch_attempts"])
	assert.Equal(t, int64(2), snap["fetch_retries"])
	assert.Equal(t, int64(2), snap["sources_succeeded"])
	assert.Equal(t, int64(1), snap["sources_failed"])
}

func TestScrapeSourceOutcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fallback", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><nav>
<a href="/news/1">Nairobi county unveils new transport master plan</a>
<a href="/news/2">Weekend football results from around the league</a>
</nav></body></html>`)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("Nothing to see here. ", 10)+"</p></body></html>")
	})
	mux.HandleFunc("/noise", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(
			article{"We use cookies to improve your visit", "By continuing to browse you agree to our cookie policy terms.", "/c"},
			article{"Subscribe to the morning briefing", "Get the top stories from Nairobi delivered to your inbox daily.", "/s"},
		))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fallbackSrc := source("fallback", types.CategoryGovernment, srv.URL+"/fallback")
	emptySrc := source("empty", types.CategoryGovernment, srv.URL+"/empty")
	noiseSrc := source("noise", types.CategoryGovernment, srv.URL+"/noise")
	e, _ := newTestEngine(t, fallbackSrc, emptySrc, noiseSrc)
	ctx := context.Background()

	t.Run("fallback pass", func(t *testing.T) {
		records, err := e.ScrapeSource(ctx, fallbackSrc, "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Nairobi county unveils new transport master plan", records[0].Title)
		assert.Equal(t, "fallback: Nairobi county unveils new transport master plan", records[0].Content)
		assert.Equal(t, srv.URL+"/news/1", records[0].URL)
	})

	t.Run("no candidates", func(t *testing.T) {
		records, err := e.ScrapeSource(ctx, emptySrc, "")
		assert.ErrorIs(t, err, types.ErrNoCandidatesAfterFallback)
		assert.Equal(t, "no_candidates", types.ErrorClass(err))
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("filter rejects all", func(t *testing.T) {
		records, err := e.ScrapeSource(ctx, noiseSrc, "")
		assert.ErrorIs(t, err, types.ErrFilterRejectedAll)
		assert.Empty(t, records)
	})

	t.Run("state machine", func(t *testing.T) {
		_, ok := e.scrapeSource(ctx, fallbackSrc, "")
		assert.Equal(t, types.StateDone, ok.State)
		assert.Equal(t, "done", ok.StateName)
		assert.Equal(t, 1, ok.Attempts)
		assert.True(t, ok.Succeeded())

		_, bad := e.scrapeSource(ctx, emptySrc, "")
		assert.Equal(t, types.StateFailed, bad.State)
		assert.Equal(t, "no_candidates", bad.ErrorClass)
		assert.False(t, bad.Succeeded())
	})
}

func TestScrapeAllMergesAndDedupes(t *testing.T) {
	shared := article{"Parliament Approves Finance Bill 2026", "Members of parliament voted to approve the finance bill late on Thursday.", "/a"}

	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(shared, article{"Governor launches county bursary fund", "Needy students across the county will benefit from the new fund.", "/b"}))
	})
	mux.HandleFunc("/gov", func(w http.ResponseWriter, r *http.Request) {
		dup := shared
		dup.title = strings.ToUpper(shared.title)
		fmt.Fprint(w, articlePage(dup))
	})
	mux.HandleFunc("/social", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEngine(t,
		source("social-feed", types.CategorySocial, srv.URL+"/social"),
		source("gov-portal", types.CategoryGovernment, srv.URL+"/gov"),
		source("daily", types.CategoryNews, srv.URL+"/news"),
	)

	res := e.ScrapeAll(context.Background(), "")
	_, err := uuid.Parse(res.RunID)
	assert.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, "daily", res.Records[0].Source)
	assert.Equal(t, shared.title, res.Records[0].Title)
	assert.Equal(t, "daily", res.Records[1].Source)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "daily", res.Outcomes[0].Source)
	assert.Equal(t, "gov-portal", res.Outcomes[1].Source)
	assert.Equal(t, "social-feed", res.Outcomes[2].Source)

	assert.True(t, res.Partial())
	assert.Equal(t, []string{"daily", "gov-portal"}, res.Succeeded())
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "transport", failed[0].ErrorClass)
	assert.Contains(t, res.Errors(), "social-feed")
}

func TestScrapeKeepsPartialResultsOnDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Court halts the county land sale", "The judge issued temporary orders pending a full hearing next month.", "/a"}))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEngine(t,
		source("fast", types.CategoryNews, srv.URL+"/fast"),
		source("slow", types.CategoryNews, srv.URL+"/slow"),
		source("never", types.CategoryNews, srv.URL+"/fast"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	records, errs := e.Scrape(ctx, types.CategoryNews, "")
	assert.Less(t, time.Since(start), 3*time.Second)

	require.Len(t, records, 1)
	assert.Equal(t, "fast", records[0].Source)

	require.Contains(t, errs, "slow")
	require.Contains(t, errs, "never")
	assert.NotContains(t, errs, "fast")
	assert.ErrorIs(t, errs["never"], context.DeadlineExceeded)
	assert.Equal(t, "deadline", types.ErrorClass(errs["never"]))
	assert.Equal(t, "deadline", types.ErrorClass(errs["slow"]), "cut off mid-fetch by the caller")
}

func TestSourceThatAlwaysTimesOut(t *testing.T) {
	var hangHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/hang", func(w http.ResponseWriter, r *http.Request) {
		hangHits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/gov", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Treasury publishes revised county allocations", "The national treasury released the revised allocation figures for all counties.", "/gov/a"}))
	})
	mux.HandleFunc("/social", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Residents share photos of flooded estates", "Posts from the lakeside estates show water levels rising after overnight rain.", "/social/a"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	hanging := source("hanging", types.CategoryNews, srv.URL+"/hang")
	e, rec := newTestEngineWith(t, func(cfg *config.Config) {
		cfg.Retry.Timeout = 100 * time.Millisecond
	},
		hanging,
		source("gazette", types.CategoryGovernment, srv.URL+"/gov"),
		source("feed", types.CategorySocial, srv.URL+"/social"),
	)

	start := time.Now()
	records, err := e.ScrapeSource(context.Background(), hanging, "")
	assert.Less(t, time.Since(start), 3*time.Second)

	require.NotNil(t, records)
	assert.Empty(t, records)
	var te *types.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.ErrorIs(t, err, types.ErrAttemptTimeout)
	assert.Equal(t, "transport", types.ErrorClass(err))
	assert.Equal(t, int32(3), hangHits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.Waits())

	res := e.ScrapeAll(context.Background(), "")
	require.Len(t, res.Records, 2)
	assert.Equal(t, "gazette", res.Records[0].Source)
	assert.Equal(t, "feed", res.Records[1].Source)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, "hanging", res.Failed()[0].Source)
	assert.Equal(t, 3, res.Failed()[0].Attempts)
	assert.Equal(t, "transport", res.Failed()[0].ErrorClass)
}

func TestScrapeAllAppliesConfiguredDeadline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Minister outlines plan for new roads", "The ministry will tarmac two hundred kilometres of rural roads.", "/a"}))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newTestEngine(t,
		source("fast", types.CategoryNews, srv.URL+"/fast"),
		source("slow", types.CategoryGovernment, srv.URL+"/slow"),
	)
	e.cfg.Scrape.Deadline = 300 * time.Millisecond

	res := e.ScrapeAll(context.Background(), "")
	require.Len(t, res.Records, 1)
	assert.Equal(t, "fast", res.Records[0].Source)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, "slow", res.Failed()[0].Source)
	assert.Less(t, res.Duration, 3*time.Second)
}

func TestHealthCheck(t *testing.T) {
	var failHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage(article{"Health check page", "This page is long enough to count as a working response body.", "/"}))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		failHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tiny")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, sleeps := newTestEngine(t, source("ok", types.CategoryNews, srv.URL+"/ok"))

	urls := []string{srv.URL + "/fail", srv.URL + "/ok", "not a url", srv.URL + "/short"}
	working, failed := e.HealthCheck(context.Background(), urls)

	assert.Equal(t, []string{srv.URL + "/ok"}, working)
	assert.Equal(t, []string{srv.URL + "/fail", "not a url", srv.URL + "/short"}, failed)
	assert.Equal(t, int32(1), failHits.Load())
	assert.Empty(t, sleeps.Waits())
}

func TestSourcesAccessor(t *testing.T) {
	e, _ := newTestEngine(t,
		source("a", types.CategoryNews, "https://a.example/"),
		source("b", types.CategorySocial, "https://b.example/"),
		source("c", types.CategoryNews, "https://c.example/"),
	)
	news := e.Sources(types.CategoryNews)
	require.Len(t, news, 2)
	assert.Equal(t, "a", news[0].Name)
	assert.Equal(t, "c", news[1].Name)
	assert.Empty(t, e.Sources(types.CategoryGovernment))
}

func TestFetcherForFallsBackToDefault(t *testing.T) {
	e, _ := newTestEngine(t, source("a", types.CategoryNews, "https://a.example/"))

	f, err := e.fetcherFor(config.Source{Name: "js", Fetcher: "browser"})
	require.NoError(t, err)
	assert.Equal(t, "http", f.Type())

	empty, err := New(e.cfg, testLogger)
	require.NoError(t, err)
	_, err = empty.fetcherFor(config.Source{Name: "a"})
	assert.Error(t, err)
}
