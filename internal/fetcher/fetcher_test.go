package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var longPage = "<html><body>" + strings.Repeat("<p>County Governor Announces New Budget Plan</p>", 10) + "</body></html>"

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Retry.Timeout = 2 * time.Second
	f, err := NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestHTTPFetcherSuccessSetsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	resp, err := f.Fetch(context.Background(), srv.URL+"/news/today")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, longPage, string(resp.Body))
	assert.Contains(t, config.DefaultConfig().Fetcher.UserAgents, gotUA)
	assert.Equal(t, srv.URL+"/", gotReferer)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
}

func TestHTTPFetcherRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.True(t, te.IsRetryable())
}

func TestHTTPFetcherRejectsShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>tiny</html>"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBodyTooShort)
}

func TestHTTPFetcherDecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = bw.Write([]byte(longPage))
		_ = bw.Close()
	}))
	defer srv.Close()

	resp, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, longPage, string(resp.Body))
}

func TestHTTPFetcherStopsAfterMaxRedirects(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t).Fetch(context.Background(), srv.URL)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.IsRetryable())
	assert.Equal(t, int32(6), hits.Load(), "initial request plus 5 redirects")
}

func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherAttemptTimeout(t *testing.T) {
	srv := hangingServer(t)
	cfg := config.DefaultConfig()
	cfg.Retry.Timeout = 100 * time.Millisecond
	f, err := NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), srv.URL)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.IsRetryable())
	assert.ErrorIs(t, err, types.ErrAttemptTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "transport", types.ErrorClass(err))
}

func TestHTTPFetcherCallerDeadline(t *testing.T) {
	srv := hangingServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(t).Fetch(ctx, srv.URL)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.IsRetryable())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "deadline", types.ErrorClass(err))
}

func TestBrowserFetcherClosedBeforeLaunch(t *testing.T) {
	bf := NewBrowserFetcher(config.DefaultConfig(), testLogger)
	require.NoError(t, bf.Close())
	require.NoError(t, bf.Close())

	_, err := bf.Fetch(context.Background(), "https://example.com")
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.False(t, te.IsRetryable())
	assert.ErrorIs(t, err, errBrowserClosed)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, 120*time.Second, parseRetryAfter("999"))
}

// scriptedFetcher fails the first failures calls, then succeeds.
type scriptedFetcher struct {
	failures int
	calls    int
	err      error
}

func (s *scriptedFetcher) Fetch(_ context.Context, rawURL string) (*types.Response, error) {
	s.calls++
	if s.calls <= s.failures {
		if s.err != nil {
			return nil, s.err
		}
		return nil, &types.TransportError{URL: rawURL, Err: errors.New("connection refused"), Retryable: true}
	}
	return &types.Response{URL: rawURL, StatusCode: 200, Body: []byte(longPage)}, nil
}

func (s *scriptedFetcher) Close() error { return nil }
func (s *scriptedFetcher) Type() string { return "scripted" }

type recordingObserver struct {
	attempts []int
	waits    []time.Duration
}

func (o *recordingObserver) OnAttempt(attempt int) { o.attempts = append(o.attempts, attempt) }
func (o *recordingObserver) OnRetry(_ int, wait time.Duration, _ error) {
	o.waits = append(o.waits, wait)
}

func newRetry(next Fetcher, slept *[]time.Duration) *RetryFetcher {
	rf := NewRetryFetcher(next, config.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Timeout: time.Second}, testLogger)
	rf.SetSleep(func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	})
	return rf
}

func TestRetryFetcherLinearBackoff(t *testing.T) {
	var slept []time.Duration
	next := &scriptedFetcher{failures: 10}
	obs := &recordingObserver{}

	_, err := newRetry(next, &slept).FetchObserved(context.Background(), "https://example.com/a", obs)

	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "https://example.com/a", te.URL)
	assert.Equal(t, 3, te.Attempts)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Equal(t, 3, next.calls)
	assert.Equal(t, []int{1, 2, 3}, obs.attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	for i := 1; i < len(slept); i++ {
		assert.GreaterOrEqual(t, slept[i], slept[i-1], "backoff must not shrink")
	}
}

func TestRetryFetcherRecovers(t *testing.T) {
	var slept []time.Duration
	next := &scriptedFetcher{failures: 1}

	resp, err := newRetry(next, &slept).Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Len(t, slept, 1)
}

func TestRetryFetcherHonoursRetryAfter(t *testing.T) {
	var slept []time.Duration
	next := &scriptedFetcher{failures: 1, err: &types.TransportError{
		URL: "u", StatusCode: 429, Err: errors.New("rate limited"), Retryable: true, RetryAfter: 5 * time.Second,
	}}

	_, err := newRetry(next, &slept).Fetch(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, slept)
}

// sequenceFetcher returns its errors in order, then succeeds.
type sequenceFetcher struct {
	errs  []error
	calls int
}

func (s *sequenceFetcher) Fetch(_ context.Context, rawURL string) (*types.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &types.Response{URL: rawURL, StatusCode: 200, Body: []byte(longPage)}, nil
}

func (s *sequenceFetcher) Close() error { return nil }
func (s *sequenceFetcher) Type() string { return "sequence" }

func TestRetryFetcherRetryAfterKeepsBackoffFloor(t *testing.T) {
	var slept []time.Duration
	next := &sequenceFetcher{errs: []error{
		&types.TransportError{URL: "u", StatusCode: 429, Err: errors.New("rate limited"), Retryable: true, RetryAfter: 5 * time.Second},
		&types.TransportError{URL: "u", StatusCode: 502, Err: errors.New("bad gateway"), Retryable: true},
		&types.TransportError{URL: "u", StatusCode: 502, Err: errors.New("bad gateway"), Retryable: true},
	}}

	_, err := newRetry(next, &slept).Fetch(context.Background(), "u")

	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 502, te.StatusCode)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, slept)
}

func TestRetryFetcherSkipsNonRetryable(t *testing.T) {
	var slept []time.Duration
	next := &scriptedFetcher{failures: 5, err: &types.TransportError{URL: "u", Err: errors.New("bad url")}}

	_, err := newRetry(next, &slept).Fetch(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Empty(t, slept)
}

func TestRetryFetcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	next := &scriptedFetcher{failures: 5}
	rf := NewRetryFetcher(next, config.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}, testLogger)
	rf.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	})

	_, err := rf.Fetch(ctx, "u")
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProxyManagerRoundRobin(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Rotation: "round_robin",
		URLs:     []string{"http://p1:8080", "http://p2:8080", "::bad"},
	}, testLogger)

	require.Equal(t, 2, pm.Count())
	assert.Equal(t, "p1:8080", pm.Next().Host)
	assert.Equal(t, "p2:8080", pm.Next().Host)
	assert.Equal(t, "p1:8080", pm.Next().Host)
}
