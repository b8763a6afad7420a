// Package observability exposes run counters in Prometheus text format.
package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for scrape runs.
type Metrics struct {
	// Fetch metrics
	FetchAttempts atomic.Int64
	FetchRetries  atomic.Int64
	FetchFailures atomic.Int64

	// Response metrics
	Responses2xx atomic.Int64
	Responses3xx atomic.Int64
	Responses4xx atomic.Int64
	Responses5xx atomic.Int64

	BytesDownloaded atomic.Int64

	// Extraction metrics
	CandidatesExtracted atomic.Int64
	CandidatesDropped   atomic.Int64
	FallbackPasses      atomic.Int64

	// Output metrics
	RecordsEmitted    atomic.Int64
	DuplicatesDropped atomic.Int64

	// Source metrics
	SourcesSucceeded atomic.Int64
	SourcesFailed    atomic.Int64
	Runs             atomic.Int64

	mu       sync.Mutex
	failures map[string]int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		failures: make(map[string]int64),
		logger:   logger.With("component", "metrics"),
	}
}

// ObserveStatus counts a response by status class.
func (m *Metrics) ObserveStatus(code int) {
	switch {
	case code >= 500:
		m.Responses5xx.Add(1)
	case code >= 400:
		m.Responses4xx.Add(1)
	case code >= 300:
		m.Responses3xx.Add(1)
	case code >= 200:
		m.Responses2xx.Add(1)
	}
}

// ObserveFailure counts a failed source under its error class.
func (m *Metrics) ObserveFailure(class string) {
	m.SourcesFailed.Add(1)
	if class == "" {
		class = "unknown"
	}
	m.mu.Lock()
	m.failures[class]++
	m.mu.Unlock()
}

// Failures returns a copy of the failure counts by error class.
func (m *Metrics) Failures() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"sourcewatch_fetch_attempts_total", "Total fetch attempts", m.FetchAttempts.Load()},
		{"sourcewatch_fetch_retries_total", "Total fetch retries", m.FetchRetries.Load()},
		{"sourcewatch_fetch_failures_total", "Total fetches that exhausted their attempts", m.FetchFailures.Load()},
		{"sourcewatch_responses_2xx_total", "Total 2xx responses", m.Responses2xx.Load()},
		{"sourcewatch_responses_3xx_total", "Total 3xx responses", m.Responses3xx.Load()},
		{"sourcewatch_responses_4xx_total", "Total 4xx responses", m.Responses4xx.Load()},
		{"sourcewatch_responses_5xx_total", "Total 5xx responses", m.Responses5xx.Load()},
		{"sourcewatch_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"sourcewatch_candidates_extracted_total", "Total raw candidates extracted", m.CandidatesExtracted.Load()},
		{"sourcewatch_candidates_dropped_total", "Total candidates rejected by the quality filter", m.CandidatesDropped.Load()},
		{"sourcewatch_fallback_passes_total", "Total generic fallback passes", m.FallbackPasses.Load()},
		{"sourcewatch_records_emitted_total", "Total records returned", m.RecordsEmitted.Load()},
		{"sourcewatch_duplicates_dropped_total", "Total records removed by deduplication", m.DuplicatesDropped.Load()},
		{"sourcewatch_sources_succeeded_total", "Total sources that completed", m.SourcesSucceeded.Load()},
		{"sourcewatch_sources_failed_total", "Total sources that failed", m.SourcesFailed.Load()},
		{"sourcewatch_runs_total", "Total aggregation runs", m.Runs.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}

	failures := m.Failures()
	classes := make([]string, 0, len(failures))
	for class := range failures {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	fmt.Fprintf(w, "# HELP sourcewatch_source_failures_total Failed sources by error class\n")
	fmt.Fprintf(w, "# TYPE sourcewatch_source_failures_total counter\n")
	for _, class := range classes {
		fmt.Fprintf(w, "sourcewatch_source_failures_total{class=%q} %d\n", class, failures[class])
	}
}

// StartServer starts the metrics HTTP server in the background. Bind errors
// are returned directly; the caller shuts the server down.
func (m *Metrics) StartServer(port int, path string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv, nil
}

// Snapshot returns all counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"fetch_attempts":       m.FetchAttempts.Load(),
		"fetch_retries":        m.FetchRetries.Load(),
		"fetch_failures":       m.FetchFailures.Load(),
		"responses_2xx":        m.Responses2xx.Load(),
		"responses_3xx":        m.Responses3xx.Load(),
		"responses_4xx":        m.Responses4xx.Load(),
		"responses_5xx":        m.Responses5xx.Load(),
		"bytes_downloaded":     m.BytesDownloaded.Load(),
		"candidates_extracted": m.CandidatesExtracted.Load(),
		"candidates_dropped":   m.CandidatesDropped.Load(),
		"fallback_passes":      m.FallbackPasses.Load(),
		"records_emitted":      m.RecordsEmitted.Load(),
		"duplicates_dropped":   m.DuplicatesDropped.Load(),
		"sources_succeeded":    m.SourcesSucceeded.Load(),
		"sources_failed":       m.SourcesFailed.Load(),
		"runs":                 m.Runs.Load(),
	}
}
