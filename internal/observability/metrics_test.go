package observability

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/sourcewatch/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestObserveStatus(t *testing.T) {
	m := NewMetrics(testLogger)
	for _, code := range []int{200, 204, 301, 404, 429, 502, 100} {
		m.ObserveStatus(code)
	}

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["responses_2xx"])
	assert.Equal(t, int64(1), snap["responses_3xx"])
	assert.Equal(t, int64(2), snap["responses_4xx"])
	assert.Equal(t, int64(1), snap["responses_5xx"])
}

func TestServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger)
	m.FetchAttempts.Add(3)
	m.ObserveFailure("transport")
	m.ObserveFailure("transport")
	m.ObserveFailure("")

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "sourcewatch_fetch_attempts_total 3\n")
	assert.Contains(t, body, "sourcewatch_sources_failed_total 3\n")
	assert.Contains(t, body, `sourcewatch_source_failures_total{class="transport"} 2`)
	assert.Contains(t, body, `sourcewatch_source_failures_total{class="unknown"} 1`)
	assert.Equal(t, map[string]int64{"transport": 2, "unknown": 1}, m.Failures())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"test"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
