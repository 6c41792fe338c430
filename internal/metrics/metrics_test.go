package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveAnalysis("safe", false, 120*time.Millisecond)
	m.ObserveAnalysis("safe", true, time.Millisecond)
	m.ObserveAnalysis("safe", true, time.Millisecond)
	m.CacheLookup("miss")
	m.SignalRequest("whois", "ok")
	m.SignalRequest("virustotal", "rate_limited")
	m.RefreshEntry("error")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("safe", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.analyses.WithLabelValues("safe", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signalRequests.WithLabelValues("virustotal", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshEntries.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis("unknown", false, time.Second)
	m.CacheLookup("hit")
	m.SignalRequest("tls", "ok")
	m.RefreshEntry("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLookup("whitelist")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `urlguard_cache_lookups_total{result="whitelist"} 1`), body)
}
