package signals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/signalcache"
)

func newTestCache(t *testing.T) signalcache.Cache {
	t.Helper()
	c, err := signalcache.NewMemory(128)
	require.NoError(t, err)
	return c
}

func testDeps(t *testing.T) Deps {
	return Deps{Cache: newTestCache(t), Log: logger.NewNop()}
}

// countingServer counts requests before delegating to h.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestGatherersDisabledWithoutCredentials(t *testing.T) {
	cfg := &config.Config{
		GathererTimeout:    time.Second,
		TLSTimeout:         time.Second,
		BreakerMaxFailures: 3,
		BreakerOpenTimeout: time.Minute,
		WhoisXMLAPIKey:     "",
		URLScanAPIKey:      "your_urlscan_key",
		VirusTotalAPIKey:   "",
	}
	g := New(cfg, newTestCache(t), logger.NewNop())
	ctx := context.Background()

	for _, s := range g.Status() {
		assert.False(t, s.Enabled, s.Name)
	}

	age, err := g.DomainAge(ctx, "example.com")
	assert.Nil(t, age)
	assert.True(t, IsDisabled(err), "whois: %v", err)

	info, err := g.TLSInfo(ctx, "example.com")
	assert.Nil(t, info)
	assert.True(t, IsDisabled(err), "tls: %v", err)

	res, err := g.URLScanCheck(ctx, "https://example.com/", "example.com")
	assert.Nil(t, res)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotConfigured, kind)

	res, err = g.VirusTotalCheck(ctx, "https://example.com/")
	assert.Nil(t, res)
	assert.True(t, IsDisabled(err), "virustotal: %v", err)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "timeout", Outcome(&Error{Gatherer: "x", Kind: KindTimeout}))
	assert.Equal(t, "error", Outcome(assert.AnError))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		code int
		kind ErrorKind
	}{
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindBadResponse},
		{http.StatusNotFound, KindBadResponse},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, statusError("x", tt.code).Kind, "status %d", tt.code)
	}
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	deadURL := ts.URL
	ts.Close()

	deps := testDeps(t)
	deps.Breaker = BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}
	u := NewURLScan(URLScanConfig{APIKey: "k", BaseURL: deadURL, Timeout: time.Second}, deps)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := u.Check(ctx, "https://example.com/", "example.com")
		kind, _ := KindOf(err)
		assert.Equal(t, KindNetwork, kind)
	}
	assert.Equal(t, "open", u.BreakerState())

	_, err := u.Check(ctx, "https://example.com/", "example.com")
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, KindNetwork, kind)
}

func TestBreakerIgnoresUpstreamVerdictErrors(t *testing.T) {
	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	deps := testDeps(t)
	deps.Breaker = BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute}
	u := NewURLScan(URLScanConfig{APIKey: "k", BaseURL: ts.URL, Timeout: time.Second}, deps)

	for i := 0; i < 3; i++ {
		_, err := u.Check(context.Background(), "https://example.com/", "example.com")
		kind, _ := KindOf(err)
		assert.Equal(t, KindRateLimited, kind)
	}
	assert.Equal(t, "closed", u.BreakerState())
}
