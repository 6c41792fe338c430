package signals

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLID(t *testing.T) {
	assert.Equal(t, "aHR0cHM6Ly9leGFtcGxlLmNvbS8", URLID("https://example.com/"))
	assert.NotContains(t, URLID("https://a.b/?q=1"), "=")
}

func TestParseVirusTotal(t *testing.T) {
	tests := []struct {
		name       string
		attrs      vtAttributes
		safe       *bool
		confidence int
	}{
		{
			name:       "clean",
			attrs:      vtAttributes{LastAnalysisStats: map[string]int{"harmless": 70, "undetected": 10}},
			safe:       boolp(true),
			confidence: 85,
		},
		{
			name:       "two detections",
			attrs:      vtAttributes{LastAnalysisStats: map[string]int{"malicious": 1, "suspicious": 1, "harmless": 60}},
			safe:       boolp(false),
			confidence: 80,
		},
		{
			name:       "confidence capped",
			attrs:      vtAttributes{LastAnalysisStats: map[string]int{"malicious": 20}},
			safe:       boolp(false),
			confidence: 99,
		},
		{
			name: "per-engine categories count",
			attrs: vtAttributes{
				LastAnalysisStats: map[string]int{"harmless": 2},
				LastAnalysisResult: map[string]vtEngine{
					"a": {Category: "harmless", Result: "clean"},
					"b": {Category: "undetected", Result: "phishing"},
				},
			},
			safe:       boolp(false),
			confidence: 75,
		},
		{
			name:  "no engines",
			attrs: vtAttributes{},
			safe:  nil,
		},
		{
			name:       "analysis object fields",
			attrs:      vtAttributes{Status: "completed", Stats: map[string]int{"harmless": 5}},
			safe:       boolp(true),
			confidence: 85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parseVirusTotal(&tt.attrs)
			if tt.safe == nil {
				assert.Nil(t, res.Safe)
				assert.Equal(t, 0, res.Confidence)
				return
			}
			require.NotNil(t, res.Safe)
			assert.Equal(t, *tt.safe, *res.Safe)
			assert.Equal(t, tt.confidence, res.Confidence)
		})
	}
}

func boolp(b bool) *bool { return &b }

func TestVirusTotalKnownURL(t *testing.T) {
	target := "https://known.example/"
	ts, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vt", r.Header.Get("x-apikey"))
		assert.Equal(t, "/urls/"+URLID(target), r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"id":"x","attributes":{"last_analysis_stats":{"malicious":3,"harmless":50}}}}`))
	})

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "vt", BaseURL: ts.URL, Timeout: time.Second}, testDeps(t))
	ctx := context.Background()

	res, err := vt.Check(ctx, target)
	require.NoError(t, err)
	assert.True(t, res.IsUnsafe())
	assert.Equal(t, 85, res.Confidence)

	_, err = vt.Check(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "definitive verdicts are cached")
}

func TestVirusTotalSubmitsAndPolls(t *testing.T) {
	var polls atomic.Int32
	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/urls/"):
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NotFoundError"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/urls":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "https://new.example/", r.PostForm.Get("url"))
			_, _ = w.Write([]byte(`{"data":{"id":"u-123","type":"analysis"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/analyses/u-123":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"data":{"attributes":{"status":"queued","stats":{}}}}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":{"attributes":{"status":"completed","stats":{"harmless":40,"undetected":5}}}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	vt := NewVirusTotal(VirusTotalConfig{
		APIKey:    "vt",
		BaseURL:   ts.URL,
		Timeout:   2 * time.Second,
		PollDelay: time.Millisecond,
	}, testDeps(t))

	res, err := vt.Check(context.Background(), "https://new.example/")
	require.NoError(t, err)
	assert.True(t, res.IsSafe())
	assert.Equal(t, int32(3), polls.Load())
}

func TestVirusTotalUnfinishedAnalysisIsUnknown(t *testing.T) {
	ts, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"data":{"id":"slow"}}`))
		default:
			if strings.HasPrefix(r.URL.Path, "/urls/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"attributes":{"status":"queued","stats":{}}}}`))
		}
	})

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "vt", BaseURL: ts.URL, Timeout: 2 * time.Second, PollDelay: time.Millisecond}, testDeps(t))
	ctx := context.Background()

	res, err := vt.Check(ctx, "https://pending.example/")
	require.NoError(t, err)
	assert.Nil(t, res.Safe)

	first := hits.Load()
	assert.Equal(t, int32(1+1+vtPollAttempts), first)

	_, err = vt.Check(ctx, "https://pending.example/")
	require.NoError(t, err)
	assert.Greater(t, hits.Load(), first, "unknown verdicts are not cached")
}

func TestVirusTotalPollingStaysWithinCallBudget(t *testing.T) {
	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"data":{"id":"queued"}}`))
		default:
			if strings.HasPrefix(r.URL.Path, "/urls/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"attributes":{"status":"queued","stats":{}}}}`))
		}
	})

	// Same poll delay to timeout ratio as the defaults, scaled down.
	scale := vtPollDelay / 100
	vt := NewVirusTotal(VirusTotalConfig{
		APIKey:    "vt",
		BaseURL:   ts.URL,
		Timeout:   DefaultTimeout / 100,
		PollDelay: scale,
	}, testDeps(t))

	// More submissions than DefaultMaxFailures: none may trip the breaker.
	for i := 0; i < DefaultMaxFailures+2; i++ {
		start := time.Now()
		res, err := vt.Check(context.Background(), fmt.Sprintf("https://fresh%d.example/", i))
		require.NoError(t, err)
		assert.Nil(t, res.Safe)
		assert.Less(t, time.Since(start), DefaultTimeout/100)
	}
}

func TestVirusTotalHourlyQuota(t *testing.T) {
	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"harmless":1}}}}`))
	})

	vt := NewVirusTotal(VirusTotalConfig{APIKey: "vt", BaseURL: ts.URL, HourlyLimit: 1, Timeout: time.Second}, testDeps(t))
	ctx := context.Background()

	_, err := vt.Check(ctx, "https://one.example/")
	require.NoError(t, err)

	res, err := vt.Check(ctx, "https://two.example/")
	assert.Nil(t, res)
	kind, _ := KindOf(err)
	assert.Equal(t, KindRateLimited, kind)

	// Cached answers do not consume quota.
	_, err = vt.Check(ctx, "https://one.example/")
	assert.NoError(t, err)
}
