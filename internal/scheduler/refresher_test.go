package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/domain"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/metrics"
	"github.com/MrSnakeDoc/urlguard/internal/reputation"
	"github.com/MrSnakeDoc/urlguard/internal/store"
)

// fakeAnalyzer answers with a fixed verdict per URL substring and fails for
// URLs containing "fail".
type fakeAnalyzer struct {
	mu       sync.Mutex
	seen     []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeAnalyzer) AnalyzeURL(_ context.Context, rawURL string, opts analysis.Options) (*analysis.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.seen = append(f.seen, rawURL)
	f.mu.Unlock()

	if !opts.IgnoreCache || !opts.UseExternal {
		return nil, errors.New("refresh must bypass the cache with external checks")
	}

	switch {
	case strings.Contains(rawURL, "fail"):
		return nil, errors.New("boom")
	case strings.Contains(rawURL, "bad"):
		return &analysis.Result{URL: rawURL, Verdict: domain.VerdictUnsafe}, nil
	case strings.Contains(rawURL, "meh"):
		return &analysis.Result{URL: rawURL, Verdict: domain.VerdictUnknown}, nil
	default:
		return &analysis.Result{URL: rawURL, Verdict: domain.VerdictSafe}, nil
	}
}

func seededCache(t *testing.T, urls map[string]domain.Verdict) *reputation.Cache {
	t.Helper()
	cache := reputation.New(store.NewMemory(), nil, logger.NewNop())
	for u, v := range urls {
		if err := cache.Write(context.Background(), u, v, domain.Assessment{Source: "test"}); err != nil {
			t.Fatalf("Write(%s) error = %v", u, err)
		}
	}
	return cache
}

func newRefresher(cache *reputation.Cache, a Analyzer) *Refresher {
	return NewRefresher(cache, a, metrics.New(), logger.New("error", false), RefresherConfig{Concurrency: 2})
}

func TestRefresherRefresh(t *testing.T) {
	cache := seededCache(t, map[string]domain.Verdict{
		"https://good.example/":   domain.VerdictSafe,
		"https://bad.example/":    domain.VerdictUnsafe,
		"https://meh.example/":    domain.VerdictSafe,
		"https://fail.example/":   domain.VerdictUnsafe,
		"https://good2.example/a": domain.VerdictSafe,
	})
	a := &fakeAnalyzer{}

	sum, err := newRefresher(cache, a).Refresh(context.Background(), "", 50)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if sum.Target != TargetAll {
		t.Errorf("Target = %q, want all", sum.Target)
	}
	if sum.Processed != 5 {
		t.Errorf("Processed = %d, want 5", sum.Processed)
	}
	if sum.Whitelist != 2 || sum.Blacklist != 1 || sum.Unknown != 1 || sum.Errors != 1 {
		t.Errorf("Summary = %+v, want 2 whitelist, 1 blacklist, 1 unknown, 1 error", sum)
	}
	if p := a.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestRefresherTargetAndLimit(t *testing.T) {
	urls := map[string]domain.Verdict{}
	for i := 0; i < 60; i++ {
		urls["https://bad.example/"+strings.Repeat("x", i+1)] = domain.VerdictUnsafe
	}
	urls["https://good.example/"] = domain.VerdictSafe
	cache := seededCache(t, urls)

	tests := []struct {
		name      string
		target    string
		limit     int
		processed int
	}{
		{name: "clamped to 50", target: "blacklist", limit: 500, processed: 50},
		{name: "zero becomes one", target: "blacklist", limit: 0, processed: 1},
		{name: "negative becomes one", target: "all", limit: -3, processed: 1},
		{name: "whitelist only", target: "Whitelist", limit: 10, processed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, err := newRefresher(cache, &fakeAnalyzer{}).Refresh(context.Background(), tt.target, tt.limit)
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if sum.Processed != tt.processed {
				t.Errorf("Processed = %d, want %d", sum.Processed, tt.processed)
			}
		})
	}
}

func TestRefresherInvalidTarget(t *testing.T) {
	r := newRefresher(seededCache(t, nil), &fakeAnalyzer{})

	_, err := r.Refresh(context.Background(), "greylist", 10)
	if !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Refresh() error = %v, want ErrInvalidTarget", err)
	}
	if r.Trigger(Request{Target: "greylist"}) {
		t.Error("Trigger() accepted an invalid target")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{-1, 1}, {0, 1}, {1, 1}, {10, 10}, {50, 50}, {51, 50}, {1000, 50},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRefresherTriggerRunsAsync(t *testing.T) {
	cache := seededCache(t, map[string]domain.Verdict{"https://good.example/": domain.VerdictSafe})
	a := &fakeAnalyzer{}
	r := newRefresher(cache, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	if !r.Trigger(Request{Target: "whitelist", Limit: 5}) {
		t.Fatal("Trigger() = false, want true")
	}

	deadline := time.After(2 * time.Second)
	for {
		a.mu.Lock()
		n := len(a.seen)
		a.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("triggered refresh did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	r.Stop()
	r.Stop()
	<-done
}

// brokenStore fails every Put once failing is set.
type brokenStore struct {
	*store.Memory
	failing atomic.Bool
}

func (b *brokenStore) Put(ctx context.Context, rec *domain.ReputationRecord) error {
	if b.failing.Load() {
		return errors.New("disk full")
	}
	return b.Memory.Put(ctx, rec)
}

// silentSignals returns no signal at all.
type silentSignals struct{}

func (silentSignals) DomainAge(context.Context, string) (*int, error) {
	return nil, nil
}

func (silentSignals) TLSInfo(context.Context, string) (*domain.TLSInfo, error) {
	return nil, nil
}

func (silentSignals) URLScanCheck(context.Context, string, string) (*domain.ExternalResult, error) {
	return nil, nil
}

func (silentSignals) VirusTotalCheck(context.Context, string) (*domain.ExternalResult, error) {
	return nil, nil
}

func TestRefresherCountsStoreFailures(t *testing.T) {
	tests := []struct {
		name    string
		failPut bool
		cancel  bool
	}{
		{name: "write-back fails", failPut: true},
		{name: "context cancelled", cancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &brokenStore{Memory: store.NewMemory()}
			cache := reputation.New(st, nil, logger.NewNop())
			urls := []string{"https://one.example/", "https://two.example/"}
			for _, u := range urls {
				if err := cache.Write(context.Background(), u, domain.VerdictUnsafe, domain.Assessment{Source: "test"}); err != nil {
					t.Fatalf("Write(%s) error = %v", u, err)
				}
			}
			st.failing.Store(tt.failPut)

			svc := analysis.NewService(cache, silentSignals{}, nil, nil, logger.NewNop())
			r := newRefresher(cache, svc)

			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			} else {
				defer cancel()
			}

			sum, err := r.Refresh(ctx, TargetAll, 50)
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if sum.Processed != 2 || sum.Errors != 2 || sum.Whitelist != 0 || sum.Blacklist != 0 {
				t.Errorf("Summary = %+v, want 2 processed, 2 errors", sum)
			}

			for _, u := range urls {
				rec, err := cache.Get(context.Background(), u)
				if err != nil {
					t.Fatalf("Get(%s) error = %v", u, err)
				}
				if rec.List != domain.Blacklist {
					t.Errorf("%s moved to %s, want it left on the blacklist", u, rec.List)
				}
			}
		})
	}
}
