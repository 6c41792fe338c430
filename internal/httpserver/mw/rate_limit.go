package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Burst             int
	RefillPerIPPerMin int
	MaxEntries        int // tracked clients; the least recently seen is evicted
	TrustProxy        bool
}

// limiter keeps one token bucket per client IP.
type limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.RefillPerIPPerMin < 1 {
		cfg.RefillPerIPPerMin = 1
	}
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 10000
	}
	buckets, _ := lru.New[string, *rate.Limiter](cfg.MaxEntries)
	return &limiter{
		every:   rate.Limit(float64(cfg.RefillPerIPPerMin) / 60.0),
		burst:   cfg.Burst,
		buckets: buckets,
	}
}

func (l *limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets.Add(key, b)
	}
	return b
}

// allow consumes one token. On refusal it reports the seconds until the next
// token is available.
func (l *limiter) allow(key string, now time.Time) (ok bool, remaining int, retryAfterSec int) {
	b := l.get(key)
	if b.AllowN(now, 1) {
		return true, int(math.Floor(b.TokensAt(now))), 0
	}
	missing := 1 - b.TokensAt(now)
	sec := int(math.Ceil(missing / float64(l.every)))
	return false, 0, max(sec, 1)
}

// RateLimit limits requests per client IP with a token bucket.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limitStr := strconv.Itoa(l.burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, retry := l.allow(ClientIP(r, cfg.TrustProxy), time.Now())
			w.Header().Set("X-RateLimit-Limit", limitStr)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Remaining", "0")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
			next.ServeHTTP(w, r)
		})
	}
}
