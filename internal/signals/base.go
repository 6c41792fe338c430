package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/MrSnakeDoc/urlguard/internal/logger"
	"github.com/MrSnakeDoc/urlguard/internal/signalcache"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxFailures = 5
	DefaultOpenTimeout = 60 * time.Second

	maxBodyBytes = 4 << 20
	userAgent    = "urlguard/1.0"
)

// Deps are shared by every gatherer.
type Deps struct {
	Cache   signalcache.Cache
	HTTP    *http.Client // optional, built from Timeout when nil
	Log     logger.Logger
	Breaker BreakerSettings
}

// BreakerSettings configures the per-gatherer circuit breaker.
type BreakerSettings struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // time spent open before a half-open probe
}

// base holds what every gatherer needs: a namespace in the signal cache,
// a per-call timeout and a circuit breaker.
type base struct {
	name    string
	cache   signalcache.Cache
	ttl     time.Duration
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

func newBase(name string, ttl, timeout time.Duration, deps Deps) base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	client := deps.HTTP
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	maxFailures := deps.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	openTimeout := deps.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	named := log.Named(name)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Only transport problems count against the upstream.
		IsSuccessful: func(err error) bool {
			k, ok := KindOf(err)
			return err == nil || (ok && k != KindTimeout && k != KindNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			named.Warn("circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}

	return base{
		name:    name,
		cache:   deps.Cache,
		ttl:     ttl,
		timeout: timeout,
		http:    client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     named,
	}
}

// BreakerState is exposed on /infra.
func (b *base) BreakerState() string {
	return b.breaker.State().String()
}

// execute runs fn under the circuit breaker and a per-call timeout.
func execute[T any](ctx context.Context, b *base, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	v, err := b.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if _, ok := KindOf(err); ok {
			return zero, err
		}
		return zero, transportError(b.name, err)
	}
	out, _ := v.(T)
	return out, nil
}

// cached reads key from the gatherer namespace. Cache failures are logged and
// treated as a miss.
func cached[T any](ctx context.Context, b *base, key string) (T, bool) {
	var v T
	if b.cache == nil {
		return v, false
	}
	ok, err := b.cache.Get(ctx, b.name, key, &v)
	if err != nil {
		b.log.Debug("signal cache read failed", logger.String("key", key), logger.Error(err))
		return v, false
	}
	return v, ok
}

func (b *base) store(ctx context.Context, key string, v any) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Set(ctx, b.name, key, v, b.ttl); err != nil {
		b.log.Debug("signal cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// doJSON sends req and decodes a 2xx JSON body into dst. Non-2xx statuses
// are mapped by statusError; the status code is returned either way.
func (b *base) doJSON(req *http.Request, dst any) (int, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := b.http.Do(req)
	if err != nil {
		return 0, transportError(b.name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, statusError(b.name, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return resp.StatusCode, badResponse(b.name, fmt.Errorf("decode body: %w", err))
	}
	return resp.StatusCode, nil
}
