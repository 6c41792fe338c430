package signalcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Issuer string `json:"issuer"`
	Age    *int   `json:"age"`
}

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewRedis(client)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newMemoryCache(t *testing.T) *Memory {
	t.Helper()
	c, err := NewMemory(16)
	require.NoError(t, err)
	return c
}

// backends runs the same contract against every implementation.
func backends(t *testing.T) map[string]Cache {
	r, _ := newRedisCache(t)
	return map[string]Cache{
		"memory": newMemoryCache(t),
		"redis":  r,
	}
}

func TestCacheContract(t *testing.T) {
	ctx := context.Background()
	age := 42

	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var got sample
			ok, err := c.Get(ctx, "tls", "example.com", &got)
			require.NoError(t, err)
			assert.False(t, ok, "empty cache should miss")

			require.NoError(t, c.Set(ctx, "tls", "example.com", sample{Issuer: "R3", Age: &age}, time.Hour))
			ok, err = c.Get(ctx, "tls", "example.com", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "R3", got.Issuer)
			require.NotNil(t, got.Age)
			assert.Equal(t, 42, *got.Age)

			// Namespaces are isolated
			ok, err = c.Get(ctx, "whois", "example.com", &got)
			require.NoError(t, err)
			assert.False(t, ok)

			// A cached "unknown" is a hit holding null
			require.NoError(t, c.Set(ctx, "whois", "unknown.example", (*int)(nil), time.Hour))
			var cachedAge *int
			ok, err = c.Get(ctx, "whois", "unknown.example", &cachedAge)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Nil(t, cachedAge)

			require.NoError(t, c.Delete(ctx, "tls", "example.com"))
			ok, _ = c.Get(ctx, "tls", "example.com", &got)
			assert.False(t, ok, "deleted entry should miss")

			require.NoError(t, c.Clear(ctx))
			ok, _ = c.Get(ctx, "whois", "unknown.example", &cachedAge)
			assert.False(t, ok, "cleared cache should miss")

			assert.Equal(t, name, c.Backend())
		})
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "whois", "example.com", 100, time.Hour))

	var v int
	ok, err := c.Get(ctx, "whois", "example.com", &v)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	ok, err = c.Get(ctx, "whois", "example.com", &v)
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire at its TTL")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemory(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "tls", "a", 1, 0))
	require.NoError(t, c.Set(ctx, "tls", "b", 2, 0))

	var v int
	ok, _ := c.Get(ctx, "tls", "a", &v) // a is now most recent
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "tls", "c", 3, 0))

	ok, _ = c.Get(ctx, "tls", "b", &v)
	assert.False(t, ok, "b should have been evicted")
	ok, _ = c.Get(ctx, "tls", "a", &v)
	assert.True(t, ok)
}

func TestMemoryCapsEachNamespace(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemory(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "whois", "example.com", 100, 0))
	for _, host := range []string{"a.example", "b.example", "c.example"} {
		require.NoError(t, c.Set(ctx, "tls", host, true, 0))
	}

	var age int
	ok, err := c.Get(ctx, "whois", "example.com", &age)
	require.NoError(t, err)
	assert.True(t, ok, "a full tls namespace must not evict whois entries")
	assert.Equal(t, 3, c.Len())

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestRedisExpiryAndKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "urlscan", "example.com", "safe", time.Hour))
	assert.True(t, mr.Exists("urlguard:signal:urlscan:example.com"))
	assert.Equal(t, time.Hour, mr.TTL("urlguard:signal:urlscan:example.com"))

	mr.FastForward(time.Hour + time.Second)

	var v string
	ok, err := c.Get(ctx, "urlscan", "example.com", &v)
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire at its TTL")
}

func TestRedisClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, c.Set(ctx, "tls", "a.example", "x", time.Minute))
	require.NoError(t, c.Set(ctx, "whois", "b.example", "y", time.Minute))

	require.NoError(t, c.Clear(ctx))

	assert.False(t, mr.Exists(Key("tls", "a.example")))
	assert.False(t, mr.Exists(Key("whois", "b.example")))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisPing(t *testing.T) {
	c, mr := newRedisCache(t)
	assert.NoError(t, c.Ping(context.Background()))
	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
