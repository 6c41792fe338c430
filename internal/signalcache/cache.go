package signalcache

import (
	"context"
	"time"
)

// Cache stores gathered signals with a per-entry TTL. Values are encoded as
// JSON so every backend round-trips the same types.
//
// Implementations are safe for concurrent use. Concurrent writers on the same
// key race; the last write wins.
type Cache interface {
	// Get decodes the entry into dst. It reports false on a miss or an
	// expired entry.
	Get(ctx context.Context, ns, key string, dst any) (bool, error)
	Set(ctx context.Context, ns, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, ns, key string) error
	// Clear drops every entry owned by this cache.
	Clear(ctx context.Context) error
	Close() error
	// Backend names the implementation ("memory", "redis").
	Backend() string
}
