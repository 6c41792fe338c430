package signalcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is shared by every signal cache key.
const KeyPrefix = "urlguard:signal:"

// Key returns the Redis key for a cached signal.
// Example: urlguard:signal:whois:example.com
func Key(ns, key string) string {
	return KeyPrefix + ns + ":" + key
}

// Redis stores signals in Redis with native TTLs, so several service
// instances share lookups.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, ns, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, Key(ns, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get cached signal: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached signal: %w", err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, ns, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, Key(ns, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache signal: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, ns, key string) error {
	if err := r.client.Del(ctx, Key(ns, key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate signal: %w", err)
	}
	return nil
}

// Clear removes every urlguard:signal:* key.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete signal key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to clear signal cache: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Backend() string { return "redis" }

// Ping is used by readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
