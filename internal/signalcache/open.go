package signalcache

import (
	"context"

	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
	redisconn "github.com/MrSnakeDoc/urlguard/internal/redis"
)

// Open builds the configured cache. When the redis backend cannot be reached
// it logs the failure and falls back to memory.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (Cache, error) {
	if cfg.SignalCacheBackend == "redis" {
		client, err := redisconn.Connect(ctx, redisconn.OptionsFromConfig(cfg), log)
		if err == nil {
			return NewRedis(client), nil
		}
		log.Warn("signal cache falling back to memory", logger.Error(err))
	}
	return NewMemory(cfg.SignalCacheSize)
}
