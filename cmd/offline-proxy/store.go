package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/pwa-posts-offline/internal/config"
	"github.com/Sternrassler/pwa-posts-offline/pkg/cache"
	"github.com/Sternrassler/pwa-posts-offline/pkg/logging"
)

// openStore builds the cache store for the configured driver.
func openStore(ctx context.Context, cfg config.StorageConfig) (*cache.Store, error) {
	var backend cache.Backend
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		backend = cache.NewRedisBackend(client, cfg.Redis.Prefix)
	case config.DriverLevelDB:
		db, err := cache.OpenLevelDB(cfg.LevelDB.Path)
		if err != nil {
			return nil, err
		}
		backend = db
	case config.DriverMemory, "":
		backend = cache.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	opts := []cache.Option{cache.WithLogger(logging.NewLogger("cache-store"))}
	if cfg.HotTier > 0 {
		opts = append(opts, cache.WithHotTier(cfg.HotTier))
	}
	return cache.NewStore(backend, opts...), nil
}
