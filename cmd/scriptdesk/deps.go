package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scriptdesk/internal/cache"
	"scriptdesk/internal/config"
	"scriptdesk/internal/settings"
	"scriptdesk/internal/store"
)

// deps are the long-lived resources shared by the commands.
type deps struct {
	db       *store.Store
	settings settings.Store
	redis    *redis.Client
}

func openDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", zap.String("driver", cfg.Database.Driver))

	d := &deps{db: db, settings: settings.NewSQLStore(db)}

	if cfg.Settings.Backend == "redis" {
		d.redis = redis.NewClient(&redis.Options{
			Addr: cfg.Settings.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := d.redis.Ping(ctx).Err(); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Settings.RedisAddr),
		)
		d.settings = settings.NewRedisStore(d.redis, cfg.Settings.RedisPrefix)
	}
	return d, nil
}

func (d *deps) Close() error {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	return d.db.Close()
}

// newCache builds the response cache from the configured segments.
func newCache(cfg config.Config, logger *zap.Logger) cache.Cache {
	segments := make(map[string]cache.SegmentConfig, len(cfg.Cache.Segments))
	for name, s := range cfg.Cache.Segments {
		segments[name] = cache.SegmentConfig{MaxSize: s.MaxSize, DefaultTTL: s.DefaultTTL}
	}
	rc := cache.New(segments, cache.WithEvictionHook(cache.EvictionLogger(logger)))
	return cache.NewLoggingCache(rc)
}
