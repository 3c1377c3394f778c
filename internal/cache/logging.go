package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"scriptdesk/internal/metrics"
	"scriptdesk/pkg/logging"
)

// LoggingCache wraps a Cache with logging + metrics.
type LoggingCache struct {
	inner Cache
}

// NewLoggingCache returns a cache that logs and records metrics.
func NewLoggingCache(inner Cache) *LoggingCache {
	return &LoggingCache{inner: inner}
}

var _ Cache = (*LoggingCache)(nil)

func (c *LoggingCache) Get(ctx context.Context, segment, key string) ([]byte, bool) {
	start := time.Now()
	value, ok := c.inner.Get(ctx, segment, key)
	c.logLookup(ctx, "cache_get", segment, key, ok, start)
	return value, ok
}

func (c *LoggingCache) Set(ctx context.Context, segment, key string, value []byte, ttl time.Duration) {
	start := time.Now()
	c.inner.Set(ctx, segment, key, value, ttl)

	fields := append(keyFields(segment, key),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", sinceMs(start)),
	)
	logging.L(ctx).Debug("cache_set", fields...)
}

func (c *LoggingCache) Invalidate(ctx context.Context, segment string) {
	c.inner.Invalidate(ctx, segment)
	metrics.CacheInvalidationsTotal.WithLabelValues(segment).Inc()
	logging.L(ctx).Info("cache_invalidate", zap.String("segment", segment))
}

func (c *LoggingCache) GetOrLoad(ctx context.Context, segment, key string, ttl time.Duration, load LoadFunc) ([]byte, bool, error) {
	start := time.Now()
	value, hit, err := c.inner.GetOrLoad(ctx, segment, key, ttl, load)
	if err != nil {
		fields := append(keyFields(segment, key), zap.Error(err))
		logging.L(ctx).Warn("cache_load_error", fields...)
		return nil, false, err
	}
	c.logLookup(ctx, "cache_get_or_load", segment, key, hit, start)
	return value, hit, nil
}

func (c *LoggingCache) Stats(segment string) (Stats, bool) {
	return c.inner.Stats(segment)
}

func (c *LoggingCache) AllStats() map[string]Stats {
	return c.inner.AllStats()
}

func (c *LoggingCache) logLookup(ctx context.Context, msg, segment, key string, hit bool, start time.Time) {
	result := "miss"
	if hit {
		result = "hit"
		metrics.CacheHitsTotal.WithLabelValues(segment).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(segment).Inc()
	}

	fields := append(keyFields(segment, key),
		zap.String("cache_result", result), // hit | miss
		zap.Float64("latency_ms", sinceMs(start)),
	)
	logging.L(ctx).Debug(msg, fields...)
}

// EvictionLogger returns a hook for WithEvictionHook that logs and counts
// capacity evictions.
func EvictionLogger(logger *zap.Logger) func(segment, key string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(segment, key string) {
		metrics.CacheEvictionsTotal.WithLabelValues(segment).Inc()
		logger.Debug("cache_evict", keyFields(segment, key)...)
	}
}

func keyFields(segment, key string) []zap.Field {
	fields := []zap.Field{
		zap.String("segment", segment),
		zap.String("cache_key", key),
	}
	if parts, ok := parseRequestKey(key); ok {
		fields = append(fields,
			zap.String("route", parts.Path),
			zap.String("hash", parts.Hash),
		)
	}
	return fields
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Expecting: req:<PATH>:<HASH>
func parseRequestKey(key string) (RequestKey, bool) {
	if !strings.HasPrefix(key, "req:") {
		return RequestKey{}, false
	}
	rest := key[len("req:"):]
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return RequestKey{}, false
	}
	return RequestKey{Path: rest[:i], Hash: rest[i+1:]}, true
}
