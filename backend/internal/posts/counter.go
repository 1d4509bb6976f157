package posts

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"currents/backend/pkg/logger"
)

const countCacheKey = "currents:posts:count"

// countSource yields the exact post total from the store
type countSource interface {
	CountPosts(ctx context.Context) (int64, error)
}

// Counter serves the display post total. The value is cached in Redis with a
// TTL, so it lags writes by up to the TTL; an eventually-consistent count is
// the contract here, not a billing-grade total.
type Counter struct {
	source countSource
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCounter creates a counter backed by the given store and Redis cache.
// cache may be nil, which degrades to counting the store on every call.
func NewCounter(source countSource, cache *redis.Client, ttl time.Duration) *Counter {
	return &Counter{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Get(),
	}
}

// Approximate returns the cached post total, refreshing from the store on a
// cache miss. Cache failures fall through to the store rather than erroring.
func (c *Counter) Approximate(ctx context.Context) (int64, error) {
	if c.cache != nil {
		total, err := c.cache.Get(ctx, countCacheKey).Int64()
		if err == nil {
			return total, nil
		}
		if err != redis.Nil {
			c.logger.Debug("Count cache read failed", zap.Error(err))
		}
	}

	total, err := c.source.CountPosts(ctx)
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, countCacheKey, total, c.ttl).Err(); err != nil {
			c.logger.Debug("Count cache write failed", zap.Error(err))
		}
	}

	return total, nil
}
