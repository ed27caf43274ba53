/**
 * @description
 * Redis-backed price cache. Fail-open: any transport error reads as a cache
 * miss and write failures are reported to the caller but never treated as
 * fatal by the resolver.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceTTL bounds how long a resolved price may be served from cache.
const PriceTTL = 300 * time.Second

type RedisCache struct {
	Redis *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{Redis: rdb}
}

// GetPrice returns the cached price for key. The second return is false on a
// miss, on expiry, and on any transport failure.
func (c *RedisCache) GetPrice(ctx context.Context, key string) (float64, bool) {
	value, err := c.Redis.Get(ctx, key).Float64()
	if err != nil {
		return 0, false
	}
	return value, true
}

// SetPrice caches price under key for PriceTTL.
func (c *RedisCache) SetPrice(ctx context.Context, key string, price float64) error {
	return c.Redis.Set(ctx, key, price, PriceTTL).Err()
}
