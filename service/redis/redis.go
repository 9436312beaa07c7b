package redis

import (
	"context"
	"errors"
	"time"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/go-redis/redis/v8"
)

func init() {
	env.RegisterValidation("REDIS_URL", "omitempty,uri")
}

// Cache is an advisory byte cache. It never participates in correctness;
// every read path must tolerate a miss.
type Cache struct {
	client *redis.Client
}

// NewCache connects to the redis instance named by REDIS_URL. It returns nil
// when the variable is unset, which disables caching entirely.
func NewCache(ctx context.Context) *Cache {
	url := env.GetString(ctx, "REDIS_URL")
	if url == "" {
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.For(ctx).Errorf("invalid REDIS_URL, caching disabled: %s", err)
		return nil
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.For(ctx).Warnf("redis unreachable, caching disabled: %s", err)
		return nil
	}

	return &Cache{client: client}
}

// Get returns the cached value and whether it was present. A nil cache
// always misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.For(ctx).Warnf("cache get %s: %s", key, err)
		}
		return nil, false
	}
	return value, true
}

// Set stores a value with a TTL; failures are logged and ignored
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.For(ctx).Warnf("cache set %s: %s", key, err)
	}
}

// Delete drops a key; failures are logged and ignored
func (c *Cache) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.For(ctx).Warnf("cache delete %s: %s", key, err)
	}
}

// Close releases the underlying connection pool
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
