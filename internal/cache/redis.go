// Package cache stores rendered result exports in Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "analyzer:export:"
	defaultTTL = 30 * time.Minute
)

// Formats are the export formats kept per upload.
var Formats = []string{"csv", "xlsx"}

// RedisCache caches export bytes keyed by upload and format.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "cache: ping redis")
	}

	zap.L().Info("cache: redis connected", zap.String("addr", opts.Addr))
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client. A non-positive ttl uses the default.
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Key returns the cache key for an upload export.
func Key(uploadID, format string) string {
	return keyPrefix + uploadID + ":" + format
}

// Get returns the cached export and whether it was present.
func (c *RedisCache) Get(ctx context.Context, uploadID, format string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, Key(uploadID, format)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get export")
	}
	return b, true, nil
}

// Set stores an export for the configured ttl.
func (c *RedisCache) Set(ctx context.Context, uploadID, format string, data []byte) error {
	return eris.Wrap(c.client.Set(ctx, Key(uploadID, format), data, c.ttl).Err(), "cache: set export")
}

// Invalidate drops every cached export of an upload.
func (c *RedisCache) Invalidate(ctx context.Context, uploadID string) error {
	keys := make([]string, len(Formats))
	for i, f := range Formats {
		keys[i] = Key(uploadID, f)
	}
	return eris.Wrap(c.client.Del(ctx, keys...).Err(), "cache: invalidate")
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return eris.Wrap(c.client.Ping(ctx).Err(), "cache: ping")
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
