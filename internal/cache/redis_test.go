package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "u1", "csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "u1", "csv", []byte("rank,name\n1,Toko\n")))

	got, ok, err := c.Get(ctx, "u1", "csv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rank,name\n1,Toko\n", string(got))
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", "xlsx", []byte{0x50, 0x4b}))
	assert.Equal(t, time.Minute, mr.TTL(Key("u1", "xlsx")))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "u1", "xlsx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Invalidate(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", "csv", []byte("a")))
	require.NoError(t, c.Set(ctx, "u1", "xlsx", []byte("b")))
	require.NoError(t, c.Set(ctx, "u2", "csv", []byte("c")))

	require.NoError(t, c.Invalidate(ctx, "u1"))

	assert.False(t, mr.Exists(Key("u1", "csv")))
	assert.False(t, mr.Exists(Key("u1", "xlsx")))
	assert.True(t, mr.Exists(Key("u2", "csv")))
}

func TestRedisCache_InvalidateMissing(t *testing.T) {
	c, _ := setupTestCache(t)
	assert.NoError(t, c.Invalidate(context.Background(), "nothing"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := setupTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "u1", "csv")
	assert.Error(t, err)
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", 0)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck
	assert.Equal(t, defaultTTL, c.ttl)
	assert.NoError(t, c.Ping(context.Background()))

	_, err = NewRedis(context.Background(), "not a url", 0)
	assert.Error(t, err)
}
