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

type record struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	c := NewRedisCacheWithClient(client, "test")
	t.Cleanup(func() { _ = c.Close() })
	return s, c
}

func backends(t *testing.T) map[string]Service {
	_, rc := setupTestRedis(t)
	mc := NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return map[string]Service{"redis": rc, "memory": mc}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "job:1", record{ID: "1", Progress: 40}, time.Minute))

			var got record
			require.NoError(t, c.Get(ctx, "job:1", &got))
			assert.Equal(t, record{ID: "1", Progress: 40}, got)

			var missing record
			assert.ErrorIs(t, c.Get(ctx, "job:2", &missing), ErrCacheMiss)

			require.NoError(t, c.Delete(ctx, "job:1"))
			ok, err := c.Exists(ctx, "job:1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTryLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := c.TryLock(ctx, "lock:AAPL", "job-a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.TryLock(ctx, "lock:AAPL", "job-b", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			released, err := c.Unlock(ctx, "lock:AAPL", "job-a")
			require.NoError(t, err)
			assert.True(t, released)
			ok, err = c.TryLock(ctx, "lock:AAPL", "job-b", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestUnlockLeavesAnotherOwnersLock(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := c.TryLock(ctx, "lock:MSFT", "job-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			released, err := c.Unlock(ctx, "lock:MSFT", "job-a")
			require.NoError(t, err)
			assert.False(t, released)

			ok, err = c.TryLock(ctx, "lock:MSFT", "job-c", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "lock must survive a release by a non-owner")

			released, err = c.Unlock(ctx, "lock:NONE", "job-a")
			require.NoError(t, err)
			assert.False(t, released)
		})
	}
}

func TestRedisKeysArePrefixedAndExpire(t *testing.T) {
	s, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "job:9", "raw", time.Minute))
	assert.True(t, s.Exists("test:job:9"))

	s.FastForward(2 * time.Minute)
	var got string
	assert.ErrorIs(t, c.Get(ctx, "job:9", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Now()
	mc.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	var got string
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := record{ID: "a", Progress: 1}
	require.NoError(t, mc.Set(ctx, "k", in, 0))
	in.Progress = 99

	var got record
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, 1, got.Progress)
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()
	now := time.Now()
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "a")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "c")
	assert.True(t, ok)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "job:abc", GenerateKey("job", "abc"))
	assert.Equal(t, "lock:train:AAPL", GenerateKeyWithParams("lock", "train", "AAPL"))
}
