package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, limit), srv
}

func TestRedisFixedWindow(t *testing.T) {
	ctx := context.Background()
	lim, _ := newRedisLimiter(t, 2)

	d, err := lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Admitted)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)

	d, err = lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)

	d, err = lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	assert.Equal(t, 0, d.Remaining)
	assert.Positive(t, d.ResetSeconds)
}

func TestRedisWindowExpires(t *testing.T) {
	ctx := context.Background()
	lim, srv := newRedisLimiter(t, 1)

	d, err := lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, d.Admitted)

	d, err = lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	require.False(t, d.Admitted)

	srv.FastForward(Window + time.Second)

	d, err = lim.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Admitted)
}

func TestRedisKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	lim, _ := newRedisLimiter(t, 1)

	d, err := lim.Allow(ctx, "login:alice@example.com")
	require.NoError(t, err)
	require.True(t, d.Admitted)

	d, err = lim.Allow(ctx, "login:bob@example.com")
	require.NoError(t, err)
	assert.True(t, d.Admitted)
}
