package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (RedisFixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return RedisFixedWindow{Client: client, Prefix: "rl:"}, mr
}

func TestRedisFixedWindowMatchesInMemorySemantics(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	res, err := l.Allow(ctx, "promo:1.2.3.4", 10, time.Minute)
	require.NoError(t, err)
	require.Equal(t, Result{Allowed: true, Remaining: 9, ResetInSeconds: 60}, res)

	for i := 2; i <= 10; i++ {
		res, err = l.Allow(ctx, "promo:1.2.3.4", 10, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	mr.FastForward(20 * time.Second)
	res, err = l.Allow(ctx, "promo:1.2.3.4", 10, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.Equal(t, 40, res.ResetInSeconds)

	mr.FastForward(41 * time.Second)
	res, err = l.Allow(ctx, "promo:1.2.3.4", 10, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 9, res.Remaining)
}

func TestRedisFixedWindowRearmsMissingTTL(t *testing.T) {
	l, mr := newRedisLimiter(t)
	require.NoError(t, mr.Set("rl:k", "3"))

	res, err := l.Allow(context.Background(), "k", 5, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, res.Remaining)
	require.Equal(t, 30, res.ResetInSeconds)
	require.Equal(t, 30*time.Second, mr.TTL("rl:k"))
}

func TestRedisFixedWindowReportsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	_, err := RedisFixedWindow{Client: client}.Allow(context.Background(), "k", 1, time.Second)
	require.Error(t, err)
}
