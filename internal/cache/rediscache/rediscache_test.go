package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr(), Prefix: "spotbox:"})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.True(t, mr.Exists("spotbox:k"))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	require.NoError(t, c.Delete(ctx))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_TTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()})

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(Options{Addr: mr.Addr()})
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get")
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr()})
	defer rl.Close()

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr()})

	ctx := context.Background()
	ok, _, err := rl.Allow(ctx, "spot:feed", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, _ = rl.Allow(ctx, "spot:feed", 1, time.Minute)
	require.False(t, ok)

	mr.FastForward(61 * time.Second)

	ok, n, err := rl.Allow(ctx, "spot:feed", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestRateLimiter_CounterWithoutTTLGetsOne(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(Options{Addr: mr.Addr(), Prefix: "sb:"})
	defer rl.Close()

	// left behind by a writer that died between INCR and EXPIRE
	require.NoError(t, mr.Set("sb:spot:feed", "50"))
	require.Zero(t, mr.TTL("sb:spot:feed"))

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "spot:feed", 5, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(51), n)
	require.Equal(t, time.Minute, mr.TTL("sb:spot:feed"))

	ok, _, _ = rl.Allow(ctx, "spot:feed", 5, time.Minute)
	require.False(t, ok)
	require.Equal(t, time.Minute, mr.TTL("sb:spot:feed"))

	mr.FastForward(61 * time.Second)

	ok, n, err = rl.Allow(ctx, "spot:feed", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
