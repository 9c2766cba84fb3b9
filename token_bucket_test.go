package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skylinegw/edgegateway/clock"
	"github.com/skylinegw/edgegateway/kv/memkv"
)

func TestNewTokenBucket_InvalidParams(t *testing.T) {
	_, err := NewTokenBucket(0, 1)
	require.Error(t, err)
	_, err = NewTokenBucket(10, 0)
	require.Error(t, err)
}

// TestTokenBucket_Burst matches spec scenario 1: bucket=10, refill=1/s.
// Issue 15 requests instantly: first 10 allowed, next 5 denied with
// retryAfter in {1..5}. After waiting 5s, 5 more requests all succeed.
func TestTokenBucket_Burst(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFrozen(0)
	l, err := NewTokenBucket(10, 1, WithStore(memkv.New()), WithClock(fc))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := l.Check(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "k")
		require.NoError(t, err)
		require.False(t, res.Allowed, "request %d should be denied", i+11)
		require.NotNil(t, res.RetryAfterSeconds)
		require.GreaterOrEqual(t, *res.RetryAfterSeconds, int64(1))
		require.LessOrEqual(t, *res.RetryAfterSeconds, int64(5))
	}

	fc.Advance(5000)
	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "k")
		require.NoError(t, err)
		require.True(t, res.Allowed, "post-wait request %d should be allowed", i+1)
	}
}

func TestTokenBucket_CheckCost(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFrozen(0)
	l, err := NewTokenBucket(100, 10, WithStore(memkv.New()), WithClock(fc))
	require.NoError(t, err)

	cl, ok := l.(CostLimiter)
	require.True(t, ok)

	res, err := cl.CheckCost(ctx, "k", 5)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, int64(95), res.Remaining)
}

func TestTokenBucket_Reset(t *testing.T) {
	ctx := context.Background()
	l, err := NewTokenBucket(1, 1, WithStore(memkv.New()))
	require.NoError(t, err)

	_, _ = l.Check(ctx, "k")
	res, _ := l.Check(ctx, "k")
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	res, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
