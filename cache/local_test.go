package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ratelimit "github.com/skylinegw/edgegateway"
)

// mockLimiter records calls and returns a configurable result.
type mockLimiter struct {
	mu       sync.Mutex
	calls    int
	check    func(ctx context.Context, key string) (*ratelimit.Result, error)
	resetErr error
	resets   int
}

func (m *mockLimiter) Check(ctx context.Context, key string) (*ratelimit.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.check(ctx, key)
}

func (m *mockLimiter) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
	return m.resetErr
}

func (m *mockLimiter) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func retryAfterSeconds(s int64) *int64 { return &s }

func TestLocalCache_CacheHit(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 10, Limit: 10, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(500*time.Millisecond))
	defer lc.Close()
	ctx := context.Background()

	r, err := lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.True(t, r.Allowed)
	require.Equal(t, 1, mock.getCalls())

	for i := 0; i < 5; i++ {
		r, err = lc.Check(ctx, "k1")
		require.NoError(t, err)
		require.True(t, r.Allowed)
	}
	require.Equal(t, 1, mock.getCalls())
}

func TestLocalCache_RemainingDecreases(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 5, Limit: 5, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	r, err := lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int64(5), r.Remaining)

	r, err = lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int64(4), r.Remaining)

	r, err = lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int64(3), r.Remaining)
}

func TestLocalCache_ExhaustedLocalQuota_SyncsBackend(t *testing.T) {
	var callCount atomic.Int64
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			callCount.Add(1)
			return &ratelimit.Result{Allowed: true, Remaining: 2, Limit: 3, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(5*time.Second))
	defer lc.Close()
	ctx := context.Background()

	_, err := lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int64(1), callCount.Load())

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(1), callCount.Load())

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(1), callCount.Load())

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(2), callCount.Load())
}

func TestLocalCache_DeniedCached(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{
				Allowed: false, Remaining: 0, Limit: 10,
				RetryAfterSeconds: retryAfterSeconds(1),
				ResetAtMs:         time.Now().Add(time.Second).UnixMilli(),
			}, nil
		},
	}

	lc := New(mock, WithTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	r, err := lc.Check(ctx, "k1")
	require.NoError(t, err)
	require.False(t, r.Allowed)

	for i := 0; i < 5; i++ {
		r, err = lc.Check(ctx, "k1")
		require.NoError(t, err)
		require.False(t, r.Allowed)
	}
	require.Equal(t, 1, mock.getCalls())
}

func TestLocalCache_TTLExpiry(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 100, Limit: 100, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(50*time.Millisecond))
	defer lc.Close()
	ctx := context.Background()

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, 1, mock.getCalls())

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, 1, mock.getCalls())

	time.Sleep(60 * time.Millisecond)

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, 2, mock.getCalls())
}

func TestLocalCache_DenialTTL_UsesRetryAfter(t *testing.T) {
	var callCount atomic.Int64
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			callCount.Add(1)
			return &ratelimit.Result{
				Allowed: false, Remaining: 0, Limit: 10,
				RetryAfterSeconds: retryAfterSeconds(1),
				ResetAtMs:         time.Now().Add(30 * time.Millisecond).UnixMilli(),
			}, nil
		},
	}

	// TTL is 5s, but the denial's RetryAfterSeconds (1s) is the shorter
	// bound: the denial stays cached within that second and the cache
	// re-syncs with the backend once it has passed, well before the TTL.
	lc := New(mock, WithTTL(5*time.Second))
	defer lc.Close()
	ctx := context.Background()

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(1), callCount.Load())

	time.Sleep(40 * time.Millisecond)
	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(1), callCount.Load(), "retryAfterSeconds=1 should still be cached after 40ms")

	time.Sleep(time.Second)
	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, int64(2), callCount.Load(), "cache should re-sync once retryAfterSeconds=1 has passed")
}

func TestLocalCache_Reset(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 10, Limit: 10, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(5*time.Second))
	defer lc.Close()
	ctx := context.Background()

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, 1, mock.getCalls())

	require.NoError(t, lc.Reset(ctx, "k1"))

	_, _ = lc.Check(ctx, "k1")
	require.Equal(t, 2, mock.getCalls())
}

func TestLocalCache_MultipleKeys(t *testing.T) {
	mock := &mockLimiter{
		check: func(_ context.Context, _ string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 5, Limit: 5, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	_, _ = lc.Check(ctx, "user:1")
	_, _ = lc.Check(ctx, "user:2")
	_, _ = lc.Check(ctx, "user:3")
	require.Equal(t, 3, mock.getCalls())

	_, _ = lc.Check(ctx, "user:1")
	_, _ = lc.Check(ctx, "user:2")
	_, _ = lc.Check(ctx, "user:3")
	require.Equal(t, 3, mock.getCalls())
}

func TestLocalCache_MaxKeys(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 10, Limit: 10, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(5*time.Second), WithMaxKeys(3))
	defer lc.Close()
	ctx := context.Background()

	_, _ = lc.Check(ctx, "k1")
	time.Sleep(time.Millisecond)
	_, _ = lc.Check(ctx, "k2")
	time.Sleep(time.Millisecond)
	_, _ = lc.Check(ctx, "k3")

	require.Equal(t, 3, lc.Stats().Keys)

	_, _ = lc.Check(ctx, "k4")
	require.Equal(t, 3, lc.Stats().Keys)
}

func TestLocalCache_ConcurrentAccess(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 1000, Limit: 1000, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := lc.Check(ctx, "concurrent-key")
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, mock.getCalls(), 100)
}

func TestLocalCache_Stats(t *testing.T) {
	mock := &mockLimiter{
		check: func(context.Context, string) (*ratelimit.Result, error) {
			return &ratelimit.Result{Allowed: true, Remaining: 10, Limit: 10, ResetAtMs: time.Now().Add(time.Minute).UnixMilli()}, nil
		},
	}

	lc := New(mock, WithTTL(time.Second))
	defer lc.Close()
	ctx := context.Background()

	require.Equal(t, 0, lc.Stats().Keys)

	_, _ = lc.Check(ctx, "k1")
	_, _ = lc.Check(ctx, "k2")

	require.Equal(t, 2, lc.Stats().Keys)
}
