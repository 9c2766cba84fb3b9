// Package cache provides an L1 in-process cache that wraps any Limiter.
//
// At scale, even Redis adds 0.5-2ms per request. LocalCache sits in front of
// a backend limiter and serves most checks locally (~50ns) by caching the
// last result per key and tracking local usage against it between syncs.
//
//	Request -> L1 (in-process, ~50ns) -> L2 (Redis, ~1ms) -> Decision
//
// Usage:
//
//	base, _ := ratelimit.NewSlidingWindow(60, 60, ratelimit.WithStore(redisdb.New(client)))
//	limiter := cache.New(base, cache.WithTTL(100*time.Millisecond))
//	// limiter implements ratelimit.Limiter
//	result, err := limiter.Check(ctx, "client:123")
package cache

import (
	"context"
	"sync"
	"time"

	ratelimit "github.com/skylinegw/edgegateway"
)

// Option configures the LocalCache.
type Option func(*cacheConfig)

type cacheConfig struct {
	ttl     time.Duration
	maxKeys int
}

// WithTTL sets the cache entry TTL. After this duration, the next request
// for that key syncs with the backend. Lower values track the backend more
// closely; higher values shed more backend load. Default: 100ms.
func WithTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithMaxKeys sets the maximum number of cached keys. When exceeded, the
// oldest entry is evicted. Default: 100000.
func WithMaxKeys(maxKeys int) Option {
	return func(c *cacheConfig) { c.maxKeys = maxKeys }
}

// LocalCache wraps a ratelimit.Limiter with an L1 in-process cache. It
// implements ratelimit.Limiter, so it is a drop-in replacement for the
// limiter it wraps, and can be composed into a composite.Member like any
// other limiter.
//
// On each Check call:
//  1. cache hit, quota remains -> serve locally
//  2. cache hit, quota exhausted -> sync with backend
//  3. cache miss or expired -> sync with backend
//
// Denied results are cached until their RetryAfterSeconds lapses (bounded
// by ttl), which prevents a thundering herd against the backend for a
// client that's already being rate limited.
type LocalCache struct {
	inner   ratelimit.Limiter
	config  cacheConfig
	mu      sync.Mutex
	entries map[string]*cacheEntry
	closeCh chan struct{}
	closed  bool
}

type cacheEntry struct {
	result    *ratelimit.Result
	localUsed int64
	fetchedAt time.Time
}

// New wraps inner with a local cache layer.
func New(inner ratelimit.Limiter, opts ...Option) *LocalCache {
	cfg := cacheConfig{
		ttl:     100 * time.Millisecond,
		maxKeys: 100000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	lc := &LocalCache{
		inner:   inner,
		config:  cfg,
		entries: make(map[string]*cacheEntry),
		closeCh: make(chan struct{}),
	}
	go lc.evictionLoop()
	return lc
}

// Check evaluates a single request for key, serving from the local cache
// when possible and syncing with the backend limiter otherwise.
func (lc *LocalCache) Check(ctx context.Context, key string) (*ratelimit.Result, error) {
	lc.mu.Lock()

	e, ok := lc.entries[key]
	if ok && !lc.isExpired(e) {
		if !e.result.Allowed {
			lc.mu.Unlock()
			return lc.cloneResult(e.result), nil
		}

		if e.result.Remaining-e.localUsed >= 1 {
			e.localUsed++
			r := &ratelimit.Result{
				Allowed:   true,
				Remaining: e.result.Remaining - e.localUsed,
				Limit:     e.result.Limit,
				ResetAtMs: e.result.ResetAtMs,
			}
			lc.mu.Unlock()
			return r, nil
		}
	}
	lc.mu.Unlock()

	result, err := lc.inner.Check(ctx, key)
	if err != nil {
		return result, err
	}

	lc.mu.Lock()
	lc.entries[key] = &cacheEntry{
		result:    result,
		localUsed: 0,
		fetchedAt: time.Now(),
	}
	lc.evictIfOverCapacity()
	lc.mu.Unlock()

	return lc.cloneResult(result), nil
}

// Reset clears key from the local cache and the backend limiter.
func (lc *LocalCache) Reset(ctx context.Context, key string) error {
	lc.mu.Lock()
	delete(lc.entries, key)
	lc.mu.Unlock()
	return lc.inner.Reset(ctx, key)
}

// Close stops the background eviction goroutine.
func (lc *LocalCache) Close() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.closed {
		lc.closed = true
		close(lc.closeCh)
	}
}

// Stats returns current cache statistics.
func (lc *LocalCache) Stats() Stats {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return Stats{Keys: len(lc.entries)}
}

// Stats holds cache statistics.
type Stats struct {
	Keys int
}

func (lc *LocalCache) isExpired(e *cacheEntry) bool {
	ttl := lc.config.ttl

	if !e.result.Allowed && e.result.RetryAfterSeconds != nil {
		retryAfter := time.Duration(*e.result.RetryAfterSeconds) * time.Second
		if retryAfter < ttl {
			ttl = retryAfter
		}
	}

	return time.Since(e.fetchedAt) >= ttl
}

func (lc *LocalCache) cloneResult(r *ratelimit.Result) *ratelimit.Result {
	clone := *r
	return &clone
}

func (lc *LocalCache) evictIfOverCapacity() {
	if len(lc.entries) <= lc.config.maxKeys {
		return
	}
	var oldestKey string
	var oldestTime time.Time
	for k, e := range lc.entries {
		if oldestKey == "" || e.fetchedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.fetchedAt
		}
	}
	if oldestKey != "" {
		delete(lc.entries, oldestKey)
	}
}

func (lc *LocalCache) evictionLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lc.evictExpired()
		case <-lc.closeCh:
			return
		}
	}
}

func (lc *LocalCache) evictExpired() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	for k, e := range lc.entries {
		if lc.isExpired(e) {
			delete(lc.entries, k)
		}
	}
}
