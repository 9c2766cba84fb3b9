package ratelimit

import (
	"fmt"
	"time"

	"github.com/skylinegw/edgegateway/kv"
)

type algorithm int

const (
	algoNone algorithm = iota
	algoFixedWindow
	algoSlidingWindow
	algoTokenBucket
	algoLeakyBucket
)

// Builder provides a fluent API for constructing a Limiter from a
// RateLimitConfig-shaped set of calls.
//
//	limiter, err := ratelimit.NewBuilder().
//	    FixedWindow(100, 60*time.Second).
//	    Store(store).
//	    Build()
type Builder struct {
	algo algorithm
	opts []Option

	// window-based (fixed, sliding)
	maxRequests   int64
	windowSeconds int64

	// token bucket
	tbCapacity   int64
	tbRefillRate int64

	// leaky bucket
	lbCapacity int64
	lbLeakRate int64
}

// NewBuilder returns a new Builder with default options.
func NewBuilder() *Builder {
	return &Builder{}
}

// FromConfig seeds the builder from a Config. Burst, when set, overrides
// Limit as the bucket capacity for TokenBucket/LeakyBucket strategies.
func FromConfig(cfg Config) *Builder {
	b := NewBuilder()
	capacity := cfg.Limit
	if cfg.Burst > 0 {
		capacity = cfg.Burst
	}
	switch cfg.Strategy {
	case StrategyFixedWindow:
		b.FixedWindow(cfg.Limit, time.Duration(cfg.WindowSeconds)*time.Second)
	case StrategySlidingWindow:
		b.SlidingWindow(cfg.Limit, time.Duration(cfg.WindowSeconds)*time.Second)
	case StrategyTokenBucket:
		refillRate := cfg.Limit
		b.TokenBucket(capacity, refillRate)
	case StrategyLeakyBucket:
		leakRate := cfg.Limit
		b.LeakyBucket(capacity, leakRate)
	}
	return b
}

// ─── Algorithm selectors ─────────────────────────────────────────────────────

// FixedWindow configures a Fixed Window algorithm.
// maxRequests is the limit per window. window is the window duration.
func (b *Builder) FixedWindow(maxRequests int64, window time.Duration) *Builder {
	b.algo = algoFixedWindow
	b.maxRequests = maxRequests
	b.windowSeconds = int64(window.Seconds())
	return b
}

// SlidingWindow configures a Sliding Window algorithm.
// maxRequests is the limit per window. window is the window duration.
// Stores every request timestamp; prevents the boundary burst that Fixed
// Window allows.
func (b *Builder) SlidingWindow(maxRequests int64, window time.Duration) *Builder {
	b.algo = algoSlidingWindow
	b.maxRequests = maxRequests
	b.windowSeconds = int64(window.Seconds())
	return b
}

// TokenBucket configures a Token Bucket algorithm.
// capacity is the burst size. refillRatePerSecond is tokens added per second.
func (b *Builder) TokenBucket(capacity, refillRatePerSecond int64) *Builder {
	b.algo = algoTokenBucket
	b.tbCapacity = capacity
	b.tbRefillRate = refillRatePerSecond
	return b
}

// LeakyBucket configures a Leaky Bucket algorithm.
// capacity is the bucket size. leakRatePerSecond is how fast it drains.
func (b *Builder) LeakyBucket(capacity, leakRatePerSecond int64) *Builder {
	b.algo = algoLeakyBucket
	b.lbCapacity = capacity
	b.lbLeakRate = leakRatePerSecond
	return b
}

// ─── Option setters ──────────────────────────────────────────────────────────

// Store sets the kv.Store backend.
func (b *Builder) Store(s kv.Store) *Builder {
	b.opts = append(b.opts, WithStore(s))
	return b
}

// KeyPrefix sets the prefix prepended to all storage keys.
func (b *Builder) KeyPrefix(prefix string) *Builder {
	b.opts = append(b.opts, WithKeyPrefix(prefix))
	return b
}

// FailOpen sets the fail-open/fail-closed behavior when the backend is unreachable.
func (b *Builder) FailOpen(v bool) *Builder {
	b.opts = append(b.opts, WithFailOpen(v))
	return b
}

// ─── Build ───────────────────────────────────────────────────────────────────

// Build validates the configuration and returns the configured Limiter.
func (b *Builder) Build() (Limiter, error) {
	switch b.algo {
	case algoFixedWindow:
		return NewFixedWindow(b.maxRequests, b.windowSeconds, b.opts...)
	case algoSlidingWindow:
		return NewSlidingWindow(b.maxRequests, b.windowSeconds, b.opts...)
	case algoTokenBucket:
		return NewTokenBucket(b.tbCapacity, b.tbRefillRate, b.opts...)
	case algoLeakyBucket:
		return NewLeakyBucket(b.lbCapacity, b.lbLeakRate, b.opts...)
	default:
		return nil, fmt.Errorf("ratelimit: no algorithm selected; call FixedWindow, SlidingWindow, TokenBucket, or LeakyBucket before Build")
	}
}
