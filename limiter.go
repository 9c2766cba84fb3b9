// Package ratelimit implements the gateway's rate limiter family: four
// interchangeable algorithms — Sliding Window, Token Bucket, Leaky Bucket,
// and Fixed Window — behind one Limiter contract.
//
// All four persist their state through kv.Store, so the same algorithm
// works in-memory (tests, single-process deployments) or against a shared
// Redis-backed store (kv/redisdb) for multi-instance deployments, without
// changing caller code.
package ratelimit

import (
	"context"
	"time"

	"github.com/skylinegw/edgegateway/clock"
	"github.com/skylinegw/edgegateway/kv"
)

// Strategy names one of the four rate limiting algorithms.
type Strategy string

const (
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategyLeakyBucket   Strategy = "leaky_bucket"
	StrategyFixedWindow   Strategy = "fixed_window"
)

// Config describes one rate limiting policy. Immutable after construction.
type Config struct {
	Strategy       Strategy
	Limit          int64   // positive; max requests per window, or bucket capacity
	WindowSeconds  int64   // positive; window size for window-based strategies
	Burst          int64   // optional; burst size override for bucket strategies
	CostPerRequest float64 // optional; not read by FromConfig or by any limiter
}

// Limiter is the common contract implemented by all four algorithms.
type Limiter interface {
	// Check evaluates a single request identified by key.
	Check(ctx context.Context, key string) (*Result, error)

	// Reset clears all stored state for key.
	Reset(ctx context.Context, key string) error
}

// CostLimiter is implemented by algorithms that accept a fractional request
// cost (currently only Token Bucket, used by the adaptive controller to
// re-price requests under load).
type CostLimiter interface {
	Limiter
	CheckCost(ctx context.Context, key string, cost float64) (*Result, error)
}

// Result is returned by every limiter check.
//
// Invariant: Allowed implies RetryAfterSeconds is nil.
type Result struct {
	Allowed           bool
	Remaining         int64
	Limit             int64
	ResetAtMs         int64
	RetryAfterSeconds *int64
}

func retryAfter(seconds int64) *int64 {
	if seconds < 1 {
		seconds = 1
	}
	return &seconds
}

// Options configures behavior shared across all algorithm implementations.
type Options struct {
	// Store is the KV backend for persisted limiter state. Required for
	// any non-trivial deployment; algorithms fall back to a private
	// in-memory map when Store is nil, matching the teacher library's
	// "omit for in-memory" construction style.
	Store kv.Store

	// Clock supplies the current time. Defaults to clock.Default.
	Clock clock.Clock

	// KeyPrefix is prepended to all storage keys. Default: "rl".
	KeyPrefix string

	// FailOpen controls behavior when the KV store is unreachable.
	// Default true: a failed state load yields an allowed Result and a nil
	// error, so the KV error is neither returned to the caller nor logged.
	// With FailOpen false the request is denied and the error is returned.
	FailOpen bool
}

// Option is a functional option for configuring a Limiter.
type Option func(*Options)

// WithStore configures the limiter to persist state through the given
// kv.Store.
func WithStore(s kv.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithClock overrides the Clock used for all time math. Intended for tests.
func WithClock(c clock.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithKeyPrefix sets the prefix prepended to all storage keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

// WithFailOpen controls fail-open/fail-closed behavior on KV errors.
func WithFailOpen(failOpen bool) Option {
	return func(o *Options) { o.FailOpen = failOpen }
}

func defaultOptions() *Options {
	return &Options{
		KeyPrefix: "rl",
		FailOpen:  true,
		Clock:     clock.Default,
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Clock == nil {
		o.Clock = clock.Default
	}
	return o
}

// key builds a storage key: "prefix:algo:client".
func (o *Options) key(algo, client string) string {
	return o.KeyPrefix + ":" + algo + ":" + client
}

func nowMs(o *Options) int64 {
	return o.Clock.NowMs()
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
