package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/skylinegw/edgegateway/kv"
	"github.com/skylinegw/edgegateway/kv/memkv"
)

// NewFixedWindow creates a Fixed Window rate limiter.
// maxRequests is the maximum requests allowed per window.
// windowSeconds is the window duration in seconds.
//
// Documented weakness: up to 2x maxRequests may pass in a windowSeconds
// interval straddling a window boundary, since counts reset abruptly at
// each boundary rather than sliding. Prefer Sliding Window when that
// matters; Fixed Window trades the precision for a single integer counter
// per window instead of a timestamp list.
func NewFixedWindow(maxRequests, windowSeconds int64, opts ...Option) (Limiter, error) {
	if maxRequests <= 0 || windowSeconds <= 0 {
		return nil, fmt.Errorf("ratelimit: maxRequests and windowSeconds must be positive")
	}
	o := applyOptions(opts)
	if o.Store == nil {
		o.Store = memkv.New()
	}
	return &fixedWindow{
		store:       o.Store,
		opts:        o,
		maxRequests: maxRequests,
		windowMs:    windowSeconds * 1000,
	}, nil
}

type fixedWindowState struct {
	Count int64 `json:"count"`
}

type fixedWindow struct {
	mu          sync.Mutex
	store       kv.Store
	opts        *Options
	maxRequests int64
	windowMs    int64
}

func (f *fixedWindow) Check(ctx context.Context, key string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := nowMs(f.opts)
	windowStart := (now / f.windowMs) * f.windowMs
	resetAt := windowStart + f.windowMs
	storageKey := f.storageKey(key, windowStart)

	state, err := f.load(ctx, storageKey)
	if err != nil {
		if f.opts.FailOpen {
			return &Result{Allowed: true, Remaining: f.maxRequests - 1, Limit: f.maxRequests, ResetAtMs: resetAt}, nil
		}
		return &Result{Allowed: false, Remaining: 0, Limit: f.maxRequests, ResetAtMs: resetAt}, err
	}

	if state.Count >= f.maxRequests {
		retrySeconds := (resetAt - now + 999) / 1000
		return &Result{
			Allowed:           false,
			Remaining:         0,
			Limit:             f.maxRequests,
			ResetAtMs:         resetAt,
			RetryAfterSeconds: retryAfter(retrySeconds),
		}, nil
	}

	state.Count++
	ttl := time.Duration(f.windowMs)*time.Millisecond + time.Second
	if err := f.saveTTL(ctx, storageKey, state, ttl); err != nil && !f.opts.FailOpen {
		return &Result{Allowed: false, Remaining: 0, Limit: f.maxRequests, ResetAtMs: resetAt}, err
	}

	return &Result{
		Allowed:   true,
		Remaining: f.maxRequests - state.Count,
		Limit:     f.maxRequests,
		ResetAtMs: resetAt,
	}, nil
}

func (f *fixedWindow) Reset(ctx context.Context, key string) error {
	now := nowMs(f.opts)
	windowStart := (now / f.windowMs) * f.windowMs
	return f.store.Delete(ctx, f.storageKey(key, windowStart))
}

// storageKey builds "prefix:client:windowStartMs" — unlike the other three
// algorithms, Fixed Window carries no algorithm infix in its key, matching
// the documented wire format.
func (f *fixedWindow) storageKey(key string, windowStart int64) string {
	return f.opts.KeyPrefix + ":" + key + ":" + fmt.Sprintf("%d", windowStart)
}

func (f *fixedWindow) load(ctx context.Context, storageKey string) (*fixedWindowState, error) {
	raw, err := f.store.Get(ctx, storageKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return &fixedWindowState{}, nil
		}
		return nil, err
	}
	var state fixedWindowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return &fixedWindowState{}, nil
	}
	return &state, nil
}

func (f *fixedWindow) saveTTL(ctx context.Context, storageKey string, state *fixedWindowState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return f.store.Put(ctx, storageKey, raw, ttl)
}
