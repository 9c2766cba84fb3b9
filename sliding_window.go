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

// NewSlidingWindow creates a Sliding Window rate limiter.
// maxRequests is the maximum requests allowed per window.
// windowSeconds is the window duration in seconds.
//
// The limiter stores the ordered sequence of request-arrival timestamps
// within the window; entries at or before now-window are dropped on every
// check. This is more expensive per-key than Fixed Window but avoids the
// boundary burst where up to 2x the limit can pass a fixed-window edge.
func NewSlidingWindow(maxRequests, windowSeconds int64, opts ...Option) (Limiter, error) {
	if maxRequests <= 0 || windowSeconds <= 0 {
		return nil, fmt.Errorf("ratelimit: maxRequests and windowSeconds must be positive")
	}
	o := applyOptions(opts)
	if o.Store == nil {
		o.Store = memkv.New()
	}
	return &slidingWindow{
		store:       o.Store,
		opts:        o,
		maxRequests: maxRequests,
		windowMs:    windowSeconds * 1000,
	}, nil
}

type slidingWindowState struct {
	Timestamps []int64 `json:"timestamps"`
}

type slidingWindow struct {
	mu          sync.Mutex
	store       kv.Store
	opts        *Options
	maxRequests int64
	windowMs    int64
}

func (s *slidingWindow) Check(ctx context.Context, key string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	storageKey := s.opts.key("sw", key)
	now := nowMs(s.opts)

	state, err := s.load(ctx, storageKey)
	if err != nil {
		if s.opts.FailOpen {
			return &Result{Allowed: true, Remaining: s.maxRequests - 1, Limit: s.maxRequests}, nil
		}
		return &Result{Allowed: false, Remaining: 0, Limit: s.maxRequests}, err
	}

	cutoff := now - s.windowMs
	surviving := state.Timestamps[:0]
	for _, t := range state.Timestamps {
		if t > cutoff {
			surviving = append(surviving, t)
		}
	}
	state.Timestamps = surviving

	if int64(len(state.Timestamps)) >= s.maxRequests {
		oldest := state.Timestamps[0]
		resetAt := oldest + s.windowMs
		retrySeconds := (resetAt - now + 999) / 1000
		if retrySeconds < 1 {
			retrySeconds = 1
		}
		// persist the eviction even on denial so the next check doesn't
		// re-scan entries that already expired.
		_ = s.save(ctx, storageKey, state)
		return &Result{
			Allowed:           false,
			Remaining:         0,
			Limit:             s.maxRequests,
			ResetAtMs:         resetAt,
			RetryAfterSeconds: retryAfter(retrySeconds),
		}, nil
	}

	state.Timestamps = append(state.Timestamps, now)
	if err := s.save(ctx, storageKey, state); err != nil && !s.opts.FailOpen {
		return &Result{Allowed: false, Remaining: 0, Limit: s.maxRequests}, err
	}

	return &Result{
		Allowed:   true,
		Remaining: s.maxRequests - int64(len(state.Timestamps)),
		Limit:     s.maxRequests,
		ResetAtMs: now + s.windowMs,
	}, nil
}

func (s *slidingWindow) Reset(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.opts.key("sw", key))
}

func (s *slidingWindow) load(ctx context.Context, storageKey string) (*slidingWindowState, error) {
	raw, err := s.store.Get(ctx, storageKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return &slidingWindowState{}, nil
		}
		return nil, err
	}
	var state slidingWindowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return &slidingWindowState{}, nil
	}
	return &state, nil
}

func (s *slidingWindow) save(ctx context.Context, storageKey string, state *slidingWindowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	ttl := time.Duration(s.windowMs/1000+60) * time.Second
	return s.store.Put(ctx, storageKey, raw, ttl)
}
