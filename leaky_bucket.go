package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skylinegw/edgegateway/kv"
	"github.com/skylinegw/edgegateway/kv/memkv"
)

// NewLeakyBucket creates a Leaky Bucket rate limiter.
// bucketSize is the bucket capacity. leakRatePerSecond is how fast the
// bucket drains.
//
// Leaky Bucket enforces a smoothed output rate: no burst above bucketSize
// can pass in a single instant. This is the semantic distinction from
// Token Bucket, which allows a burst up to bucketSize followed by a
// sustained refillRate.
func NewLeakyBucket(bucketSize, leakRatePerSecond int64, opts ...Option) (Limiter, error) {
	if bucketSize <= 0 || leakRatePerSecond <= 0 {
		return nil, fmt.Errorf("ratelimit: bucketSize and leakRatePerSecond must be positive")
	}
	o := applyOptions(opts)
	if o.Store == nil {
		o.Store = memkv.New()
	}
	return &leakyBucket{
		store:      o.Store,
		opts:       o,
		bucketSize: float64(bucketSize),
		limit:      bucketSize,
		leakRate:   float64(leakRatePerSecond),
	}, nil
}

type leakyBucketState struct {
	WaterLevel   float64 `json:"water_level"`
	LastUpdateMs int64   `json:"last_update_ms"`
}

type leakyBucket struct {
	mu         sync.Mutex
	store      kv.Store
	opts       *Options
	bucketSize float64
	limit      int64
	leakRate   float64
}

func (l *leakyBucket) Check(ctx context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	storageKey := l.opts.key("lb", key)
	now := nowMs(l.opts)

	state, err := l.load(ctx, storageKey, now)
	if err != nil {
		if l.opts.FailOpen {
			return &Result{Allowed: true, Remaining: l.limit - 1, Limit: l.limit}, nil
		}
		return &Result{Allowed: false, Remaining: 0, Limit: l.limit}, err
	}

	elapsedSeconds := float64(now-state.LastUpdateMs) / 1000
	leaked := elapsedSeconds * l.leakRate
	state.WaterLevel = math.Max(0, state.WaterLevel-leaked)
	state.LastUpdateMs = now

	if state.WaterLevel >= l.bucketSize {
		drainSeconds := int64(math.Ceil((state.WaterLevel - l.bucketSize + 1) / l.leakRate))
		_ = l.save(ctx, storageKey, state)
		return &Result{
			Allowed:           false,
			Remaining:         0,
			Limit:             l.limit,
			RetryAfterSeconds: retryAfter(drainSeconds),
		}, nil
	}

	state.WaterLevel++
	if err := l.save(ctx, storageKey, state); err != nil && !l.opts.FailOpen {
		return &Result{Allowed: false, Remaining: 0, Limit: l.limit}, err
	}

	remaining := int64(math.Max(0, math.Floor(l.bucketSize-state.WaterLevel)))
	return &Result{
		Allowed:   true,
		Remaining: remaining,
		Limit:     l.limit,
	}, nil
}

func (l *leakyBucket) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.opts.key("lb", key))
}

func (l *leakyBucket) load(ctx context.Context, storageKey string, now int64) (*leakyBucketState, error) {
	raw, err := l.store.Get(ctx, storageKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return &leakyBucketState{LastUpdateMs: now}, nil
		}
		return nil, err
	}
	var state leakyBucketState
	if err := json.Unmarshal(raw, &state); err != nil {
		return &leakyBucketState{LastUpdateMs: now}, nil
	}
	return &state, nil
}

func (l *leakyBucket) save(ctx context.Context, storageKey string, state *leakyBucketState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, storageKey, raw, time.Hour)
}
