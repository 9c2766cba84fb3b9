// Package adaptive wraps a Token Bucket limiter with a KV-persisted load
// factor that rescales the cost of each request under load.
package adaptive

import (
	"context"
	"fmt"
	"strconv"

	"github.com/skylinegw/edgegateway"
	"github.com/skylinegw/edgegateway/kv"
)

const (
	minLoadFactor = 0.2
	maxLoadFactor = 2.0

	defaultLoadFactorKey = "rl:load-factor"
)

// Controller wraps a ratelimit.CostLimiter (in practice a Token Bucket) and
// re-prices each request by a load factor held in KV, so every gateway
// instance shares the same factor without a broadcast mechanism.
type Controller struct {
	limiter       ratelimit.CostLimiter
	store         kv.Store
	loadFactorKey string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLoadFactorKey overrides the KV key the load factor is stored under.
func WithLoadFactorKey(key string) Option {
	return func(c *Controller) { c.loadFactorKey = key }
}

// NewController creates a Controller delegating to limiter.
func NewController(limiter ratelimit.CostLimiter, store kv.Store, opts ...Option) *Controller {
	c := &Controller{
		limiter:       limiter,
		store:         store,
		loadFactorKey: defaultLoadFactorKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check loads the current load factor, derives cost = 1/loadFactor, and
// delegates to the wrapped limiter's CheckCost.
func (c *Controller) Check(ctx context.Context, key string) (*ratelimit.Result, error) {
	factor, err := c.loadFactor(ctx)
	if err != nil {
		factor = 1.0
	}
	cost := 1.0 / factor
	return c.limiter.CheckCost(ctx, key, cost)
}

// Reset clears the wrapped limiter's state for key. It does not reset the
// load factor, which is shared across all clients.
func (c *Controller) Reset(ctx context.Context, key string) error {
	return c.limiter.Reset(ctx, key)
}

// UpdateLoadFactor recomputes the load factor from currentLoad/maxLoad and
// persists it to KV. Lower loadFactor makes each request cost more tokens,
// tightening the effective rate.
func (c *Controller) UpdateLoadFactor(ctx context.Context, currentLoad, maxLoad float64) error {
	factor := loadFactorFor(currentLoad, maxLoad)
	return c.store.Put(ctx, c.loadFactorKey, []byte(strconv.FormatFloat(factor, 'f', -1, 64)), 0)
}

func loadFactorFor(currentLoad, maxLoad float64) float64 {
	if maxLoad <= 0 {
		return maxLoadFactor
	}
	loadPercent := currentLoad / maxLoad

	var factor float64
	switch {
	case loadPercent > 0.9:
		factor = 0.2
	case loadPercent > 0.7:
		factor = 0.5
	case loadPercent > 0.5:
		factor = 0.75
	case loadPercent >= 0.3:
		factor = 1.0
	default:
		factor = 2.0
	}
	return clamp(factor, minLoadFactor, maxLoadFactor)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Controller) loadFactor(ctx context.Context) (float64, error) {
	raw, err := c.store.Get(ctx, c.loadFactorKey)
	if err != nil {
		if kv.IsNotFound(err) {
			return 1.0, nil
		}
		return 0, fmt.Errorf("adaptive: load factor: %w", err)
	}
	factor, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 1.0, nil
	}
	return clamp(factor, minLoadFactor, maxLoadFactor), nil
}
