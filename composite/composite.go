// Package composite stacks named, prioritized rate limiters behind a single
// Limiter contract: the first one to deny short-circuits the check.
package composite

import (
	"context"
	"sort"

	"github.com/skylinegw/edgegateway"
)

// Member is one named, prioritized limiter in a Composite stack.
type Member struct {
	Name     string
	Limiter  ratelimit.Limiter
	Priority int
}

// Result extends ratelimit.Result with the name of the limiter that
// produced it.
type Result struct {
	*ratelimit.Result
	LimiterName string
}

// Composite evaluates its members in descending priority order; the first
// denial wins. If every member allows, the result of the lowest-priority
// member is returned, even though every higher-priority member has already
// incremented its own counter during probing — an accepted over-accounting
// trade-off.
type Composite struct {
	members []Member
}

// New builds a Composite from members, sorted by descending priority.
func New(members ...Member) *Composite {
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Composite{members: sorted}
}

// Check probes each member in priority order. The first denial short
// circuits with its name attached; if all allow, the last (lowest-priority)
// member's result is returned.
func (c *Composite) Check(ctx context.Context, key string) (*Result, error) {
	var last *Result
	for _, m := range c.members {
		res, err := m.Limiter.Check(ctx, key)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return &Result{Result: res, LimiterName: m.Name}, nil
		}
		last = &Result{Result: res, LimiterName: m.Name}
	}
	return last, nil
}

// Reset clears every member's state for key.
func (c *Composite) Reset(ctx context.Context, key string) error {
	for _, m := range c.members {
		if err := m.Limiter.Reset(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
