package metrics

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HealthCheckResult is the collector's current view of one upstream.
type HealthCheckResult struct {
	Upstream            string
	Healthy             bool
	LatencyMs           int64
	LastCheckMs         int64
	ConsecutiveFailures int64
	Error               string
}

// probeLimiter throttles how often a single upstream may be re-probed,
// so a storm of concurrent requests to an unhealthy upstream doesn't turn
// into a storm of health-check calls against it.
type probeLimiter struct {
	limiter *rate.Limiter
}

const (
	defaultProbeInterval = 5 * time.Second
	defaultProbeBurst    = 1
)

func (c *Collector) probeLimiterFor(upstream string) *probeLimiter {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	pl, ok := c.probes[upstream]
	if !ok {
		pl = &probeLimiter{limiter: rate.NewLimiter(rate.Every(defaultProbeInterval), defaultProbeBurst)}
		c.probes[upstream] = pl
	}
	return pl
}

// CheckUpstream performs an HTTP GET against upstream+healthPath with the
// given timeout, iff the per-upstream probe rate limiter admits it, and
// updates the collector's health map. A throttled call returns the last
// known HealthCheckResult without making a request.
func (c *Collector) CheckUpstream(ctx context.Context, upstream, healthPath string, timeoutMs int64) (*HealthCheckResult, error) {
	pl := c.probeLimiterFor(upstream)
	if !pl.limiter.Allow() {
		c.healthMu.RLock()
		last, ok := c.health[upstream]
		c.healthMu.RUnlock()
		if ok {
			return &last, nil
		}
		return &HealthCheckResult{Upstream: upstream, Healthy: true}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	start := c.clock.NowMs()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, upstream+healthPath, nil)
	if err != nil {
		return c.recordHealth(upstream, false, 0, err.Error()), nil
	}

	resp, err := http.DefaultClient.Do(req)
	latency := c.clock.NowMs() - start
	if err != nil {
		return c.recordHealth(upstream, false, latency, err.Error()), nil
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !healthy {
		errMsg = resp.Status
	}
	return c.recordHealth(upstream, healthy, latency, errMsg), nil
}

func (c *Collector) recordHealth(upstream string, healthy bool, latencyMs int64, errMsg string) *HealthCheckResult {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	prev := c.health[upstream]
	result := HealthCheckResult{
		Upstream:    upstream,
		Healthy:     healthy,
		LatencyMs:   latencyMs,
		LastCheckMs: c.clock.NowMs(),
		Error:       errMsg,
	}
	if healthy {
		result.ConsecutiveFailures = 0
	} else {
		result.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}
	c.health[upstream] = result
	return &result
}

// isHealthy reports the known health of upstream, defaulting to true when
// unknown.
func (c *Collector) isHealthy(upstream string) bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	result, ok := c.health[upstream]
	if !ok {
		return true
	}
	return result.Healthy
}

// healthSnapshot returns a copy of every upstream CheckUpstream has ever
// probed, independent of recent request traffic. ToPrometheus uses this to
// report gateway_upstream_healthy for a probed-but-idle upstream, which
// wouldn't otherwise appear in PerUpstream (built solely from RequestMetric
// traffic).
func (c *Collector) healthSnapshot() map[string]HealthCheckResult {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	out := make(map[string]HealthCheckResult, len(c.health))
	for upstream, result := range c.health {
		out[upstream] = result
	}
	return out
}
