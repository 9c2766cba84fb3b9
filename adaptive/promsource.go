package adaptive

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Queries targeting node/HTTP exporters, used to derive a single
// currentLoad/maxLoad pair for UpdateLoadFactor. maxLoad is always 100
// (percent); currentLoad is whichever of CPU utilization or P95 latency
// relative to targetLatencyMs is currently more stressed. errorRateQuery is
// not used by FetchLoad.
const (
	cpuQuery       = `100 * (1 - avg(rate(node_cpu_seconds_total{mode="idle"}[5m])))`
	p95LatencyMs   = `1000 * histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))`
	errorRateQuery = `100 * sum(rate(http_requests_total{status_code=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))`

	targetLatencyMs = 500.0
)

// PrometheusHealthSource reports gateway load by querying a Prometheus
// server, so UpdateLoadFactor can be driven automatically rather than
// called by hand.
type PrometheusHealthSource struct {
	api promv1.API
}

// NewPrometheusHealthSource connects to the Prometheus server at promURL.
func NewPrometheusHealthSource(promURL string) (*PrometheusHealthSource, error) {
	client, err := api.NewClient(api.Config{Address: promURL})
	if err != nil {
		return nil, fmt.Errorf("adaptive: prometheus client: %w", err)
	}
	return &PrometheusHealthSource{api: promv1.NewAPI(client)}, nil
}

// FetchLoad queries CPU utilization and P95 latency and returns the worse
// of the two as a currentLoad/100 maxLoad pair, suitable for
// Controller.UpdateLoadFactor.
func (p *PrometheusHealthSource) FetchLoad(ctx context.Context) (currentLoad, maxLoad float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := time.Now()

	cpu, err := p.queryScalar(ctx, cpuQuery, now)
	if err != nil {
		return 0, 0, err
	}
	latencyMs, err := p.queryScalar(ctx, p95LatencyMs, now)
	if err != nil {
		return 0, 0, err
	}

	latencyLoad := 100 * latencyMs / targetLatencyMs
	load := cpu
	if latencyLoad > load {
		load = latencyLoad
	}
	return load, 100, nil
}

func (p *PrometheusHealthSource) queryScalar(ctx context.Context, query string, at time.Time) (float64, error) {
	result, _, err := p.api.Query(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("adaptive: prometheus query %q: %w", query, err)
	}
	if v, ok := result.(model.Vector); ok && len(v) > 0 {
		return float64(v[0].Value), nil
	}
	return 0, nil
}
