package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// ToPrometheus renders the collector's current aggregation (over the full
// retained buffer) as Prometheus text exposition format: gateway_requests_total,
// gateway_errors_total, gateway_latency_ms{quantile}, and
// gateway_upstream_healthy{upstream} per known upstream.
//
// The registry is private and built fresh on every call so concurrent
// callers never race on metric mutation; the stable metric names come out
// of the real Prometheus text encoder rather than hand-built strings.
func (c *Collector) ToPrometheus() (string, error) {
	agg := c.aggregate(c.snapshot())
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_requests_total",
		Help: "Total requests recorded by the metrics collector.",
	})
	requestsTotal.Set(float64(agg.Total))

	errorsTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_errors_total",
		Help: "Total error responses (status outside 200-399) recorded by the metrics collector.",
	})
	errorsTotal.Set(float64(agg.Errors))

	latency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_latency_ms",
		Help: "Request latency percentiles in milliseconds.",
	}, []string{"quantile"})
	latency.WithLabelValues("0.5").Set(agg.P50)
	latency.WithLabelValues("0.95").Set(agg.P95)
	latency.WithLabelValues("0.99").Set(agg.P99)

	upstreamHealthy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_upstream_healthy",
		Help: "1 if the upstream's last health check succeeded, 0 otherwise.",
	}, []string{"upstream"})
	seen := make(map[string]bool, len(agg.PerUpstream))
	for upstream, up := range agg.PerUpstream {
		seen[upstream] = true
		v := 0.0
		if up.Healthy {
			v = 1.0
		}
		upstreamHealthy.WithLabelValues(upstream).Set(v)
	}
	// Upstreams probed via CheckUpstream but with no recent request traffic
	// still need an entry — PerUpstream alone only sees traffic-bearing ones.
	for upstream, result := range c.healthSnapshot() {
		if seen[upstream] {
			continue
		}
		v := 0.0
		if result.Healthy {
			v = 1.0
		}
		upstreamHealthy.WithLabelValues(upstream).Set(v)
	}

	registry.MustRegister(requestsTotal, errorsTotal, latency, upstreamHealthy)

	mfs, err := registry.Gather()
	if err != nil {
		return "", fmt.Errorf("metrics: gather: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range mfs {
		if err := encoder.Encode(mf); err != nil {
			return "", fmt.Errorf("metrics: encode: %w", err)
		}
	}
	return buf.String(), nil
}
