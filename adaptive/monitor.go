package adaptive

import (
	"context"
	"log/slog"
	"time"
)

// HealthSource supplies a current/max load pair, polled on an interval by
// Monitor. PrometheusHealthSource is the production implementation.
type HealthSource interface {
	FetchLoad(ctx context.Context) (currentLoad, maxLoad float64, err error)
}

// Monitor periodically polls a HealthSource and feeds the result into a
// Controller's UpdateLoadFactor, so load-factor adjustment runs unattended
// instead of requiring an operator to call UpdateLoadFactor by hand.
type Monitor struct {
	controller *Controller
	source     HealthSource
	interval   time.Duration
	logger     *slog.Logger
}

// NewMonitor creates a Monitor. logger defaults to slog.Default() if nil.
func NewMonitor(controller *Controller, source HealthSource, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{controller: controller, source: source, interval: interval, logger: logger}
}

// Run polls source every interval until ctx is cancelled, updating
// controller's load factor on each successful fetch. A fetch error is
// logged and the previous factor is left in place.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentLoad, maxLoad, err := m.source.FetchLoad(ctx)
			if err != nil {
				m.logger.Warn("adaptive monitor: fetch load failed, keeping current factor", "error", err)
				continue
			}
			if err := m.controller.UpdateLoadFactor(ctx, currentLoad, maxLoad); err != nil {
				m.logger.Warn("adaptive monitor: update load factor failed", "error", err)
			}
		}
	}
}
