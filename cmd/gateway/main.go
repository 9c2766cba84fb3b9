// Edge API gateway: policy pipeline (rate limiting, quota, auth, metrics)
// fronting a small set of static and proxied routes.
//
// Run: go run ./cmd/gateway/
// Test: curl -i http://localhost:8080/health
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ratelimit "github.com/skylinegw/edgegateway"
	"github.com/skylinegw/edgegateway/adaptive"
	"github.com/skylinegw/edgegateway/auth"
	"github.com/skylinegw/edgegateway/cache"
	"github.com/skylinegw/edgegateway/composite"
	"github.com/skylinegw/edgegateway/kv"
	"github.com/skylinegw/edgegateway/kv/memkv"
	"github.com/skylinegw/edgegateway/kv/redisdb"
	"github.com/skylinegw/edgegateway/metrics"
	"github.com/skylinegw/edgegateway/pipeline"
	"github.com/skylinegw/edgegateway/quota"
)

const defaultBackendURL = "http://localhost:9000"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()

	store, closeStore := newStore(cfg.rateLimitAddr, logger)
	defer closeStore()

	limiter, adaptiveController := buildCompositeLimiter(store)
	collector := metrics.NewCollector()
	quotaMgr := quota.NewManager(store)

	if cfg.prometheusURL != "" {
		startAdaptiveMonitor(adaptiveController, cfg.prometheusURL, logger)
	}
	startHealthMonitor(collector, cfg.backendURL, logger)

	var apiKeyValidator auth.Validator = auth.NewAPIKeyValidator(cfg.apiKeys)
	bearerValidator := newBearerValidator(cfg.jwtSecret, logger)

	p := pipeline.New(pipeline.Config{
		Limiter:         limiter,
		Collector:       collector,
		APIKeyValidator: apiKeyValidator,
		BearerValidator: bearerValidator,
		Forward:         newForwardMux(cfg, quotaMgr),
		Logger:          logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(cfg))
	mux.HandleFunc("/metrics", metricsHandler(collector, logger))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			serviceDescriptorHandler(w, r)
			return
		}
		p.ServeHTTP(w, r)
	})

	addr := ":8080"
	logger.Info("gateway listening", "addr", addr, "environment", cfg.environment)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// newBearerValidator constructs a JWTValidator when JWT_SECRET is set, the
// same opt-in pattern PROMETHEUS_URL uses for the adaptive monitor; with no
// secret configured, Bearer tokens fall back to the permissive default.
func newBearerValidator(secret string, logger *slog.Logger) auth.Validator {
	if secret == "" {
		logger.Info("JWT_SECRET not set, bearer tokens accepted without signature verification")
		return auth.PermissiveBearerValidator{}
	}
	logger.Info("JWT bearer validation enabled")
	return auth.NewJWTValidator(secret)
}

func newStore(addr string, logger *slog.Logger) (kv.Store, func()) {
	if addr == "" {
		logger.Info("RATE_LIMIT not set, using in-memory store")
		s := memkv.New()
		return s, func() { _ = s.Close() }
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	logger.Info("using redis-backed store", "addr", addr)
	return redisdb.New(client), func() { _ = client.Close() }
}

// buildCompositeLimiter stacks three of the four algorithms (Fixed Window
// is not used) behind one priority order: sliding window (strict,
// per-minute abuse guard) takes precedence
// over the token bucket (burst-tolerant, adaptive-aware) and leaky bucket
// (smoothing guard against sustained load). The sliding window sits behind
// an L1 local cache since it runs on every request and is the first thing
// checked — shedding repeat checks for the same client avoids a KV round
// trip per request.
func buildCompositeLimiter(store kv.Store) (*composite.Composite, *adaptive.Controller) {
	sw, err := ratelimit.NewSlidingWindow(60, 60, ratelimit.WithStore(store))
	if err != nil {
		panic(err)
	}
	tb, err := ratelimit.NewTokenBucket(100, 10, ratelimit.WithStore(store))
	if err != nil {
		panic(err)
	}
	lb, err := ratelimit.NewLeakyBucket(200, 20, ratelimit.WithStore(store))
	if err != nil {
		panic(err)
	}

	tbCost, ok := tb.(ratelimit.CostLimiter)
	if !ok {
		panic("token bucket limiter does not implement CostLimiter")
	}
	adaptiveController := adaptive.NewController(tbCost, store)
	swCached := cache.New(sw, cache.WithTTL(50*time.Millisecond))

	limiter := composite.New(
		composite.Member{Name: "sw", Limiter: swCached, Priority: 30},
		composite.Member{Name: "tb", Limiter: adaptiveController, Priority: 20},
		composite.Member{Name: "lb", Limiter: lb, Priority: 10},
	)
	return limiter, adaptiveController
}

// startAdaptiveMonitor polls promURL every 15s and feeds the result into
// controller's load factor, so the token bucket re-prices requests as
// upstream CPU and P95 latency change without operator intervention.
func startAdaptiveMonitor(controller *adaptive.Controller, promURL string, logger *slog.Logger) {
	source, err := adaptive.NewPrometheusHealthSource(promURL)
	if err != nil {
		logger.Warn("adaptive monitor disabled: failed to connect to prometheus", "error", err, "url", promURL)
		return
	}
	monitor := adaptive.NewMonitor(controller, source, 15*time.Second, logger)
	go monitor.Run(context.Background())
	logger.Info("adaptive monitor started", "prometheus_url", promURL)
}

const (
	healthProbeInterval  = 15 * time.Second
	healthProbePath      = "/health"
	healthProbeTimeoutMs = 2000
)

// startHealthMonitor polls backendURL's health endpoint on a fixed interval
// and records the result into collector, so gateway_upstream_healthy in
// /metrics reflects the backend's live status rather than only what recent
// request traffic happened to observe.
func startHealthMonitor(collector *metrics.Collector, backendURL string, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(healthProbeInterval)
		defer ticker.Stop()
		for {
			res, err := collector.CheckUpstream(context.Background(), backendURL, healthProbePath, healthProbeTimeoutMs)
			if err != nil {
				logger.Warn("upstream health check errored", "upstream", backendURL, "error", err)
			} else if !res.Healthy {
				logger.Warn("upstream unhealthy", "upstream", backendURL, "error", res.Error, "consecutive_failures", res.ConsecutiveFailures)
			}
			<-ticker.C
		}
	}()
}

type config struct {
	rateLimitAddr string
	environment   string
	apiKeys       []string
	backendURL    string
	prometheusURL string
	jwtSecret     string
	quota         quota.Config
}

const (
	defaultQuotaPerMinute = 60
	defaultQuotaDaily     = 5000
	defaultQuotaMonthly   = 100000
)

func loadConfig() config {
	var keys []string
	if raw := os.Getenv("API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	backend := os.Getenv("BACKEND_URL")
	if backend == "" {
		backend = defaultBackendURL
	}

	return config{
		rateLimitAddr: os.Getenv("RATE_LIMIT"),
		environment:   os.Getenv("ENVIRONMENT"),
		apiKeys:       keys,
		backendURL:    backend,
		prometheusURL: os.Getenv("PROMETHEUS_URL"),
		jwtSecret:     os.Getenv("JWT_SECRET"),
		quota: quota.Config{
			PerMinute: envInt64("QUOTA_PER_MINUTE", defaultQuotaPerMinute),
			Daily:     envInt64("QUOTA_DAILY", defaultQuotaDaily),
			Monthly:   envInt64("QUOTA_MONTHLY", defaultQuotaMonthly),
		},
	}
}

func envInt64(name string, def int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
