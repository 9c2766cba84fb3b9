package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/skylinegw/edgegateway/metrics"
	"github.com/skylinegw/edgegateway/middleware"
	"github.com/skylinegw/edgegateway/pipeline"
	"github.com/skylinegw/edgegateway/quota"
)

const gatewayVersion = "1.0.0"

// quotaKey identifies the caller for quota accounting: the API key when
// present, otherwise the client IP. This is independent of the rate
// limiter's client key since quotas track longer-horizon usage per
// identity rather than per-connection abuse.
func quotaKey(r *http.Request) string {
	if k := middleware.KeyByHeader("X-API-Key")(r); k != "" {
		return k
	}
	return middleware.KeyByIP(r)
}

// newForwardMux builds the handler the policy pipeline forwards to once a
// request clears rate limiting and authentication. The AI proxy is gated
// by the quota manager on top of the composite rate limiter, since each
// call there is assumed to carry real upstream cost worth metering on a
// per-minute/day/month basis rather than just per-second.
func newForwardMux(cfg config, quotaMgr *quota.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/ai/", quotaGate(quotaMgr, cfg.quota, aiProxyHandler(cfg.backendURL)))
	mux.HandleFunc("/api/quota", quotaStatusHandler(quotaMgr, cfg.quota))
	mux.HandleFunc("/api/services", servicesHandler)
	mux.HandleFunc("/api/echo", echoHandler)
	mux.HandleFunc("/api/version", versionHandler(cfg))
	mux.HandleFunc("/", notFoundHandler)

	return mux
}

// quotaGate wraps next with a quota.Manager.CheckAndIncrement call, denying
// with 429 and a quota status body when the caller has exceeded its
// minute/day/month ceiling.
func quotaGate(mgr *quota.Manager, cfg quota.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := mgr.CheckAndIncrement(r.Context(), quotaKey(r), cfg)
		if err != nil {
			slog.Default().Error("quota check failed, failing open", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":         "Too Many Requests",
				"message":       "quota exceeded",
				"exceededQuota": res.ExceededQuota,
				"quotas":        quotaUsageBody(res),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func quotaStatusHandler(mgr *quota.Manager, cfg quota.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := mgr.Status(r.Context(), quotaKey(r), cfg)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "quota lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, quotaUsageBody(res))
	}
}

func quotaUsageBody(res *quota.Result) map[string]any {
	return map[string]any{
		"minute":  res.Minute,
		"daily":   res.Daily,
		"monthly": res.Monthly,
	}
}

func metricsHandler(collector *metrics.Collector, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := collector.ToPrometheus()
		if err != nil {
			logger.Error("failed to render prometheus metrics", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}
}

func healthHandler(cfg config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   "edge-gateway",
			"version":   gatewayVersion,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func serviceDescriptorHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "edge-gateway",
		"version": gatewayVersion,
		"routes": []string{
			"/health", "/api/*", "/api/ai/*", "/api/quota", "/api/services", "/api/echo", "/api/version",
		},
	})
}

func servicesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": []map[string]string{
			{"name": "ai", "path": "/api/ai", "description": "proxies to the configured AI backend, quota-gated"},
			{"name": "echo", "path": "/api/echo", "description": "reflects the incoming request"},
			{"name": "quota", "path": "/api/quota", "description": "reports the caller's minute/day/month usage"},
		},
	})
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, map[string]any{
		"method":    r.Method,
		"path":      r.URL.Path,
		"headers":   r.Header,
		"query":     r.URL.Query(),
		"body":      string(body),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func versionHandler(cfg config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"gateway":     gatewayVersion,
			"environment": cfg.environment,
			"runtime":     runtime.Version(),
		})
	}
}

// aiProxyHandler rewrites /api/ai/* to <backendURL>/ai/*, preserving method,
// forwarding Authorization and Content-Type, and the body for non-GET
// requests.
func aiProxyHandler(backendURL string) http.Handler {
	target, err := url.Parse(backendURL)
	if err != nil {
		panic(err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		originalDirector(r)
		r.URL.Path = "/ai" + strings.TrimPrefix(r.URL.Path, "/api/ai")
		r.Host = target.Host
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Set("X-Upstream", backendURL)
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Default().Error("upstream proxy error", "backend", backendURL, "error", err)
		pipeline.WriteError(w, pipeline.NewUpstreamError(http.StatusBadGateway, "upstream request failed", err))
	}
	return proxy
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":     "Not Found",
		"message":   "no route matches " + r.URL.Path,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
