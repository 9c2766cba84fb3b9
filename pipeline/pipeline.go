// Package pipeline implements the gateway's policy-enforcement middleware
// chain: request id and logging, CORS, client identification, composite
// rate limiting, authentication, forwarding, and metrics recording.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/skylinegw/edgegateway/auth"
	"github.com/skylinegw/edgegateway/composite"
	"github.com/skylinegw/edgegateway/metrics"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDFromContext returns the request id assigned to ctx by the
// pipeline, or "" if none was assigned.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// Limiter is the composite rate limiter contract the pipeline depends on.
type Limiter interface {
	Check(ctx context.Context, key string) (*composite.Result, error)
}

// Config configures a Pipeline. Every field is optional: New fills unset
// fields with permissive defaults (Forward defaults to a 404 handler,
// Logger to slog.Default()).
type Config struct {
	// Limiter is the composite rate limiter. Nil disables rate limiting
	// entirely (treated as "KV not configured").
	Limiter Limiter

	// RateLimitedPrefix is the path prefix subject to rate limiting.
	// Default "/api/".
	RateLimitedPrefix string

	// ClientKeyFunc extracts the client identity used to scope limiter
	// and quota state. Default: identifyClient.
	ClientKeyFunc func(r *http.Request) string

	// APIKeyValidator validates X-API-Key. Default: disabled (nil set).
	APIKeyValidator auth.Validator

	// BearerValidator validates Authorization: Bearer tokens. Default:
	// auth.PermissiveBearerValidator (accept any non-empty token).
	BearerValidator auth.Validator

	// StrictAuth rejects requests with neither an API key nor a bearer
	// token. Default false (permissive mode).
	StrictAuth bool

	// Collector records completed requests. Nil disables recording.
	Collector *metrics.Collector

	// Forward handles the request after policy checks pass.
	Forward http.Handler

	// Logger receives structured entries. Default slog.Default().
	Logger *slog.Logger

	// AllowedMethods/AllowedHeaders/AllowCredentials configure the CORS
	// preflight response.
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// Pipeline is the constructed middleware chain. It implements http.Handler.
type Pipeline struct {
	cfg Config
}

// New builds a Pipeline from cfg, applying defaults for unset fields.
func New(cfg Config) *Pipeline {
	if cfg.RateLimitedPrefix == "" {
		cfg.RateLimitedPrefix = "/api/"
	}
	if cfg.ClientKeyFunc == nil {
		cfg.ClientKeyFunc = identifyClient
	}
	if cfg.APIKeyValidator == nil {
		cfg.APIKeyValidator = auth.NewAPIKeyValidator(nil)
	}
	if cfg.BearerValidator == nil {
		cfg.BearerValidator = auth.PermissiveBearerValidator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Content-Type", "Authorization", "X-API-Key"}
	}
	if cfg.Forward == nil {
		cfg.Forward = http.NotFoundHandler()
	}
	return &Pipeline{cfg: cfg}
}

// ServeHTTP runs the fixed policy chain: request id, logging, CORS, client
// identification, composite rate limiting, authentication, forwarding, and
// metric recording.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := newRequestID()
	ctx := context.WithValue(r.Context(), requestIDContextKey, reqID)
	r = r.WithContext(ctx)
	w.Header().Set("X-Request-Id", reqID)

	logger := p.cfg.Logger.With("request_id", reqID, "path", r.URL.Path, "method", r.Method)
	logger.Info("request received")

	if r.Method == http.MethodOptions {
		p.respondCORS(w)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
			p.respondError(w, newInternalError("panic in pipeline", nil))
		}
	}()

	clientKey := p.cfg.ClientKeyFunc(r)
	var rlResult *metrics.RateLimitInfo

	if p.cfg.Limiter != nil && strings.HasPrefix(r.URL.Path, p.cfg.RateLimitedPrefix) {
		res, err := p.cfg.Limiter.Check(r.Context(), clientKey)
		if err != nil {
			infraErr := newInfrastructureError("rate limiter check failed", err)
			logger.Error("rate limiter check failed, failing open", "kind", infraErr.Kind, "error", infraErr)
		} else {
			setRateLimitHeaders(w, res)
			rlResult = &metrics.RateLimitInfo{Limited: !res.Allowed, Remaining: res.Remaining}
			if !res.Allowed {
				logger.Warn("request denied by rate limiter", "limiter", res.LimiterName)
				p.respondDenied(w, res)
				return
			}
		}
	}

	if !p.authenticate(r) {
		logger.Warn("request rejected: authentication required")
		p.respondError(w, newClientError(http.StatusUnauthorized, "authentication required"))
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	p.cfg.Forward.ServeHTTP(rec, r)

	if p.cfg.Collector != nil {
		p.cfg.Collector.Record(metrics.RequestMetric{
			Path:          r.URL.Path,
			Method:        r.Method,
			StatusCode:    rec.status,
			LatencyMs:     time.Since(start).Milliseconds(),
			TimestampMs:   start.UnixMilli(),
			Upstream:      rec.Header().Get("X-Upstream"),
			Cached:        rec.Header().Get("X-Cache") == "HIT",
			RateLimitInfo: rlResult,
		})
	}
}

func (p *Pipeline) authenticate(r *http.Request) bool {
	if r.Header.Get("X-API-Key") != "" {
		return p.cfg.APIKeyValidator.Validate(r)
	}
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return p.cfg.BearerValidator.Validate(r)
	}
	return !p.cfg.StrictAuth
}

func (p *Pipeline) respondCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(p.cfg.AllowedMethods, ", "))
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(p.cfg.AllowedHeaders, ", "))
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
	if p.cfg.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Pipeline) respondDenied(w http.ResponseWriter, res *composite.Result) {
	if res.RetryAfterSeconds != nil {
		w.Header().Set("Retry-After", strconv.FormatInt(*res.RetryAfterSeconds, 10))
	}
	writeJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", res.RetryAfterSeconds)
}

func (p *Pipeline) respondError(w http.ResponseWriter, err *Error) {
	writeJSONError(w, err.Status, http.StatusText(err.Status), err.Message, nil)
}

func setRateLimitHeaders(w http.ResponseWriter, res *composite.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAtMs/1000, 10))
}

func writeJSONError(w http.ResponseWriter, status int, errName, message string, retryAfter *int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"error":     errName,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if retryAfter != nil {
		body["retryAfter"] = *retryAfter
	}
	_ = json.NewEncoder(w).Encode(body)
}

// identifyClient returns the first of X-API-Key, a peer IP header, or the
// literal "anonymous".
func identifyClient(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.SplitN(ip, ",", 2)[0])
	}
	return "anonymous"
}

func newRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
