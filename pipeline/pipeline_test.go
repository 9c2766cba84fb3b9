package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skylinegw/edgegateway"
	"github.com/skylinegw/edgegateway/auth"
	"github.com/skylinegw/edgegateway/composite"
	"github.com/skylinegw/edgegateway/metrics"
	"github.com/skylinegw/edgegateway/pipeline"
)

type fixedLimiter struct {
	result *composite.Result
	err    error
}

func (f *fixedLimiter) Check(ctx context.Context, key string) (*composite.Result, error) {
	return f.result, f.err
}

func allowResult() *composite.Result {
	return &composite.Result{
		Result:      &ratelimit.Result{Allowed: true, Remaining: 9, Limit: 10, ResetAtMs: 60000},
		LimiterName: "sw",
	}
}

func denyResult() *composite.Result {
	retry := int64(5)
	return &composite.Result{
		Result:      &ratelimit.Result{Allowed: false, Remaining: 0, Limit: 10, ResetAtMs: 60000, RetryAfterSeconds: &retry},
		LimiterName: "sw",
	}
}

func TestPipeline_AllowedRequestForwarded(t *testing.T) {
	forwarded := false
	p := pipeline.New(pipeline.Config{
		Limiter: &fixedLimiter{result: allowResult()},
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded = true
			w.WriteHeader(http.StatusOK)
		}),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	require.True(t, forwarded)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "9", rw.Header().Get("X-RateLimit-Remaining"))
}

func TestPipeline_DeniedRequestReturns429(t *testing.T) {
	forwarded := false
	p := pipeline.New(pipeline.Config{
		Limiter: &fixedLimiter{result: denyResult()},
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded = true
		}),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	require.False(t, forwarded)
	require.Equal(t, http.StatusTooManyRequests, rw.Code)
	require.Equal(t, "5", rw.Header().Get("Retry-After"))
}

func TestPipeline_StrictAuthRejectsMissingCredentials(t *testing.T) {
	p := pipeline.New(pipeline.Config{
		StrictAuth: true,
		Forward:    http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestPipeline_APIKeyValidatorEnforced(t *testing.T) {
	p := pipeline.New(pipeline.Config{
		StrictAuth:      true,
		APIKeyValidator: auth.NewAPIKeyValidator([]string{"good"}),
		Forward:         http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	req.Header.Set("X-API-Key", "bad")
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	req2 := httptest.NewRequest("GET", "/api/echo", nil)
	req2.Header.Set("X-API-Key", "good")
	rw2 := httptest.NewRecorder()
	p.ServeHTTP(rw2, req2)
	require.Equal(t, http.StatusOK, rw2.Code)
}

func TestPipeline_CORSPreflight(t *testing.T) {
	p := pipeline.New(pipeline.Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	require.Equal(t, http.StatusNoContent, rw.Code)
	require.NotEmpty(t, rw.Header().Get("Access-Control-Allow-Methods"))
}

func TestPipeline_LimiterErrorFailsOpen(t *testing.T) {
	forwarded := false
	p := pipeline.New(pipeline.Config{
		Limiter: &fixedLimiter{err: context.DeadlineExceeded},
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded = true
			w.WriteHeader(http.StatusOK)
		}),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	require.True(t, forwarded)
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestPipeline_RecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	p := pipeline.New(pipeline.Config{
		Collector: collector,
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Upstream", "backend-a")
			w.WriteHeader(http.StatusOK)
		}),
	})

	req := httptest.NewRequest("GET", "/api/echo", nil)
	rw := httptest.NewRecorder()
	p.ServeHTTP(rw, req)

	agg := collector.GetAggregated(60)
	require.Equal(t, int64(1), agg.Total)
}
