package ginmw_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/skylinegw/edgegateway/middleware/ginmw"
	"github.com/skylinegw/edgegateway/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWrap_ForwardsToPipeline(t *testing.T) {
	p := pipeline.New(pipeline.Config{
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}),
	})

	r := gin.New()
	r.Use(ginmw.Wrap(p))

	req := httptest.NewRequest("GET", "/api/data", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "ok", rw.Body.String())
}
