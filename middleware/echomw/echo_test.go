package echomw_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/skylinegw/edgegateway/middleware/echomw"
	"github.com/skylinegw/edgegateway/pipeline"
)

func TestWrap_ForwardsToPipeline(t *testing.T) {
	p := pipeline.New(pipeline.Config{
		Forward: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}),
	})

	e := echo.New()
	e.Use(echomw.Wrap(p))
	e.GET("/api/data", func(c echo.Context) error { return nil })

	req := httptest.NewRequest("GET", "/api/data", nil)
	rw := httptest.NewRecorder()
	e.ServeHTTP(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "ok", rw.Body.String())
}
