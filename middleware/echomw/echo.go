// Package echomw mounts the gateway's policy pipeline as Echo middleware.
//
// Separated from the middleware package so that importing it does not pull
// in github.com/labstack/echo/v4 for callers who don't need it.
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	e := echo.New()
//	e.Use(echomw.Wrap(p))
package echomw

import (
	"github.com/labstack/echo/v4"

	"github.com/skylinegw/edgegateway/pipeline"
)

// Wrap adapts p to an echo.MiddlewareFunc. p runs in full, including its
// own forwarding step, and produces the response; the next handler in
// Echo's chain is never called.
func Wrap(p *pipeline.Pipeline) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.ServeHTTP(c.Response(), c.Request())
			return nil
		}
	}
}
