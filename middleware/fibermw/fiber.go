// Package fibermw mounts the gateway's policy pipeline as Fiber middleware.
//
// Separated from the middleware package so that importing it does not pull
// in github.com/gofiber/fiber/v2. Fiber runs on fasthttp rather than
// net/http, so the pipeline.Pipeline (a net/http.Handler) is bridged
// through fiber's own adaptor package.
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	app := fiber.New()
//	app.Use(fibermw.Wrap(p))
package fibermw

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/skylinegw/edgegateway/pipeline"
)

// Wrap adapts p to a fiber.Handler via fasthttpadaptor, so the whole
// net/http-based pipeline runs unmodified inside a Fiber app.
func Wrap(p *pipeline.Pipeline) fiber.Handler {
	return adaptor.HTTPHandler(p)
}
