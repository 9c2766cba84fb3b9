// This file is kept for backward-compatibility documentation.
// The concrete Fiber adapter lives in the fibermw sub-package to avoid
// pulling github.com/gofiber/fiber/v2 into projects that only need the core
// limiter. Fiber runs on fasthttp rather than net/http, so fibermw bridges
// through fiber's own adaptor package.
//
// Import:
//
//	import "github.com/skylinegw/edgegateway/middleware/fibermw"
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	app := fiber.New()
//	app.Use(fibermw.Wrap(p))
//
// Key extractors: see this package's KeyByIP, KeyByHeader, and
// KeyByPathAndIP — pass one as pipeline.Config.ClientKeyFunc before
// building the pipeline, since Fiber itself is never consulted for the key.
//
// See package github.com/skylinegw/edgegateway/middleware/fibermw for the
// adapter's full API.
package middleware
