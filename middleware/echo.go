// This file is kept for backward-compatibility documentation.
// The concrete Echo adapter lives in the echomw sub-package to avoid pulling
// github.com/labstack/echo/v4 into projects that only need the core limiter.
//
// Import:
//
//	import "github.com/skylinegw/edgegateway/middleware/echomw"
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	e := echo.New()
//	e.Use(echomw.Wrap(p))
//
// Key extractors: see this package's KeyByIP, KeyByHeader, and
// KeyByPathAndIP — pass one as pipeline.Config.ClientKeyFunc before
// building the pipeline, since Echo itself is never consulted for the key.
//
// See package github.com/skylinegw/edgegateway/middleware/echomw for the
// adapter's full API.
package middleware
