// This file is kept for backward-compatibility documentation.
// The concrete Gin adapter lives in the ginmw sub-package to avoid pulling
// github.com/gin-gonic/gin into projects that only need the core limiter.
//
// Import:
//
//	import "github.com/skylinegw/edgegateway/middleware/ginmw"
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	r := gin.Default()
//	r.Use(ginmw.Wrap(p))
//
// Key extractors: see this package's KeyByIP, KeyByHeader, and
// KeyByPathAndIP — pass one as pipeline.Config.ClientKeyFunc before
// building the pipeline, since Gin itself is never consulted for the key.
//
// See package github.com/skylinegw/edgegateway/middleware/ginmw for the
// adapter's full API.
package middleware
