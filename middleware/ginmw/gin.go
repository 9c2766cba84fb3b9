// Package ginmw mounts the gateway's policy pipeline as Gin middleware.
//
// Separated from the middleware package so that importing it does not pull
// in github.com/gin-gonic/gin for callers who don't need it.
//
// Usage:
//
//	p := pipeline.New(pipeline.Config{Limiter: composite, Forward: upstream})
//	r := gin.Default()
//	r.Use(ginmw.Wrap(p))
package ginmw

import (
	"github.com/gin-gonic/gin"

	"github.com/skylinegw/edgegateway/pipeline"
)

// Wrap mounts p ahead of the Gin handler chain. Because the pipeline
// already performs rate limiting, authentication, and forwarding, routes
// registered after Wrap only run when the pipeline's own Forward handler
// delegates into Gin's router — typically by setting pipeline.Config.Forward
// to the *gin.Engine itself and calling r.Use(ginmw.Wrap(p)) on a second,
// outer engine, or by using Wrap as the sole handler via NoRoute/NoMethod.
func Wrap(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		p.ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}
