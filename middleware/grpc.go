// This file is kept for backward-compatibility documentation.
// The concrete gRPC interceptors live in the grpcmw sub-package to avoid
// pulling google.golang.org/grpc into projects that only need HTTP
// middleware. Unlike the HTTP-framework adapters, grpcmw does not wrap
// pipeline.Pipeline — gRPC has no net/http request/response surface — so it
// talks to a composite.Composite (or anything satisfying grpcmw.Limiter)
// directly.
//
// Import:
//
//	import "github.com/skylinegw/edgegateway/middleware/grpcmw"
//
// Usage:
//
//	limiter := composite.New(composite.Member{Name: "sw", Limiter: sw, Priority: 10})
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(grpcmw.UnaryServerInterceptor(limiter, grpcmw.KeyByPeer)),
//	    grpc.StreamInterceptor(grpcmw.StreamServerInterceptor(limiter, grpcmw.StreamKeyByPeer)),
//	)
//
// Key extractors:
//
//	grpcmw.KeyByPeer                  — peer address from the connection
//	grpcmw.KeyByMetadata("x-api-key") — value from an incoming metadata header
//
// See package github.com/skylinegw/edgegateway/middleware/grpcmw for the
// full API, including *WithConfig variants for exclusion lists and custom
// denial handling.
package middleware
