// Package grpcmw provides gRPC server interceptors mounting the gateway's
// composite rate limiter.
//
// Separated from the middleware package so that importing it does not pull
// in google.golang.org/grpc. gRPC has no HTTP request/response concept to
// run the full net/http policy pipeline against, so this adapter wraps
// composite.Composite directly rather than pipeline.Pipeline.
//
// Usage:
//
//	limiter := composite.New(composite.Member{Name: "sw", Limiter: sw, Priority: 10})
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(grpcmw.UnaryServerInterceptor(limiter, grpcmw.KeyByPeer)),
//	    grpc.ChainStreamInterceptor(grpcmw.StreamServerInterceptor(limiter, grpcmw.StreamKeyByPeer)),
//	)
package grpcmw

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/skylinegw/edgegateway/composite"
)

// Limiter is the composite rate limiter contract the interceptors depend on.
type Limiter interface {
	Check(ctx context.Context, key string) (*composite.Result, error)
}

// KeyFunc extracts the rate limiting key from a unary RPC context.
type KeyFunc func(ctx context.Context, info *grpc.UnaryServerInfo) string

// StreamKeyFunc extracts the rate limiting key from a streaming RPC context.
type StreamKeyFunc func(ctx context.Context, info *grpc.StreamServerInfo) string

// DeniedHandler produces the gRPC error returned when a request is rate limited.
// Default: codes.ResourceExhausted with retry info.
type DeniedHandler func(ctx context.Context, result *composite.Result) error

// Config holds full configuration for gRPC rate limit interceptors.
type Config struct {
	Limiter       Limiter
	KeyFunc       KeyFunc
	StreamKeyFunc StreamKeyFunc
	DeniedHandler DeniedHandler

	// ExcludeMethods are full method names (e.g. "/pkg.Service/Method")
	// that bypass rate limiting.
	ExcludeMethods map[string]bool

	// Headers controls whether rate limit metadata is sent in response headers.
	// Default: true.
	Headers *bool
}

// UnaryServerInterceptor creates a unary server interceptor with default settings.
func UnaryServerInterceptor(limiter Limiter, keyFunc KeyFunc) grpc.UnaryServerInterceptor {
	return UnaryServerInterceptorWithConfig(Config{Limiter: limiter, KeyFunc: keyFunc})
}

// UnaryServerInterceptorWithConfig creates a unary server interceptor with
// full configuration control. On a limiter error, the request fails open.
func UnaryServerInterceptorWithConfig(cfg Config) grpc.UnaryServerInterceptor {
	if cfg.Limiter == nil {
		panic("grpcmw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("grpcmw: KeyFunc is required")
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		key := cfg.KeyFunc(ctx, info)
		result, err := cfg.Limiter.Check(ctx, key)
		if err != nil {
			return handler(ctx, req)
		}

		if sendHeaders {
			setRateLimitMetadata(ctx, result)
		}

		if !result.Allowed {
			return nil, cfg.DeniedHandler(ctx, result)
		}

		return handler(ctx, req)
	}
}

// StreamServerInterceptor creates a stream server interceptor with default settings.
func StreamServerInterceptor(limiter Limiter, keyFunc StreamKeyFunc) grpc.StreamServerInterceptor {
	return StreamServerInterceptorWithConfig(Config{Limiter: limiter, StreamKeyFunc: keyFunc})
}

// StreamServerInterceptorWithConfig creates a stream server interceptor with
// full configuration control.
func StreamServerInterceptorWithConfig(cfg Config) grpc.StreamServerInterceptor {
	if cfg.Limiter == nil {
		panic("grpcmw: Limiter is required")
	}
	if cfg.StreamKeyFunc == nil {
		panic("grpcmw: StreamKeyFunc is required")
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()

		if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		key := cfg.StreamKeyFunc(ctx, info)
		result, err := cfg.Limiter.Check(ctx, key)
		if err != nil {
			return handler(srv, ss)
		}

		if sendHeaders {
			setRateLimitMetadata(ctx, result)
		}

		if !result.Allowed {
			return cfg.DeniedHandler(ctx, result)
		}

		return handler(srv, ss)
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByPeer extracts the remote peer address as the rate limit key.
func KeyByPeer(ctx context.Context, _ *grpc.UnaryServerInfo) string {
	return peerAddr(ctx)
}

// StreamKeyByPeer extracts the remote peer address as the rate limit key for streams.
func StreamKeyByPeer(ctx context.Context, _ *grpc.StreamServerInfo) string {
	return peerAddr(ctx)
}

// KeyByMetadata returns a KeyFunc that uses a value from incoming gRPC metadata.
func KeyByMetadata(header string) KeyFunc {
	return func(ctx context.Context, _ *grpc.UnaryServerInfo) string {
		return metadataValue(ctx, header)
	}
}

// StreamKeyByMetadata returns a StreamKeyFunc that uses a value from incoming gRPC metadata.
func StreamKeyByMetadata(header string) StreamKeyFunc {
	return func(ctx context.Context, _ *grpc.StreamServerInfo) string {
		return metadataValue(ctx, header)
	}
}

// ─── Internals ───────────────────────────────────────────────────────────────

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

func metadataValue(ctx context.Context, header string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(header); len(vals) > 0 {
			return vals[0]
		}
	}
	return "unknown"
}

func setRateLimitMetadata(ctx context.Context, result *composite.Result) {
	md := metadata.Pairs(
		"x-ratelimit-limit", strconv.FormatInt(result.Limit, 10),
		"x-ratelimit-remaining", strconv.FormatInt(result.Remaining, 10),
	)
	if result.ResetAtMs > 0 {
		md.Append("x-ratelimit-reset", strconv.FormatInt(result.ResetAtMs/1000, 10))
	}
	if !result.Allowed && result.RetryAfterSeconds != nil {
		md.Append("retry-after", strconv.FormatInt(*result.RetryAfterSeconds, 10))
	}
	_ = grpc.SetHeader(ctx, md)
}

func defaultDeniedHandler(_ context.Context, result *composite.Result) error {
	retry := int64(0)
	if result.RetryAfterSeconds != nil {
		retry = *result.RetryAfterSeconds
	}
	return status.Errorf(codes.ResourceExhausted, "rate limit exceeded, retry after %ds", retry)
}
