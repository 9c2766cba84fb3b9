// Package middleware holds framework-agnostic key extractors shared by the
// gateway's per-framework adapters (ginmw, echomw, fibermw, grpcmw). The
// adapters themselves mount pipeline.Pipeline directly; this package only
// supplies KeyFunc implementations for pipeline.Config.ClientKeyFunc.
package middleware

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc extracts the rate limiting key from an HTTP request.
// The returned string identifies the caller (e.g. IP, API key, user ID).
// It matches the signature of pipeline.Config.ClientKeyFunc.
type KeyFunc func(r *http.Request) string

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP extracts the client IP address as the rate limit key.
// It checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func KeyByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyByHeader returns a KeyFunc that uses the value of the given header.
// Useful for API key-based rate limiting.
func KeyByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// KeyByPathAndIP returns a KeyFunc that combines the request path and client IP.
// Useful for per-endpoint rate limiting.
func KeyByPathAndIP(r *http.Request) string {
	return r.URL.Path + ":" + KeyByIP(r)
}
