// Package ratelimit implements the four rate limiting algorithms behind the
// edge gateway: Sliding Window, Token Bucket, Leaky Bucket, and Fixed
// Window, plus in-memory and Redis-backed storage and drop-in middleware
// for net/http, Gin, Echo, Fiber, and gRPC.
//
// # Algorithms
//
//   - Sliding Window — stores every request timestamp within the window;
//     no boundary burst, more storage per key.
//   - Token Bucket — steady refill, tolerates bursts up to the bucket size.
//   - Leaky Bucket — constant drain rate, smooths bursts into a steady rate.
//   - Fixed Window — single counter per window; cheapest, allows up to 2x
//     the limit across a window boundary.
//
// # Quick Start
//
//	limiter, err := ratelimit.NewTokenBucket(100, 10)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := limiter.Check(ctx, "user:123")
//	if result.Allowed {
//	    // serve request
//	}
//
// # With Redis
//
//	store := redisdb.New(redisClient)
//	limiter, _ := ratelimit.NewTokenBucket(100, 10,
//	    ratelimit.WithStore(store),
//	)
//
// # Builder API
//
//	limiter, _ := ratelimit.NewBuilder().
//	    SlidingWindow(100, 60*time.Second).
//	    Store(store).
//	    Build()
//
// All four algorithms implement the [Limiter] interface and return a
// [Result] with Allowed, Remaining, Limit, ResetAtMs, and RetryAfterSeconds
// fields. Token Bucket additionally implements [CostLimiter] so the
// adaptive controller can re-price requests under load.
package ratelimit
