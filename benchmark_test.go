package ratelimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/skylinegw/edgegateway/kv/memkv"
)

// ─── Single-key (serial) ─────────────────────────────────────────────────────

func BenchmarkFixedWindow(b *testing.B) {
	l, _ := NewFixedWindow(int64(b.N)+1, 3600, WithStore(memkv.New()))
	benchCheck(b, l)
}

func BenchmarkSlidingWindow(b *testing.B) {
	l, _ := NewSlidingWindow(int64(b.N)+1, 3600, WithStore(memkv.New()))
	benchCheck(b, l)
}

func BenchmarkTokenBucket(b *testing.B) {
	l, _ := NewTokenBucket(int64(b.N)+1, int64(b.N)+1, WithStore(memkv.New()))
	benchCheck(b, l)
}

func BenchmarkLeakyBucket(b *testing.B) {
	l, _ := NewLeakyBucket(int64(b.N)+1, int64(b.N)+1, WithStore(memkv.New()))
	benchCheck(b, l)
}

// ─── Parallel (contended single key) ─────────────────────────────────────────

func BenchmarkFixedWindow_Parallel(b *testing.B) {
	l, _ := NewFixedWindow(1<<62, 3600, WithStore(memkv.New()))
	benchCheckParallel(b, l, "shared")
}

func BenchmarkTokenBucket_Parallel(b *testing.B) {
	l, _ := NewTokenBucket(1<<62, 1<<62, WithStore(memkv.New()))
	benchCheckParallel(b, l, "shared")
}

func BenchmarkLeakyBucket_Parallel(b *testing.B) {
	l, _ := NewLeakyBucket(1<<62, 1<<62, WithStore(memkv.New()))
	benchCheckParallel(b, l, "shared")
}

// ─── Parallel (distinct keys — no shared KV record; mutexes still shared) ───

func BenchmarkTokenBucket_DistinctKeys(b *testing.B) {
	l, _ := NewTokenBucket(1000, 100, WithStore(memkv.New()))
	benchCheckParallelDistinct(b, l)
}

func BenchmarkFixedWindow_DistinctKeys(b *testing.B) {
	l, _ := NewFixedWindow(1000, 3600, WithStore(memkv.New()))
	benchCheckParallelDistinct(b, l)
}

// ─── CheckCost ───────────────────────────────────────────────────────────────

func BenchmarkTokenBucket_CheckCost(b *testing.B) {
	l, _ := NewTokenBucket(1<<62, 1<<62, WithStore(memkv.New()))
	tb := l.(CostLimiter)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tb.CheckCost(ctx, "k", 2.5)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func benchCheck(b *testing.B, l Limiter) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Check(ctx, "k")
	}
}

func benchCheckParallel(b *testing.B, l Limiter, key string) {
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = l.Check(ctx, key)
		}
	})
}

func benchCheckParallelDistinct(b *testing.B, l Limiter) {
	ctx := context.Background()
	var seq atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := seq.Add(1)
		key := "user:" + strconv.FormatInt(id, 10)
		for pb.Next() {
			_, _ = l.Check(ctx, key)
		}
	})
}
