// Package redisdb provides a Redis-backed implementation of kv.Store.
//
// It wraps redis.UniversalClient, which supports standalone Redis, Redis
// Cluster, and Redis Sentinel out of the box — the same client surface
// the teacher library's store/redis package wraps, narrowed here to the
// gateway's Get/Put/Delete contract.
package redisdb

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/skylinegw/edgegateway/kv"
)

// Store implements kv.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
}

// New creates a Redis-backed Store from any UniversalClient (standalone
// *redis.Client, *redis.ClusterClient, or *redis.Ring).
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient {
	return s.client
}

// Get returns the stored value, or kv.ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, &kv.ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put stores value under key with an optional TTL. ttl <= 0 means no expiry.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
