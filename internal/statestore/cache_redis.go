package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	cachestore "github.com/mrz1836/go-cache"
)

// RedisCache adapts the Store's Cache tier onto a Redis-compatible
// connection. It exists for development and integration tests that want
// a cache shared across processes without spinning up real
// infrastructure; no test in this package exercises it. The production cache
// tier is TTLCache, per spec.md's no-database non-goal.
type RedisCache struct {
	client *cachestore.Client
	ttlSec int
}

// NewRedisCache wraps an already-connected go-cache client. ttlSec of 0
// means entries never expire (caller invalidates explicitly).
func NewRedisCache(client *cachestore.Client, ttlSec int) *RedisCache {
	return &RedisCache{client: client, ttlSec: ttlSec}
}

// Get implements Cache.
func (r *RedisCache) Get(dir string) (State, bool) {
	raw, err := r.client.Get(context.Background(), cacheKey(dir))
	if err != nil || raw == "" {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false
	}
	return st, true
}

// Set implements Cache.
func (r *RedisCache) Set(dir string, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	_ = r.client.Set(context.Background(), cacheKey(dir), string(data), r.ttlSec)
}

// Invalidate implements Cache.
func (r *RedisCache) Invalidate(dir string) {
	_ = r.client.Delete(context.Background(), cacheKey(dir))
}

func cacheKey(dir string) string {
	return fmt.Sprintf("furu:state:%s", dir)
}
