package statestore

import (
	"sync"
	"time"
)

// Cache is the read-through cache tier a Store may be configured with.
// The production tier (TTLCache) is pure in-process bookkeeping; a
// Redis-backed tier is also available (see cache_redis.go) for
// development and test environments that want to exercise a shared cache
// across processes without standing up real infrastructure.
type Cache interface {
	Get(dir string) (State, bool)
	Set(dir string, st State)
	Invalidate(dir string)
}

// CacheMode selects a Store's TTL policy, mirroring spec.md's
// "never | duration | forever" knob.
type CacheMode int

const (
	// CacheNever disables caching: every Read hits disk.
	CacheNever CacheMode = iota
	// CacheDuration caches reads for a bounded TTL.
	CacheDuration
	// CacheForever caches reads indefinitely until explicitly invalidated.
	CacheForever
)

type entry struct {
	state     State
	expiresAt time.Time
	forever   bool
}

// TTLCache is an in-process, bounded-TTL cache of Read results, keyed by
// step directory. It is invalidated locally on any WriteAtomic through
// the owning Store; cross-process freshness is governed by TTL alone.
type TTLCache struct {
	mu   sync.Mutex
	mode CacheMode
	ttl  time.Duration
	now  func() time.Time

	entries map[string]entry
}

// NewTTLCache constructs a TTLCache. mode selects the policy; ttl is
// only consulted when mode is CacheDuration.
func NewTTLCache(mode CacheMode, ttl time.Duration) *TTLCache {
	return &TTLCache{
		mode:    mode,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Get implements Cache.
func (c *TTLCache) Get(dir string) (State, bool) {
	if c.mode == CacheNever {
		return State{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[dir]
	if !ok {
		return State{}, false
	}
	if !e.forever && c.now().After(e.expiresAt) {
		delete(c.entries, dir)
		return State{}, false
	}
	return e.state, true
}

// Set implements Cache.
func (c *TTLCache) Set(dir string, st State) {
	if c.mode == CacheNever {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{state: st, forever: c.mode == CacheForever}
	if c.mode == CacheDuration {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[dir] = e
}

// Invalidate implements Cache.
func (c *TTLCache) Invalidate(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, dir)
}
