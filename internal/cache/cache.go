// Package cache provides the in-memory TTL cache shared by the collectors.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long collector results stay fresh.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries bounds a cache when no size is given.
const DefaultMaxEntries = 128

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTL is a thread-safe in-memory cache whose entries expire after a fixed
// TTL. When full, Set drops expired entries first and then the entry closest
// to expiry.
type TTL[V any] struct {
	mu         sync.RWMutex
	entries    map[string]*entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New returns a cache with the given TTL and capacity. Zero values select
// DefaultTTL and DefaultMaxEntries.
func New[V any](ttl time.Duration, maxEntries int) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTL[V]{
		entries:    make(map[string]*entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached value for key if it has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.makeRoom()
	}
	c.entries[key] = &entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// makeRoom frees at least one slot. Caller holds the write lock.
func (c *TTL[V]) makeRoom() {
	if c.evictLocked() > 0 {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}

// Invalidate removes key from the cache.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Evict removes all expired entries and returns how many were removed.
func (c *TTL[V]) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked()
}

func (c *TTL[V]) evictLocked() int {
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartEviction evicts expired entries every interval until ctx is done.
func (c *TTL[V]) StartEviction(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval == 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Evict(); n > 0 && logger != nil {
					logger.Debug("cache eviction", zap.Int("evicted", n))
				}
			}
		}
	}()
}
