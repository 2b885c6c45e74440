package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

// TTL is a key→value store with per-entry expiry. An entry is valid iff
// now-storedAt < ttl; expired entries read as absent but are retained so
// Stale can serve last-known-good data when every upstream is down. They
// are dropped when overwritten or cleared; practical key cardinality is
// bounded by the number of distinct (kind, network) fingerprints in use,
// so no size cap is enforced.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
}

func New[K comparable, V any]() *TTL[K, V] {
	return &TTL[K, V]{items: make(map[K]entry[V]), now: time.Now}
}

// Get returns the value for key if it is still within its TTL.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || c.now().Sub(e.storedAt) >= e.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Stale returns the last stored value for key regardless of expiry,
// along with when it was stored.
func (c *TTL[K, V]) Stale(key K) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

// Set stores value under key, unconditionally replacing any prior entry.
func (c *TTL[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, storedAt: c.now(), ttl: ttl}
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}

// Len reports the number of stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
