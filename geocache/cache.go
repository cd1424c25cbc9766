// Package geocache fronts the two expensive address lookups, geocoding and
// map rendering, with time-boxed caches.
//
// DataCache holds plain values and simply forgets them after the TTL.
// ResourceCache holds live handles that must be released: every removal,
// whether by lazy expiry, sweep, overwrite or Clear, calls Dispose first.
// Both take an injectable clock.
package geocache

import (
	"strings"
	"sync"
	"time"
)

// Default lifetimes.
const (
	DefaultDataTTL       = 24 * time.Hour
	DefaultResourceTTL   = 30 * time.Minute
	DefaultSweepInterval = 10 * time.Minute
)

// NormalizeKey canonicalises an address: trimmed, lower-cased, inner
// whitespace collapsed.
func NormalizeKey(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// expired reports whether more than ttl has elapsed since creation.
// An entry exactly ttl old is still valid.
func (e entry[V]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.createdAt) > ttl
}

// DataCache is a mutex-guarded TTL map with lazy purge on access.
type DataCache[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
}

// NewDataCache creates a DataCache. A nil now means time.Now.
func NewDataCache[V any](ttl time.Duration, now func() time.Time) *DataCache[V] {
	if ttl <= 0 {
		ttl = DefaultDataTTL
	}
	if now == nil {
		now = time.Now
	}
	return &DataCache[V]{ttl: ttl, now: now, entries: make(map[string]entry[V])}
}

// Get returns the value for key. An expired entry is deleted and reported
// as a miss.
func (c *DataCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.now(), c.ttl) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, overwriting any previous entry.
func (c *DataCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, createdAt: c.now()}
}

// Delete removes key.
func (c *DataCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *DataCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len counts stored entries, expired or not.
func (c *DataCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
