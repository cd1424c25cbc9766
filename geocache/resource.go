package geocache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Disposable is a live resource released by Dispose.
type Disposable interface {
	Dispose() error
}

// Handle constrains ResourceCache values. Handles are compared to detect
// an overwrite with the same resource.
type Handle interface {
	comparable
	Disposable
}

// ResourceCache is a TTL cache of disposable handles. Callers of Get may
// use the handle immediately but never dispose it; only the cache does.
type ResourceCache[V Handle] struct {
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]entry[V]
}

// ResourceConfig for creating a ResourceCache.
type ResourceConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// NewResourceCache creates a ResourceCache. Start its sweep with Run.
func NewResourceCache[V Handle](cfg ResourceConfig) *ResourceCache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultResourceTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ResourceCache[V]{
		ttl:      cfg.TTL,
		interval: cfg.SweepInterval,
		now:      cfg.Now,
		logger:   cfg.Logger,
		entries:  make(map[string]entry[V]),
	}
}

// Get returns the handle for key. An expired entry is disposed, removed
// and reported as a miss.
func (c *ResourceCache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	if e.expired(c.now(), c.ttl) {
		// Unlinked before Dispose runs so no reader can obtain a handle
		// that is being torn down.
		delete(c.entries, key)
		c.mu.Unlock()
		c.dispose(key, e.value)
		return zero, false
	}
	c.mu.Unlock()
	return e.value, true
}

// Set stores value under key. A different handle previously stored under
// key is disposed.
func (c *ResourceCache[V]) Set(key string, value V) {
	c.mu.Lock()
	old, had := c.entries[key]
	c.entries[key] = entry[V]{value: value, createdAt: c.now()}
	c.mu.Unlock()

	if had && old.value != value {
		c.dispose(key, old.value)
	}
}

// Sweep disposes and removes every expired entry and returns how many
// were removed. Entries leave the map under the lock first; Dispose then
// runs outside it, once per removed handle.
func (c *ResourceCache[V]) Sweep() int {
	now := c.now()
	victims := make(map[string]V)

	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now, c.ttl) {
			victims[key] = e.value
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for key, v := range victims {
		c.dispose(key, v)
	}
	return len(victims)
}

// Clear disposes and removes every entry.
func (c *ResourceCache[V]) Clear() {
	c.mu.Lock()
	victims := c.entries
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()

	for key, e := range victims {
		c.dispose(key, e.value)
	}
}

// Len counts stored entries, expired or not.
func (c *ResourceCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps on a fixed interval until ctx ends. It does not clear the
// cache on exit.
func (c *ResourceCache[V]) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.logger.Debug("geocache: sweeper started", "interval", c.interval, "ttl", c.ttl)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Info("geocache: swept expired resources", "removed", n)
			}
		}
	}
}

// dispose releases v. Failures are logged; the entry is already gone.
func (c *ResourceCache[V]) dispose(key string, v V) {
	if err := v.Dispose(); err != nil {
		c.logger.Warn("geocache: dispose failed", "key", key, "error", err)
	}
}
