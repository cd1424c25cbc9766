package geocache

import "context"

// MemoryStore adapts a DataCache to CoordinateStore.
type MemoryStore struct {
	cache *DataCache[Coordinates]
}

// NewMemoryStore wraps c.
func NewMemoryStore(c *DataCache[Coordinates]) *MemoryStore {
	return &MemoryStore{cache: c}
}

func (m *MemoryStore) Lookup(_ context.Context, key string) (Coordinates, bool) {
	return m.cache.Get(key)
}

func (m *MemoryStore) Store(_ context.Context, key string, c Coordinates) {
	m.cache.Set(key, c)
}

// Tiered reads the local tier first, then the shared one, and fills the
// local tier on a shared hit. Writes go to both.
type Tiered struct {
	Local  CoordinateStore
	Shared CoordinateStore
}

func (t Tiered) Lookup(ctx context.Context, key string) (Coordinates, bool) {
	if c, ok := t.Local.Lookup(ctx, key); ok {
		return c, true
	}
	c, ok := t.Shared.Lookup(ctx, key)
	if ok {
		t.Local.Store(ctx, key, c)
	}
	return c, ok
}

func (t Tiered) Store(ctx context.Context, key string, c Coordinates) {
	t.Local.Store(ctx, key, c)
	t.Shared.Store(ctx, key, c)
}
