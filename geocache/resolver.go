package geocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Coordinates is a resolved address.
type Coordinates struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName,omitempty"`
}

// MapHandle is a live rendered map.
type MapHandle interface {
	Disposable
	// PNG renders the current view. The handle stays owned by the cache.
	PNG(ctx context.Context) ([]byte, error)
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// Renderer produces a live map centred on c.
type Renderer interface {
	Render(ctx context.Context, c Coordinates) (MapHandle, error)
}

// CoordinateStore is the data cache seen by the Resolver. Implementations
// degrade failures to misses.
type CoordinateStore interface {
	Lookup(ctx context.Context, key string) (Coordinates, bool)
	Store(ctx context.Context, key string, c Coordinates)
}

// ErrEmptyAddress is returned for an address that normalizes to "".
var ErrEmptyAddress = errors.New("geocache: empty address")

// ErrNoRenderer is returned by Resolver.Map when no renderer is configured.
var ErrNoRenderer = errors.New("geocache: no map renderer")

// Resolver answers address lookups from the caches before calling the
// geocoder or renderer.
type Resolver struct {
	geocoder Geocoder
	renderer Renderer
	coords   CoordinateStore
	maps     *ResourceCache[MapHandle]
	renders  singleflight.Group
	logger   *slog.Logger
}

// ResolverConfig for creating a Resolver. Renderer and Maps may be nil
// when map rendering is disabled.
type ResolverConfig struct {
	Geocoder Geocoder
	Renderer Renderer
	Coords   CoordinateStore
	Maps     *ResourceCache[MapHandle]
	Logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil Coords store means an in-memory
// DataCache with the default TTL.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Coords == nil {
		cfg.Coords = NewMemoryStore(NewDataCache[Coordinates](DefaultDataTTL, nil))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer != nil && cfg.Maps == nil {
		cfg.Maps = NewResourceCache[MapHandle](ResourceConfig{Logger: cfg.Logger})
	}
	return &Resolver{
		geocoder: cfg.Geocoder,
		renderer: cfg.Renderer,
		coords:   cfg.Coords,
		maps:     cfg.Maps,
		logger:   cfg.Logger,
	}
}

// Coordinates resolves address through the data cache.
func (r *Resolver) Coordinates(ctx context.Context, address string) (Coordinates, error) {
	key := NormalizeKey(address)
	if key == "" {
		return Coordinates{}, ErrEmptyAddress
	}
	if c, ok := r.coords.Lookup(ctx, key); ok {
		return c, nil
	}
	c, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocache: geocode %q: %w", key, err)
	}
	r.coords.Store(ctx, key, c)
	return c, nil
}

// Map returns a live map for address through the resource cache.
// Concurrent misses on the same key share one render, so a handle returned
// here is never replaced and disposed by a racing caller.
func (r *Resolver) Map(ctx context.Context, address string) (MapHandle, error) {
	if r.renderer == nil {
		return nil, ErrNoRenderer
	}
	key := NormalizeKey(address)
	if h, ok := r.maps.Get(key); ok {
		return h, nil
	}
	v, err, _ := r.renders.Do(key, func() (any, error) {
		// A render that finished between the miss above and this flight
		// already stored its handle.
		if h, ok := r.maps.Get(key); ok {
			return h, nil
		}
		c, err := r.Coordinates(ctx, address)
		if err != nil {
			return nil, err
		}
		h, err := r.renderer.Render(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("geocache: render %q: %w", key, err)
		}
		r.maps.Set(key, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(MapHandle), nil
}

// Maps exposes the resource cache so its sweep can be run.
func (r *Resolver) Maps() *ResourceCache[MapHandle] { return r.maps }
