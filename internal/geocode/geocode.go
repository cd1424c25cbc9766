// Package geocode is the HTTP client for a Nominatim-compatible geocoder
// (GET ?q=<address>&format=json&limit=1). Calls go through retry, a
// circuit breaker and an optional fallback endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hazyhaar/vitrine/connectivity"
	"github.com/hazyhaar/vitrine/geocache"
	"github.com/hazyhaar/vitrine/horosafe"
)

// ErrNoResult is returned when the geocoder knows no place for the address.
var ErrNoResult = errors.New("geocode: no result")

// ErrCircuitOpen is returned while the geocoder is considered down.
type ErrCircuitOpen = connectivity.ErrCircuitOpen

// Config for creating a Client.
type Config struct {
	Endpoint         string
	FallbackEndpoint string
	Timeout          time.Duration
	MaxRetries       int
	UserAgent        string
	HTTPClient       *http.Client
	Breaker          *connectivity.CircuitBreaker
	Logger           *slog.Logger
}

// Client resolves addresses. It implements geocache.Geocoder.
type Client struct {
	call   connectivity.Handler
	logger *slog.Logger
}

// New validates cfg and builds the call chain.
func New(cfg Config) (*Client, error) {
	if err := horosafe.ValidateURL(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("geocode: endpoint: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vitrine/1.0"
	}
	if cfg.Breaker == nil {
		cfg.Breaker = connectivity.NewCircuitBreaker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := connectivity.HTTPOptions{Client: cfg.HTTPClient, UserAgent: cfg.UserAgent}

	var fallback connectivity.Handler
	if cfg.FallbackEndpoint != "" {
		if err := horosafe.ValidateURL(cfg.FallbackEndpoint); err != nil {
			return nil, fmt.Errorf("geocode: fallback endpoint: %w", err)
		}
		fallback = connectivity.Timeout(cfg.Timeout)(search(cfg.FallbackEndpoint, opts))
	}

	call := connectivity.Chain(
		connectivity.Logging("geocoder", cfg.Logger),
		connectivity.WithFallback(fallback, "geocoder", cfg.Logger),
		connectivity.WithCircuitBreaker(cfg.Breaker, "geocoder"),
		connectivity.WithRetry(cfg.MaxRetries, 200*time.Millisecond, cfg.Logger),
		connectivity.Timeout(cfg.Timeout),
	)(search(cfg.Endpoint, opts))

	return &Client{call: call, logger: cfg.Logger}, nil
}

// search adapts an HTTP GET to a Handler taking the address as payload.
func search(endpoint string, opts connectivity.HTTPOptions) connectivity.Handler {
	get := connectivity.HTTPGet(opts)
	return func(ctx context.Context, address []byte) ([]byte, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", string(address))
		q.Set("format", "json")
		q.Set("limit", "1")
		u.RawQuery = q.Encode()
		return get(ctx, []byte(u.String()))
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves address to its first match.
func (c *Client) Geocode(ctx context.Context, address string) (geocache.Coordinates, error) {
	body, err := c.call(ctx, []byte(address))
	if err != nil {
		return geocache.Coordinates{}, fmt.Errorf("geocode: %w", err)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return geocache.Coordinates{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(places) == 0 {
		return geocache.Coordinates{}, ErrNoResult
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if err := errors.Join(errLat, errLon); err != nil {
		return geocache.Coordinates{}, fmt.Errorf("geocode: bad coordinates: %w", err)
	}
	return geocache.Coordinates{Lat: lat, Lon: lon, DisplayName: places[0].DisplayName}, nil
}
