// Package config loads the vitrine YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/vitrine/horosafe"
)

// Config is the top-level configuration.
type Config struct {
	Listen         string          `yaml:"listen"`
	Origins        OriginsConfig   `yaml:"origins"`
	CatalogURL     string          `yaml:"catalog_url"`
	CaptureTimeout time.Duration   `yaml:"capture_timeout"`
	Selection      SelectionConfig `yaml:"selection"`
	Cache          CacheConfig     `yaml:"cache"`
	Database       DatabaseConfig  `yaml:"database"`
	Browser        BrowserConfig   `yaml:"browser"`
	Geocoder       GeocoderConfig  `yaml:"geocoder"`
	Map            MapConfig       `yaml:"map"`
	Artifact       ArtifactConfig  `yaml:"artifact"`
}

// OriginsConfig names the two execution contexts.
type OriginsConfig struct {
	Controller string `yaml:"controller"`
	Embedded   string `yaml:"embedded"` // defaults to the origin of catalog_url
}

// SelectionConfig controls the selection protocol.
type SelectionConfig struct {
	MaxItems      int    `yaml:"max_items"`
	ItemAttr      string `yaml:"item_attr"`
	SelectedClass string `yaml:"selected_class"`
}

// CacheConfig controls the address-resolution caches.
type CacheConfig struct {
	DataTTL       time.Duration `yaml:"data_ttl"`
	ResourceTTL   time.Duration `yaml:"resource_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisAddr     string        `yaml:"redis_addr"` // empty: memory only
	RedisPrefix   string        `yaml:"redis_prefix"`
}

// DatabaseConfig locates the item store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BrowserConfig controls Chrome. When disabled the catalog is fetched over
// HTTP and handled by the in-process bridge, and maps are not rendered.
type BrowserConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Remote           string   `yaml:"remote"`
	Stealth          string   `yaml:"stealth"` // headless | headful
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// GeocoderConfig points at a Nominatim-compatible search endpoint.
type GeocoderConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	FallbackEndpoint string        `yaml:"fallback_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	UserAgent        string        `yaml:"user_agent"`
}

// MapConfig controls map rendering.
type MapConfig struct {
	TileURL string `yaml:"tile_url"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Zoom    int    `yaml:"zoom"`
}

// ArtifactConfig selects the artifact generator.
type ArtifactConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty: log only
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Origins.Embedded == "" && c.CatalogURL != "" {
		origin, err := horosafe.OriginOf(c.CatalogURL)
		if err != nil {
			return fmt.Errorf("config: catalog_url: %w", err)
		}
		c.Origins.Embedded = origin
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 2 * time.Second
	}
	if c.Selection.MaxItems <= 0 {
		c.Selection.MaxItems = 5000
	}
	if c.Selection.ItemAttr == "" {
		c.Selection.ItemAttr = "data-property-id"
	}
	if c.Selection.SelectedClass == "" {
		c.Selection.SelectedClass = "property-selected"
	}
	if c.Cache.DataTTL <= 0 {
		c.Cache.DataTTL = 24 * time.Hour
	}
	if c.Cache.ResourceTTL <= 0 {
		c.Cache.ResourceTTL = 30 * time.Minute
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = 10 * time.Minute
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = "vitrine:geo:"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/vitrine.db"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Geocoder.Endpoint == "" {
		c.Geocoder.Endpoint = "https://nominatim.openstreetmap.org/search"
	}
	if c.Geocoder.Timeout <= 0 {
		c.Geocoder.Timeout = 10 * time.Second
	}
	if c.Geocoder.MaxRetries < 0 {
		c.Geocoder.MaxRetries = 0
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = "vitrine/1.0"
	}
	if c.Map.TileURL == "" {
		c.Map.TileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	}
	if c.Map.Width <= 0 {
		c.Map.Width = 800
	}
	if c.Map.Height <= 0 {
		c.Map.Height = 600
	}
	if c.Map.Zoom <= 0 {
		c.Map.Zoom = 16
	}
	return nil
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if err := horosafe.ValidateOrigin(c.Origins.Controller); err != nil {
		errs = append(errs, fmt.Errorf("origins.controller: %w", err))
	}
	if err := horosafe.ValidateOrigin(c.Origins.Embedded); err != nil {
		errs = append(errs, fmt.Errorf("origins.embedded: %w", err))
	}
	if c.CatalogURL != "" {
		if err := horosafe.ValidateURL(c.CatalogURL); err != nil {
			errs = append(errs, fmt.Errorf("catalog_url: %w", err))
		}
	}
	if c.Origins.Controller != "" && c.Origins.Controller == c.Origins.Embedded {
		errs = append(errs, errors.New("origins: controller and embedded must differ"))
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("browser.stealth: unknown mode %q", c.Browser.Stealth))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
