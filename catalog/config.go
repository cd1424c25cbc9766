package catalog

import "github.com/hazyhaar/vitrine/internal/config"

// Config is the vitrine configuration file.
type (
	Config          = config.Config
	OriginsConfig   = config.OriginsConfig
	SelectionConfig = config.SelectionConfig
	CacheConfig     = config.CacheConfig
	BrowserConfig   = config.BrowserConfig
	GeocoderConfig  = config.GeocoderConfig
	MapConfig       = config.MapConfig
)

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) { return config.LoadFile(path) }

// ParseConfig decodes and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) { return config.Parse(data) }
