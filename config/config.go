// Package config loads the server's startup configuration from a TOML
// file. It does not validate the values; the flat storage engine checks
// its geometry constraints when flatstore.Init runs.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/Mactus/memcached/flatstore"
)

// Config is the on-disk shape of the server's configuration file.
type Config struct {
	Listen string `toml:"listen"`

	MaxBytes       int64 `toml:"max_bytes"`
	LargeChunkSz   int64 `toml:"large_chunk_sz"`
	SmallChunkSz   int64 `toml:"small_chunk_sz"`
	IncrementDelta int64 `toml:"increment_delta"`
	KeyMaxLength   int   `toml:"key_max_length"`
	MaxItemSize    int64 `toml:"max_item_size"`
	LRUSearchDepth int   `toml:"lru_search_depth"`
	UpdateInterval int64 `toml:"update_interval"`

	LogLevel string `toml:"log_level"`
}

// Default returns a Config whose geometry matches
// flatstore.DefaultGeometry, with a 64 MiB region and INFO logging.
func Default() Config {
	geo := flatstore.DefaultGeometry()
	return Config{
		Listen:         "127.0.0.1:11211",
		MaxBytes:       64 << 20,
		LargeChunkSz:   geo.LargeChunkSz,
		SmallChunkSz:   geo.SmallChunkSz,
		IncrementDelta: geo.IncrementDelta,
		KeyMaxLength:   geo.KeyMaxLength,
		MaxItemSize:    geo.MaxItemSize,
		LRUSearchDepth: geo.LRUSearchDepth,
		UpdateInterval: geo.UpdateInterval,
		LogLevel:       "INFO",
	}
}

// Load decodes path as TOML on top of Default's values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Geometry projects the engine-relevant fields into a flatstore.Geometry.
func (c Config) Geometry() flatstore.Geometry {
	geo := flatstore.DefaultGeometry()
	geo.LargeChunkSz = c.LargeChunkSz
	geo.SmallChunkSz = c.SmallChunkSz
	geo.IncrementDelta = c.IncrementDelta
	geo.KeyMaxLength = c.KeyMaxLength
	geo.MaxItemSize = c.MaxItemSize
	geo.LRUSearchDepth = c.LRUSearchDepth
	geo.UpdateInterval = c.UpdateInterval
	return geo
}
