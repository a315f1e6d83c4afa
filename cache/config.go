package cache

import (
	"time"

	"github.com/goliatone/go-preference-cache/internal/cacheinfra"
	"github.com/rs/zerolog"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// Namespace prefixes every key written through this cache instance.
	Namespace string

	// Tier1Capacity bounds the in-process tier. When full, the entry with the
	// oldest creation time is evicted to make room.
	Tier1Capacity int

	// DefaultTTL applies to Set/GetOrSet calls that pass a zero ttl.
	DefaultTTL time.Duration

	// RemoteCapacity bounds the embedded remote store used when no shared
	// store is configured. Ignored for external stores such as Redis.
	RemoteCapacity int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the default Cache implementation: the bounded
// in-process tier backed by an embedded sturdyc remote store. Hosts that run
// multiple processes should wire a shared store instead (see pkg/di).
func NewCacheService(cfg Config, logger zerolog.Logger) (Cache, error) {
	internal := cfg.toInternal()
	if err := internal.Validate(); err != nil {
		return nil, err
	}
	remote := cacheinfra.NewMemoryStore(internal.RemoteCapacity, internal.DefaultTTL)
	return cacheinfra.NewTieredCache(internal, remote, logger)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Namespace:      c.Namespace,
		Tier1Capacity:  c.Tier1Capacity,
		DefaultTTL:     c.DefaultTTL,
		RemoteCapacity: c.RemoteCapacity,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Namespace:      cfg.Namespace,
		Tier1Capacity:  cfg.Tier1Capacity,
		DefaultTTL:     cfg.DefaultTTL,
		RemoteCapacity: cfg.RemoteCapacity,
	}
}
