package cacheinfra

import "time"

// Config holds the configuration for the tiered cache.
type Config struct {
	// Namespace prefixes every key written through the cache. Used only for
	// ClearAll scoping; key construction itself happens in the cache package.
	Namespace string

	// Tier1Capacity defines the maximum number of entries the in-process tier
	// can hold. Must be greater than 0.
	Tier1Capacity int

	// DefaultTTL is the time-to-live applied when callers pass a zero ttl.
	// Must be greater than 0.
	DefaultTTL time.Duration

	// RemoteCapacity bounds the embedded remote store, when one is used.
	RemoteCapacity int
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
// Services layered on top pass their own TTL per call; the default only
// covers writes that do not.
func DefaultConfig() Config {
	return Config{
		Namespace:      "column_mgmt",
		Tier1Capacity:  1000,
		DefaultTTL:     5 * time.Minute,
		RemoteCapacity: 10000,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Tier1Capacity <= 0 {
		return &ConfigError{Field: "Tier1Capacity", Message: "must be greater than 0"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.RemoteCapacity < 0 {
		return &ConfigError{Field: "RemoteCapacity", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
