package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-preference-cache/internal/cacheinfra"
	"github.com/vmihailenco/msgpack/v5"
)

// Supplier is the function signature Cache expects when computing a value on miss.
type Supplier = cacheinfra.Supplier

// ErrInvalidResultType is returned by As / GetOrSetAs when a cached value cannot
// be converted to the requested type.
var ErrInvalidResultType = errors.New("cache: cached value does not match requested type")

// Cache exposes the tiered caching operations used by the preference, metadata
// and sync services. Implementations compose an in-process bounded tier with a
// shared remote tier; Get never fails on a miss or a corrupt remote payload,
// it degrades to "absent".
type Cache interface {
	// Get returns the cached value for key, or false when absent or expired.
	// Values repopulated from the remote tier are returned as Raw and must be
	// decoded by the caller (see As / GetOrSetAs).
	Get(ctx context.Context, key string) (any, bool)

	// Set writes the value to both tiers. A ttl of zero uses the configured
	// default. Serialization failures are logged and returned without touching
	// either tier.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes the key from both tiers.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching the glob pattern from the
	// in-process tier, and from the remote tier for keys written through this
	// instance. Remote deletion beyond that is best-effort and depends on the
	// backing store supporting key enumeration.
	DeletePattern(ctx context.Context, pattern string) error

	// Exists reports whether key resolves to a live value.
	Exists(ctx context.Context, key string) bool

	// GetOrSet returns the cached value for key, or runs supplier, caches the
	// result and returns it. Concurrent callers for the same uncached key share
	// a single supplier invocation. Supplier errors are returned uncached.
	GetOrSet(ctx context.Context, key string, supplier Supplier, ttl time.Duration) (any, error)

	// Increment atomically adds amount to the counter stored at key in the
	// remote tier and returns the new value. Counter keys are written by the
	// remote store directly and are not readable through Get on other processes.
	Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)

	// CleanupExpired sweeps the in-process tier, removing entries whose TTL has
	// passed, and returns the number removed. Callers schedule this; the cache
	// never runs background work of its own.
	CleanupExpired(ctx context.Context) int

	// ClearAll removes every entry reachable through this instance.
	ClearAll(ctx context.Context) error

	// Stats returns a snapshot of this instance's counters.
	Stats() Stats

	// ResetStats zeroes this instance's counters.
	ResetStats()
}

// Raw is a remote-tier payload that has not been decoded into its concrete
// type yet. Get returns Raw for values that were repopulated from the shared
// tier; As and GetOrSetAs transparently decode it.
type Raw = cacheinfra.Raw

// As converts a value returned by Cache.Get to T, decoding Raw payloads as
// needed. It returns ErrInvalidResultType when the value is neither a T nor a
// payload that decodes into one.
func As[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	if raw, ok := v.(Raw); ok {
		var out T
		if err := msgpack.Unmarshal(raw, &out); err != nil {
			var zero T
			return zero, errors.Join(ErrInvalidResultType, err)
		}
		return out, nil
	}
	var zero T
	return zero, ErrInvalidResultType
}

// GetOrSetAs is a type-safe wrapper around Cache.GetOrSet. A cached value that
// fails to decode into T is treated as a miss and recomputed through supplier.
func GetOrSetAs[T any](ctx context.Context, c Cache, key string, ttl time.Duration, supplier func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(ctx, key); ok {
		if typed, err := As[T](v); err == nil {
			return typed, nil
		}
		// Undecodable resident value: drop it and fall through to the supplier.
		_ = c.Delete(ctx, key)
	}

	result, err := c.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return supplier(ctx)
	}, ttl)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](result)
}
