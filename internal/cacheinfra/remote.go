package cacheinfra

import (
	"context"
	"time"
)

// RemoteStore is the shared tier behind the in-process cache. Payloads are
// opaque to the store; expiry metadata travels inside them and is enforced by
// the tiered layer, so a store that outlives a payload's TTL never serves it
// as live.
type RemoteStore interface {
	// Get returns the payload stored at key, or false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the payload. The ttl is a retention hint; stores that cannot
	// honor per-entry TTLs may keep the payload longer.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds amount to the counter at key and returns the
	// new value. The ttl applies when the counter is created.
	Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
}

// PatternDeleter is implemented by remote stores that can enumerate their own
// keys. When available, the tiered cache uses it to extend pattern deletion to
// remote keys written by other processes.
type PatternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) error
}
