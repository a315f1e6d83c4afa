package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TieredCache composes the bounded in-process tier with a RemoteStore. Reads
// check the in-process tier first and repopulate it from the remote tier on a
// hit there; writes go to both tiers eagerly. Values promoted from the remote
// tier surface as Raw and carry the original write's expiry, so a value never
// outlives the TTL it was stored with no matter which tier serves it.
type TieredCache struct {
	cfg    Config
	t1     *tierOne
	remote RemoteStore
	log    zerolog.Logger

	group singleflight.Group

	hits    *xsync.Counter
	misses  *xsync.Counter
	sets    *xsync.Counter
	deletes *xsync.Counter

	// keys records every key written through this instance so DeletePattern
	// can reach remote entries even when the store cannot enumerate keys.
	keys *xsync.MapOf[string, struct{}]

	now func() time.Time
}

// NewTieredCache validates cfg and builds a TieredCache over remote.
func NewTieredCache(cfg Config, remote RemoteStore, logger zerolog.Logger) (*TieredCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, &ConfigError{Field: "RemoteStore", Message: "must not be nil"}
	}

	return &TieredCache{
		cfg:     cfg,
		t1:      newTierOne(cfg.Tier1Capacity),
		remote:  remote,
		log:     logger.With().Str("component", "cache").Logger(),
		hits:    xsync.NewCounter(),
		misses:  xsync.NewCounter(),
		sets:    xsync.NewCounter(),
		deletes: xsync.NewCounter(),
		keys:    xsync.NewMapOf[string, struct{}](),
		now:     time.Now,
	}, nil
}

// Get returns the cached value for key, or false when absent, expired, or
// unreadable. Remote failures degrade to a miss.
func (c *TieredCache) Get(ctx context.Context, key string) (any, bool) {
	value, ok := c.lookup(ctx, key, true)
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return value, ok
}

// lookup resolves key across both tiers. When promote is set, remote hits are
// written into the in-process tier with their original lifetime.
func (c *TieredCache) lookup(ctx context.Context, key string, promote bool) (any, bool) {
	if e, ok := c.t1.get(key); ok {
		return e.value, true
	}

	payload, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("remote get failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	raw, createdAt, expiresAt, err := decodeEnvelope(key, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		if delErr := c.remote.Delete(ctx, key); delErr != nil {
			c.log.Warn().Err(delErr).Str("key", key).Msg("remote delete failed")
		}
		return nil, false
	}
	if !c.now().Before(expiresAt) {
		if delErr := c.remote.Delete(ctx, key); delErr != nil {
			c.log.Warn().Err(delErr).Str("key", key).Msg("remote delete failed")
		}
		return nil, false
	}

	if promote {
		c.t1.set(key, raw, createdAt, expiresAt)
	}
	return raw, true
}

// Set writes the value to both tiers. Serialization failures leave both tiers
// untouched; a remote write failure is returned after the in-process tier has
// been updated, so the local process still sees its own write.
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ttl = c.effectiveTTL(ttl)
	createdAt := c.now()
	expiresAt := createdAt.Add(ttl)

	payload, err := encodeEnvelope(value, createdAt, expiresAt)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("value not serializable")
		return fmt.Errorf("encode %q: %w", key, err)
	}

	c.t1.set(key, value, createdAt, expiresAt)
	c.keys.Store(key, struct{}{})
	c.sets.Inc()

	if err := c.remote.Set(ctx, key, payload, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("remote set failed")
		return fmt.Errorf("remote set %q: %w", key, err)
	}
	return nil
}

// Delete removes the key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	c.t1.delete(key)
	c.keys.Delete(key)
	c.deletes.Inc()

	if err := c.remote.Delete(ctx, key); err != nil {
		return fmt.Errorf("remote delete %q: %w", key, err)
	}
	return nil
}

// DeletePattern removes matching keys from the in-process tier, from the
// remote tier for keys written through this instance, and from the remote
// tier at large when the store supports key enumeration.
func (c *TieredCache) DeletePattern(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	removed := c.t1.deletePattern(pattern)

	var errs []error
	c.keys.Range(func(key string, _ struct{}) bool {
		if ok, _ := path.Match(pattern, key); ok {
			c.keys.Delete(key)
			if err := c.remote.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
			removed++
		}
		return true
	})

	if pd, ok := c.remote.(PatternDeleter); ok {
		if err := pd.DeletePattern(ctx, pattern); err != nil {
			errs = append(errs, err)
		}
	}

	c.deletes.Add(int64(removed))
	return errors.Join(errs...)
}

// Exists reports whether key resolves to a live value. It does not promote
// remote entries and does not count toward hit or miss statistics.
func (c *TieredCache) Exists(ctx context.Context, key string) bool {
	_, ok := c.lookup(ctx, key, false)
	return ok
}

// GetOrSet returns the cached value for key, computing and caching it through
// supplier on miss. Concurrent callers for the same uncached key share one
// supplier invocation. A failed cache write after a successful supplier run is
// logged; the computed value is still returned.
func (c *TieredCache) GetOrSet(ctx context.Context, key string, supplier Supplier, ttl time.Duration) (any, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight lock: a concurrent caller may have
		// populated the key while we waited.
		if value, ok := c.Get(ctx, key); ok {
			return value, nil
		}

		value, err := supplier(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(ctx, key, value, ttl); setErr != nil {
			c.log.Warn().Err(setErr).Str("key", key).Msg("caching computed value failed")
		}
		return value, nil
	})
	return value, err
}

// Increment delegates to the remote tier, which owns counter atomicity, and
// drops any resident copy so subsequent reads see the remote value.
func (c *TieredCache) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	value, err := c.remote.Increment(ctx, key, amount, c.effectiveTTL(ttl))
	if err != nil {
		return 0, fmt.Errorf("increment %q: %w", key, err)
	}
	c.t1.delete(key)
	return value, nil
}

// CleanupExpired sweeps the in-process tier and returns the number of entries
// removed. Remote tiers expire their own entries.
func (c *TieredCache) CleanupExpired(_ context.Context) int {
	return c.t1.sweep()
}

// ClearAll removes every entry in this instance's namespace. With no
// namespace configured it clears everything reachable.
func (c *TieredCache) ClearAll(ctx context.Context) error {
	pattern := "*"
	if c.cfg.Namespace != "" {
		pattern = c.cfg.Namespace + "*"
	}

	err := c.DeletePattern(ctx, pattern)
	c.t1.clear()
	return err
}

// Stats returns a snapshot of this instance's counters.
func (c *TieredCache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Value(),
		Misses:          c.misses.Value(),
		Sets:            c.sets.Value(),
		Deletes:         c.deletes.Value(),
		ResidentKeys:    c.t1.len(),
		ExpiredResident: c.t1.expiredResident(),
	}
}

// ResetStats zeroes this instance's counters.
func (c *TieredCache) ResetStats() {
	c.hits.Reset()
	c.misses.Reset()
	c.sets.Reset()
	c.deletes.Reset()
}

func (c *TieredCache) effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.cfg.DefaultTTL
	}
	return ttl
}
