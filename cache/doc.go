// Package cache provides the tiered caching layer the preference, metadata
// and sync services are built on.
//
// A Cache composes two tiers. The first is a bounded in-process map with
// lazy expiry; when it fills, the entry with the oldest creation time is
// evicted. The second is a shared remote store, either the embedded
// sturdyc-backed store or Redis, that makes writes visible to other
// processes. Reads check the in-process tier first and repopulate it from
// the remote tier on a hit there; writes go to both tiers eagerly.
//
// Values served from the in-process tier keep their original Go type.
// Values promoted from the remote tier arrive as Raw and are decoded on
// demand:
//
//	schema, err := cache.GetOrSetAs(ctx, c, key, ttl,
//		func(ctx context.Context) (metadata.Schema, error) {
//			return source.GetSchema(ctx, "Task")
//		})
//
// Keys are built with a KeyBuilder so every entry shares a namespace prefix:
//
//	keys := cache.NewKeyBuilder("column_mgmt")
//	key := keys.Build("user_preferences", user, recordType)
//
// The namespace prefix is what makes DeletePattern and ClearAll safe on a
// shared store; neither ever touches keys outside the namespace.
//
// Construct the default single-process cache with NewCacheService:
//
//	c, err := cache.NewCacheService(cache.DefaultConfig(), logger)
//
// Multi-process deployments should wire a shared Redis store through the
// pkg/di container instead.
package cache
