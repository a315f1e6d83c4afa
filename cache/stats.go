package cache

import "github.com/goliatone/go-preference-cache/internal/cacheinfra"

// Stats is a point-in-time snapshot of a Cache instance's counters. Counters
// are owned by the instance they describe; two Cache values never share them.
// HitRate on the snapshot returns hits / (hits + misses).
type Stats = cacheinfra.Stats
