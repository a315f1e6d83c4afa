package cacheinfra

import "context"

// Supplier computes a value on cache miss. See the cache package for the
// public contract; the type lives here so the implementation and the public
// interface share one definition.
type Supplier func(ctx context.Context) (any, error)

// Raw is a remote-tier payload that has not been decoded into its concrete
// type yet.
type Raw []byte

// Stats is a point-in-time snapshot of one cache instance's counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64

	// ResidentKeys is the number of entries currently held by the in-process
	// tier, including entries that have expired but not yet been swept.
	ResidentKeys int

	// ExpiredResident is the number of in-process entries past their TTL that
	// are still awaiting lazy eviction or a cleanup sweep.
	ExpiredResident int
}

// HitRate returns hits / (hits + misses), or 0 when nothing has been read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
