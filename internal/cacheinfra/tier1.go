package cacheinfra

import (
	"path"
	"sync"
	"time"
)

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// tierOne is the bounded in-process tier. Expired entries are removed lazily
// on access or by an explicit sweep; when the tier is full, the entry with the
// oldest creation time is evicted regardless of how recently it was read.
// Insertion-time age beats recency here because preference documents are
// written rarely and the oldest copy is the one most likely to be stale.
type tierOne struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]entry
	now      func() time.Time
}

func newTierOne(capacity int) *tierOne {
	return &tierOne{
		capacity: capacity,
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

func (t *tierOne) get(key string) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return entry{}, false
	}
	if !t.now().Before(e.expiresAt) {
		delete(t.entries, key)
		return entry{}, false
	}
	return e, true
}

func (t *tierOne) set(key string, value any, createdAt, expiresAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.capacity {
		t.evictOldestLocked()
	}
	t.entries[key] = entry{value: value, createdAt: createdAt, expiresAt: expiresAt}
}

// evictOldestLocked removes the entry with the oldest createdAt. The scan is
// linear; tier capacities are small enough (hundreds to low thousands) that a
// heap is not worth the bookkeeping on every write.
func (t *tierOne) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range t.entries {
		if first || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
			first = false
		}
	}
	if !first {
		delete(t.entries, oldestKey)
	}
}

func (t *tierOne) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// deletePattern removes every entry whose key matches the glob pattern and
// returns the number removed. Malformed patterns match nothing.
func (t *tierOne) deletePattern(pattern string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k := range t.entries {
		if ok, err := path.Match(pattern, k); err == nil && ok {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// sweep removes every expired entry and returns the number removed.
func (t *tierOne) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for k, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

func (t *tierOne) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]entry)
}

func (t *tierOne) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *tierOne) expiredResident() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for _, e := range t.entries {
		if !now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
