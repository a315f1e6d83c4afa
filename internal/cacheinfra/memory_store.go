package cacheinfra

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

const (
	memoryStoreShards          = 16
	memoryStoreEvictionPercent = 10
)

// MemoryStore is an embedded RemoteStore backed by sturdyc. It gives
// single-process deployments the same two-tier shape as a Redis deployment,
// which keeps the tiered cache code on one path.
//
// sturdyc's TTL is client-wide, so per-entry retention hints cannot be
// honored; the store instead retains entries for the longer of the configured
// TTL and one hour, and relies on the envelope expiry enforced by the tiered
// layer for correctness.
type MemoryStore struct {
	client *sturdyc.Client[[]byte]

	mu       sync.Mutex
	counters map[string]counterEntry
	now      func() time.Time
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore holding at most capacity payloads.
// A non-positive capacity falls back to the default remote capacity.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultConfig().RemoteCapacity
	}
	retention := ttl
	if retention < time.Hour {
		retention = time.Hour
	}
	return &MemoryStore{
		client:   sturdyc.New[[]byte](capacity, memoryStoreShards, retention, memoryStoreEvictionPercent),
		counters: make(map[string]counterEntry),
		now:      time.Now,
	}
}

// Get implements RemoteStore.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	payload, ok := s.client.Get(key)
	return payload, ok, nil
}

// Set implements RemoteStore. The ttl hint is ignored, see the type comment.
func (s *MemoryStore) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	s.client.Set(key, payload)
	return nil
}

// Delete implements RemoteStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)

	s.mu.Lock()
	delete(s.counters, key)
	s.mu.Unlock()
	return nil
}

// Increment implements RemoteStore. Counters live beside the payload cache so
// they are never subject to payload eviction.
func (s *MemoryStore) Increment(_ context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if ok && !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
		ok = false
	}
	if !ok {
		c = counterEntry{}
		if ttl > 0 {
			c.expiresAt = now.Add(ttl)
		}
	}
	c.value += amount
	s.counters[key] = c
	return c.value, nil
}

// DeletePattern implements PatternDeleter by scanning the resident key set.
func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) error {
	for _, key := range s.client.ScanKeys() {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			s.client.Delete(key)
		}
	}

	s.mu.Lock()
	for key := range s.counters {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(s.counters, key)
		}
	}
	s.mu.Unlock()
	return nil
}
