package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached value with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU cache backed by otter, shared by both
// the edge response cache and the origin TTL cache (two distinct *Memory
// instances, see cmd/edge/run.go and cmd/origin/run.go). Hit/miss/entry
// counters are tracked locally rather than read off otter's internal
// stats so that both callers get the same cache_stats shape regardless of
// which otter version backs them.
type Memory struct {
	cache *otter.Cache[string, entry]

	hits    atomic.Int64
	misses  atomic.Int64
	entries atomic.Int64
	size    atomic.Int64
}

// NewMemory creates an in-memory cache with the given max entry count and default TTL.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get retrieves a value from the cache if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		m.entries.Add(-1)
		m.size.Add(-int64(len(e.data)))
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return e.data, true
}

// Set stores a value with per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if old, existed := m.cache.GetIfPresent(key); existed {
		m.size.Add(-int64(len(old.data)))
	} else {
		m.entries.Add(1)
	}
	m.cache.Set(key, entry{
		data:      val,
		expiresAt: time.Now().Add(ttl),
	})
	m.size.Add(int64(len(val)))
}

// Delete removes a value from the cache.
func (m *Memory) Delete(_ context.Context, key string) {
	if old, existed := m.cache.GetIfPresent(key); existed {
		m.entries.Add(-1)
		m.size.Add(-int64(len(old.data)))
	}
	m.cache.Invalidate(key)
}

// Purge removes all values from the cache.
func (m *Memory) Purge(_ context.Context) {
	m.cache.InvalidateAll()
	m.entries.Store(0)
	m.size.Store(0)
}

// Stats reports the aggregate, non-PII counters the admin cache_stats
// endpoint exposes: hits, misses, entries, and approximate byte size.
func (m *Memory) Stats(_ context.Context) Stats {
	return Stats{
		Hits:            m.hits.Load(),
		Misses:          m.misses.Load(),
		Entries:         m.entries.Load(),
		ApproxSizeBytes: m.size.Load(),
	}
}
