// Package cache provides the response cache used by the edge gateway
// (keyed on method+path+canonical body) and the origin translator (keyed
// on canonical request). The two layers hold independent instances and
// are not coherent with each other.
package cache

import (
	"context"
	"time"
)

// Stats is the aggregate, non-PII counter set returned by the edge's
// GET /admin/cache_stats. Entries/ApproxSizeBytes are approximate by
// construction: TTL expiry and W-TinyLFU eviction happen lazily inside
// otter, so these counters track writes/deletes rather than otter's
// internal state.
type Stats struct {
	Hits            int64
	Misses          int64
	Entries         int64
	ApproxSizeBytes int64
}

// Cache is the interface for response caching.
type Cache interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete removes a cached value.
	Delete(ctx context.Context, key string)
	// Purge removes all cached values.
	Purge(ctx context.Context)
	// Stats reports aggregate hit/miss/entry counters for cache_stats.
	Stats(ctx context.Context) Stats
}
