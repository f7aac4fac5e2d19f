// Package keystore defines the Key/Quota Store abstraction: API key
// enabled-flags, daily usage counters, session-to-key handoffs, and
// webhook replay dedupe.
package keystore

import (
	"context"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// Store is the abstract Key/Quota Store. Implementations must make
// IncAndCheck, TakeSession, and MarkEvent atomic under concurrent callers.
type Store interface {
	// KeyEnabled reports whether key is enabled and known.
	KeyEnabled(ctx context.Context, key string) (bool, error)
	// SetKey marks key enabled and persists its metadata.
	SetKey(ctx context.Context, key string, meta dhkalign.APIKeyMeta) error
	// RevokeKey disables or deletes key.
	RevokeKey(ctx context.Context, key string) error

	// IncAndCheck atomically increments usage:<key>:<date> and reports the
	// new count plus whether it is within limit. ttl bounds counter lifetime.
	IncAndCheck(ctx context.Context, key, date string, limit int64, ttl time.Duration) (count int64, allowed bool, err error)

	// PutSession stores a one-time session->key handoff with the given TTL.
	PutSession(ctx context.Context, sessionID, key string, ttl time.Duration) error
	// TakeSession atomically reads and deletes the session->key handoff.
	TakeSession(ctx context.Context, sessionID string) (key string, found bool, err error)

	// MarkEvent performs a write-if-absent insert for webhook dedupe.
	// Returns true if this call inserted the record (i.e. first delivery).
	MarkEvent(ctx context.Context, eventID string, ttl time.Duration) (inserted bool, err error)

	// Stats returns aggregate counters for the admin cache_stats endpoint.
	Stats(ctx context.Context) (Stats, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Stats holds aggregate, non-PII counters.
type Stats struct {
	ActiveKeys int64
	Entries    int64
}
