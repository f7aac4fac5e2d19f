// Package durable composes the Redis-backed Key/Quota Store with a durable
// SQLite write-through for the API key enabled-flag, so a Redis restart or
// eviction storm can never silently disable a paying customer's key.
// Redis remains authoritative for counters, sessions, and webhook dedupe,
// all of which tolerate best-effort TTL state.
package durable

import (
	"context"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/keystore"
	ksqlite "github.com/dhkalign/gateway/internal/keystore/sqlite"
)

// hot is the subset of keystore.Store that Store delegates straight through
// to the fast-path backend (Redis in production).
type hot = keystore.Store

// Store is a keystore.Store that write-throughs the enabled-flag to a
// durable SQLite table and consults it when the hot store cannot confirm
// a key is enabled (e.g. after an unexpected Redis flush).
type Store struct {
	hot     hot
	durable *ksqlite.Store
}

// New returns a Store combining hot (Redis, typically) with a durable
// SQLite side table for the enabled-flag.
func New(hotStore keystore.Store, durableStore *ksqlite.Store) *Store {
	return &Store{hot: hotStore, durable: durableStore}
}

// KeyEnabled checks the hot store first; on a negative result it falls back
// to the durable record so a cold Redis cache can't masquerade as a revoked key.
func (s *Store) KeyEnabled(ctx context.Context, key string) (bool, error) {
	enabled, err := s.hot.KeyEnabled(ctx, key)
	if err != nil {
		return false, err
	}
	if enabled {
		return true, nil
	}
	return s.durable.Enabled(ctx, key)
}

// SetKey writes through to both stores so enablement survives either one restarting.
func (s *Store) SetKey(ctx context.Context, key string, meta dhkalign.APIKeyMeta) error {
	if err := s.durable.SetEnabled(ctx, meta); err != nil {
		return err
	}
	return s.hot.SetKey(ctx, key, meta)
}

// RevokeKey disables key in both stores.
func (s *Store) RevokeKey(ctx context.Context, key string) error {
	if err := s.durable.SetDisabled(ctx, key); err != nil {
		return err
	}
	return s.hot.RevokeKey(ctx, key)
}

func (s *Store) IncAndCheck(ctx context.Context, key, date string, limit int64, ttl time.Duration) (int64, bool, error) {
	return s.hot.IncAndCheck(ctx, key, date, limit, ttl)
}

func (s *Store) PutSession(ctx context.Context, sessionID, key string, ttl time.Duration) error {
	return s.hot.PutSession(ctx, sessionID, key, ttl)
}

func (s *Store) TakeSession(ctx context.Context, sessionID string) (string, bool, error) {
	return s.hot.TakeSession(ctx, sessionID)
}

func (s *Store) MarkEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.hot.MarkEvent(ctx, eventID, ttl)
}

func (s *Store) Stats(ctx context.Context) (keystore.Stats, error) {
	return s.hot.Stats(ctx)
}

// HealthCheck reports the hot store's reachability only; the durable store
// is not checked, since its unavailability degrades (fail-closed for enable
// checks) rather than fails the whole service.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.hot.HealthCheck(ctx)
}

func (s *Store) Close() error {
	err := s.hot.Close()
	if derr := s.durable.Close(); derr != nil && err == nil {
		err = derr
	}
	return err
}
