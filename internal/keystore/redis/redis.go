// Package redis implements keystore.Store using Redis as the external KV,
// relying on SETNX/INCR/GETDEL for the atomic operations the Key/Quota
// Store contract requires.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/keystore"
)

const (
	keyPrefix     = "apikey:"
	metaPrefix    = "apikey.meta:"
	usagePrefix   = "usage:"
	sessionPrefix = "session_to_key:"
	eventPrefix   = "stripe_evt:"
)

// Store implements keystore.Store backed by a Redis client.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// KeyEnabled reports whether key is present and its enabled flag is true.
func (s *Store) KeyEnabled(ctx context.Context, key string) (bool, error) {
	val, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: get apikey: %w", err)
	}
	return val == "enabled", nil
}

// SetKey marks key enabled and persists its metadata (no TTL: durable until revoked).
func (s *Store) SetKey(ctx context.Context, key string, meta dhkalign.APIKeyMeta) error {
	meta.Key = key
	meta.Enabled = true
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal key meta: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyPrefix+key, "enabled", 0)
	pipe.Set(ctx, metaPrefix+key, data, 0)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis: set apikey: %w", err)
	}
	return nil
}

// RevokeKey disables key without deleting its history.
func (s *Store) RevokeKey(ctx context.Context, key string) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, "disabled", 0).Err(); err != nil {
		return fmt.Errorf("redis: revoke apikey: %w", err)
	}
	return nil
}

// IncAndCheck atomically increments usage:<key>:<date>, setting TTL only on
// first creation (a Lua-free INCR followed by EXPIRE when the count is 1), and reports
// whether the new count is within limit.
func (s *Store) IncAndCheck(ctx context.Context, key, date string, limit int64, ttl time.Duration) (int64, bool, error) {
	rkey := usagePrefix + key + ":" + date
	count, err := s.rdb.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis: incr usage: %w", err)
	}
	if count == 1 {
		// First increment for this key+date: set TTL now that the key exists.
		s.rdb.Expire(ctx, rkey, ttl)
	}
	return count, count <= limit, nil
}

// PutSession stores a one-time session->key handoff with ttl.
func (s *Store) PutSession(ctx context.Context, sessionID, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, sessionPrefix+sessionID, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put session: %w", err)
	}
	return nil
}

// TakeSession atomically reads and deletes the session->key handoff via GETDEL,
// guaranteeing at most one caller observes the key.
func (s *Store) TakeSession(ctx context.Context, sessionID string) (string, bool, error) {
	key, err := s.rdb.GetDel(ctx, sessionPrefix+sessionID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: take session: %w", err)
	}
	return key, true, nil
}

// MarkEvent performs a write-if-absent insert for webhook dedupe via SETNX.
func (s *Store) MarkEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, eventPrefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark event: %w", err)
	}
	return ok, nil
}

// Stats returns best-effort aggregate counters for the admin endpoint.
// ActiveKeys is counted by a SCAN over the whole keyspace and includes
// every apikey: entry, revoked keys too.
func (s *Store) Stats(ctx context.Context) (keystore.Stats, error) {
	var active int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		active++
	}
	if err := iter.Err(); err != nil {
		return keystore.Stats{}, fmt.Errorf("redis: scan keys: %w", err)
	}
	dbsize, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return keystore.Stats{}, fmt.Errorf("redis: dbsize: %w", err)
	}
	return keystore.Stats{ActiveKeys: active, Entries: dbsize}, nil
}

// HealthCheck verifies Redis connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}
