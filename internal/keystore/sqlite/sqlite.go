// Package sqlite persists API key enabled-flags and metadata durably across
// restarts, independent of the best-effort TTL state (sessions, usage
// counters, webhook dedupe) that lives in Redis.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	dhkalign "github.com/dhkalign/gateway/internal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store durably persists API key enabled-flags and issuance metadata.
type Store struct {
	db *sql.DB
}

// New opens the durable key store and runs migrations.
func New(dsn string) (*Store, error) {
	pragmas := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	var fullDSN string
	if dsn == ":memory:" {
		fullDSN = "file::memory:?mode=memory&cache=shared&" + pragmas
	} else {
		fullDSN = "file:" + dsn + "?" + pragmas
	}

	db, err := sql.Open("sqlite", fullDSN)
	if err != nil {
		return nil, fmt.Errorf("open key db: %w", err)
	}
	db.SetMaxOpenConns(1)

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// SetEnabled upserts the durable record for key, marking it enabled and
// recording issuance metadata.
func (s *Store) SetEnabled(ctx context.Context, meta dhkalign.APIKeyMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO durable_keys (key, enabled, plan, issued_at, source_event_id, email)
		 VALUES (?, 1, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET enabled = 1, plan = excluded.plan`,
		meta.Key, meta.Plan, meta.IssuedAt.UTC().Format(time.RFC3339), meta.SourceEventID, meta.Email,
	)
	return err
}

// SetDisabled marks key disabled without deleting its history.
func (s *Store) SetDisabled(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE durable_keys SET enabled = 0 WHERE key = ?`, key)
	return err
}

// Enabled reports the durable enabled flag for key.
func (s *Store) Enabled(ctx context.Context, key string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM durable_keys WHERE key = ?`, key).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled != 0, nil
}

// Count returns the number of durably-recorded keys, enabled or not.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM durable_keys`).Scan(&n)
	return n, err
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
