package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/phrase"
	"github.com/google/uuid"
)

// Lookup returns the best-matching phrase for f, applying the preference
// order: lowest safety_level, then pack="default" before others, then
// oldest created_at.
func (s *Store) Lookup(ctx context.Context, f phrase.Filter) (dhkalign.Phrase, bool, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, src_lang, src_text, normalized_src, tgt_lang, tgt_text, pack, safety_level, created_at
		FROM phrases WHERE src_lang = ? AND normalized_src = ? AND tgt_lang = ? AND safety_level <= ?`)
	args := []any{f.SrcLang, f.NormSrc, f.TgtLang, f.SafetyMax}
	if f.Pack != "" {
		b.WriteString(` AND pack = ?`)
		args = append(args, f.Pack)
	}
	b.WriteString(` ORDER BY safety_level ASC, (pack = 'default') DESC, created_at ASC LIMIT 1`)

	row := s.read.QueryRowContext(ctx, b.String(), args...)
	p, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dhkalign.Phrase{}, false, nil
		}
		return dhkalign.Phrase{}, false, err
	}
	return p, true, nil
}

// Upsert inserts or replaces a phrase keyed by its identity tuple.
// A conflict on the unique index is treated as success, so concurrent
// fallback inserts of the same phrase resolve without error.
func (s *Store) Upsert(ctx context.Context, p dhkalign.Phrase) error {
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Pack == "" {
		p.Pack = dhkalign.PackDefault
	}
	if p.NormalizedSrc == "" {
		p.NormalizedSrc = phrase.Normalize(p.SrcText)
	}

	_, err := s.write.ExecContext(ctx,
		`INSERT INTO phrases (id, src_lang, src_text, normalized_src, tgt_lang, tgt_text, pack, safety_level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (src_lang, normalized_src, tgt_lang, pack) DO UPDATE SET
		   src_text = excluded.src_text,
		   tgt_text = excluded.tgt_text,
		   safety_level = excluded.safety_level`,
		p.ID, p.SrcLang, p.SrcText, p.NormalizedSrc, p.TgtLang, p.TgtText, p.Pack, p.SafetyLevel,
		p.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// Count returns the number of phrases matching f. An empty Filter counts all rows.
func (s *Store) Count(ctx context.Context, f phrase.Filter) (int, error) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM phrases WHERE 1=1`)
	var args []any
	if f.SrcLang != "" {
		b.WriteString(` AND src_lang = ?`)
		args = append(args, f.SrcLang)
	}
	if f.TgtLang != "" {
		b.WriteString(` AND tgt_lang = ?`)
		args = append(args, f.TgtLang)
	}
	if f.Pack != "" {
		b.WriteString(` AND pack = ?`)
		args = append(args, f.Pack)
	}
	var n int
	err := s.read.QueryRowContext(ctx, b.String(), args...).Scan(&n)
	return n, err
}

// HealthCheck verifies the phrase store is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPhrase(row scanner) (dhkalign.Phrase, error) {
	var p dhkalign.Phrase
	var createdAt string
	err := row.Scan(&p.ID, &p.SrcLang, &p.SrcText, &p.NormalizedSrc, &p.TgtLang, &p.TgtText, &p.Pack, &p.SafetyLevel, &createdAt)
	if err != nil {
		return dhkalign.Phrase{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return dhkalign.Phrase{}, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}
