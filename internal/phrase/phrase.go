// Package phrase defines the content-addressed phrase store abstraction and
// the normalization function shared by ingestion and query paths.
package phrase

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// Filter narrows a Lookup to a safety ceiling and, optionally, a specific pack.
type Filter struct {
	SrcLang   string
	NormSrc   string
	TgtLang   string
	SafetyMax dhkalign.SafetyLevel
	Pack      string // "" = no pack filter
}

// Store is the abstract phrase content store.
//
// Lookup preference order when multiple rows match: lowest SafetyLevel,
// then Pack == "default" before others, then oldest CreatedAt.
type Store interface {
	Lookup(ctx context.Context, f Filter) (dhkalign.Phrase, bool, error)
	Upsert(ctx context.Context, p dhkalign.Phrase) error
	Count(ctx context.Context, f Filter) (int, error)
	HealthCheck(ctx context.Context) error
}

// Normalize implements the canonical normalization used both at ingestion
// and at query time: Unicode NFC -> lowercase -> trim -> collapse internal
// whitespace -> strip leading/trailing ASCII punctuation along with any
// whitespace bordering it.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = collapseWhitespace(s)
	s = strings.TrimFunc(s, isEdgeTrimmable)
	return s
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// isEdgeTrimmable matches the runes stripped from the edges of a phrase:
// ASCII punctuation plus any whitespace adjacent to it. Trimming both in
// one pass keeps Normalize a fixpoint even for inputs like "ab . .".
func isEdgeTrimmable(r rune) bool {
	return unicode.IsSpace(r) || (r <= unicode.MaxASCII && unicode.IsPunct(r))
}
