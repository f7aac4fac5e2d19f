package origin

import (
	"strings"

	"github.com/dhkalign/gateway/internal/phrase"
)

const maxTextLen = 1000

// injectionMarkers is a small denylist of substrings that have no business
// appearing in a short phrase to translate. Matching is case-insensitive.
var injectionMarkers = []string{
	"<script",
	"javascript:",
	"${jndi",
	"ignore previous instructions",
	"ignore all previous instructions",
}

// stripControlChars removes non-printable control characters (everything
// below 0x20 except the space that whitespace-collapse already handles,
// plus 0x7F) without otherwise altering the text.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0x7F || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// containsInjectionMarker reports whether s contains an obvious prompt- or
// markup-injection marker.
func containsInjectionMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// validText reports whether s is non-empty, at most maxTextLen runes, and
// free of injection markers, after control characters have been stripped.
func validText(s string) (cleaned string, ok bool) {
	cleaned = stripControlChars(s)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", false
	}
	if utf8RuneCount(cleaned) > maxTextLen {
		return "", false
	}
	if containsInjectionMarker(cleaned) {
		return "", false
	}
	return cleaned, true
}

func utf8RuneCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// normalizeForCacheKey runs the same normalization used for phrase lookups
// so that two requests differing only in case/whitespace/punctuation share
// a cache entry.
func normalizeForCacheKey(s string) string {
	return phrase.Normalize(s)
}

// validLang reports whether s, if non-empty, is one of the two supported
// language tags. An empty string is always valid -- callers fill in a default.
func validLang(s string) bool {
	switch s {
	case "", "bn-rom", "en":
		return true
	default:
		return false
	}
}
