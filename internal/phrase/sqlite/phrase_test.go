package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/phrase"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "phrases.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsert_IdentityIsUnique(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	p := dhkalign.Phrase{
		SrcLang: "bn-rom", SrcText: "bhalo achi", TgtLang: "en",
		TgtText: "I am fine", Pack: "default", SafetyLevel: 0,
	}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	p.TgtText = "I'm doing fine"
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := store.Count(ctx, phrase.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("row count = %d, want 1 (identity key must dedupe)", n)
	}

	got, found, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "bhalo achi", TgtLang: "en", SafetyMax: 1,
	})
	if err != nil || !found {
		t.Fatalf("lookup after upsert: found=%v err=%v", found, err)
	}
	if got.TgtText != "I'm doing fine" {
		t.Errorf("tgt = %q, want updated content", got.TgtText)
	}
}

func TestUpsert_NormalizesSource(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	if err := store.Upsert(ctx, dhkalign.Phrase{
		SrcLang: "bn-rom", SrcText: "  Koto   Taka?? ", TgtLang: "en",
		TgtText: "how much money", SafetyLevel: 0,
	}); err != nil {
		t.Fatal(err)
	}

	_, found, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: phrase.Normalize("koto taka"), TgtLang: "en", SafetyMax: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("row not found under normalized source")
	}
}

func TestLookup_PrefersLowestSafetyLevel(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	for _, p := range []dhkalign.Phrase{
		{SrcLang: "bn-rom", SrcText: "jhamela", TgtLang: "en", TgtText: "rude trouble", Pack: "slang", SafetyLevel: 1},
		{SrcLang: "bn-rom", SrcText: "jhamela", TgtLang: "en", TgtText: "trouble", Pack: "dialect-sylheti", SafetyLevel: 0},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, found, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "jhamela", TgtLang: "en", SafetyMax: 1,
	})
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if got.TgtText != "trouble" {
		t.Errorf("picked %q, want lowest safety_level row", got.TgtText)
	}
}

func TestLookup_PrefersDefaultPackAtEqualSafety(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	for _, p := range []dhkalign.Phrase{
		{SrcLang: "bn-rom", SrcText: "adda", TgtLang: "en", TgtText: "slang hangout", Pack: "slang", SafetyLevel: 0},
		{SrcLang: "bn-rom", SrcText: "adda", TgtLang: "en", TgtText: "hangout", Pack: "default", SafetyLevel: 0},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, _, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "adda", TgtLang: "en", SafetyMax: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Pack != "default" {
		t.Errorf("picked pack %q, want default", got.Pack)
	}
}

func TestLookup_OldestWinsAtEqualSafetyAndPack(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []dhkalign.Phrase{
		{SrcLang: "bn-rom", SrcText: "thik ache", TgtLang: "en", TgtText: "newer entry", Pack: "slang", SafetyLevel: 0, CreatedAt: newer},
		{SrcLang: "bn-rom", SrcText: "thik ache", TgtLang: "en", TgtText: "older entry", Pack: "dialect-sylheti", SafetyLevel: 0, CreatedAt: older},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, _, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "thik ache", TgtLang: "en", SafetyMax: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.TgtText != "older entry" {
		t.Errorf("picked %q, want oldest row", got.TgtText)
	}
}

func TestLookup_SafetyMaxExcludesProRows(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	if err := store.Upsert(ctx, dhkalign.Phrase{
		SrcLang: "bn-rom", SrcText: "kharap kotha", TgtLang: "en",
		TgtText: "bad words", Pack: "profanity", SafetyLevel: 2,
	}); err != nil {
		t.Fatal(err)
	}

	_, found, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "kharap kotha", TgtLang: "en", SafetyMax: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("safety_level 2 row visible at SafetyMax 1")
	}

	_, found, err = store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "kharap kotha", TgtLang: "en", SafetyMax: 1 << 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("safety_level 2 row invisible with unrestricted SafetyMax")
	}
}

func TestLookup_PackFilter(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	for _, p := range []dhkalign.Phrase{
		{SrcLang: "bn-rom", SrcText: "mama", TgtLang: "en", TgtText: "uncle", Pack: "default", SafetyLevel: 0},
		{SrcLang: "bn-rom", SrcText: "mama", TgtLang: "en", TgtText: "dude", Pack: "slang", SafetyLevel: 0},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, found, err := store.Lookup(ctx, phrase.Filter{
		SrcLang: "bn-rom", NormSrc: "mama", TgtLang: "en", SafetyMax: 1, Pack: "slang",
	})
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if got.TgtText != "dude" {
		t.Errorf("pack filter picked %q", got.TgtText)
	}
}

func TestCount_Filters(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := t.Context()

	for _, p := range []dhkalign.Phrase{
		{SrcLang: "bn-rom", SrcText: "ek", TgtLang: "en", TgtText: "one", Pack: "default"},
		{SrcLang: "bn-rom", SrcText: "dui", TgtLang: "en", TgtText: "two", Pack: "default"},
		{SrcLang: "en", SrcText: "three", TgtLang: "bn-rom", TgtText: "tin", Pack: "auto"},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name   string
		filter phrase.Filter
		want   int
	}{
		{"all", phrase.Filter{}, 3},
		{"by src_lang", phrase.Filter{SrcLang: "bn-rom"}, 2},
		{"by pack", phrase.Filter{Pack: "auto"}, 1},
		{"by tgt_lang", phrase.Filter{TgtLang: "bn-rom"}, 1},
	}
	for _, tc := range cases {
		n, err := store.Count(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if n != tc.want {
			t.Errorf("%s: count = %d, want %d", tc.name, n, tc.want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	if err := store.HealthCheck(t.Context()); err != nil {
		t.Errorf("healthcheck: %v", err)
	}
}
