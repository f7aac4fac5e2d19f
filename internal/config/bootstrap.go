package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/phrase"
)

// SeedEntry is one phrase record in a seed file.
type SeedEntry struct {
	SrcLang     string               `json:"src_lang"`
	SrcText     string               `json:"src_text"`
	TgtLang     string               `json:"tgt_lang"`
	TgtText     string               `json:"tgt_text"`
	Pack        string               `json:"pack"`
	SafetyLevel dhkalign.SafetyLevel `json:"safety_level"`
}

// BootstrapPhrases seeds the Phrase Store from a JSON seed file on first
// run. Existing identity-matched phrases are left untouched: a seed file
// only adds rows, it never overwrites operator-curated data.
func BootstrapPhrases(ctx context.Context, store phrase.Store, seedPath string) error {
	if seedPath == "" {
		return nil
	}
	data, err := os.ReadFile(seedPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var entries []SeedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	for _, e := range entries {
		pack := e.Pack
		if pack == "" {
			pack = dhkalign.PackDefault
		}
		norm := phrase.Normalize(e.SrcText)
		_, found, err := store.Lookup(ctx, phrase.Filter{
			SrcLang:   e.SrcLang,
			NormSrc:   norm,
			TgtLang:   e.TgtLang,
			Pack:      pack,
			SafetyMax: 1 << 30,
		})
		if err != nil {
			return err
		}
		if found {
			continue
		}
		if err := store.Upsert(ctx, dhkalign.Phrase{
			SrcLang:     e.SrcLang,
			SrcText:     e.SrcText,
			TgtLang:     e.TgtLang,
			TgtText:     e.TgtText,
			Pack:        pack,
			SafetyLevel: e.SafetyLevel,
		}); err != nil {
			return err
		}
		slog.Info("bootstrapped phrase", "src_lang", e.SrcLang, "tgt_lang", e.TgtLang, "pack", pack)
	}
	return nil
}

// GenerateAdminKey creates a random admin key and returns the plaintext.
func GenerateAdminKey() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return dhkalign.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
}
