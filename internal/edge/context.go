package edge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// translateRequest is the decoded body/query of a free or pro translate
// call. Q and Text are aliases; exactly one need be set by the caller.
// Field order is the struct's declaration order, which is also its stable
// JSON marshal order -- this makes it usable directly as the canonical
// cache-key payload without a separate normalization step.
type translateRequest struct {
	Q       string `json:"q,omitempty"`
	Text    string `json:"text,omitempty"`
	SrcLang string `json:"src_lang,omitempty"`
	TgtLang string `json:"tgt_lang,omitempty"`
	Pack    string `json:"pack,omitempty"`
}

// toInput performs the minimal edge-side check (non-empty query) needed to
// fail fast and to build a cache key; full schema validation (length,
// injection markers, language tags) is the origin's job and is not
// duplicated here.
func (t translateRequest) toInput() (dhkalign.TranslateInput, error) {
	raw := t.Text
	if raw == "" {
		raw = t.Q
	}
	if strings.TrimSpace(raw) == "" {
		return dhkalign.TranslateInput{}, dhkalign.ErrMissingQuery
	}
	srcLang := t.SrcLang
	if srcLang == "" {
		srcLang = dhkalign.LangBanglishRoman
	}
	tgtLang := t.TgtLang
	if tgtLang == "" {
		tgtLang = dhkalign.LangEnglish
	}
	return dhkalign.TranslateInput{Text: raw, SrcLang: srcLang, TgtLang: tgtLang, Pack: t.Pack}, nil
}

// cacheKey hashes method+path+canonical-body into the edge response cache
// key. The body is the stable-order JSON of the decoded request, so two
// callers sending equivalent requests share an entry.
func cacheKey(method, path string, t translateRequest) string {
	data, _ := json.Marshal(t)
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

type ctxKey int

const (
	ctxKeyInput ctxKey = iota
	ctxKeyCacheKey
	ctxKeyAPIKey
)

func contextWithInput(ctx context.Context, in dhkalign.TranslateInput) context.Context {
	return context.WithValue(ctx, ctxKeyInput, in)
}

func inputFromContext(ctx context.Context) dhkalign.TranslateInput {
	in, _ := ctx.Value(ctxKeyInput).(dhkalign.TranslateInput)
	return in
}

// contextWithCacheKey stashes the canonical cache key. An empty key means
// caching is bypassed for this request (cache=no).
func contextWithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKeyCacheKey, key)
}

func cacheKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeyCacheKey).(string)
	return key
}

func contextWithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKeyAPIKey, key)
}

// apiKeyFromContext returns the caller's validated pro-tier API key, or ""
// on the free path.
func apiKeyFromContext(ctx context.Context) string {
	k, _ := ctx.Value(ctxKeyAPIKey).(string)
	return k
}
