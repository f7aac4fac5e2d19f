// Package dhkalign defines domain types and interfaces for the Banglish<->English
// translation gateway. This package has no project imports -- it is the dependency root.
package dhkalign

import (
	"context"
	"time"
)

// --- Languages and safety ---

const (
	LangBanglishRoman = "bn-rom"
	LangEnglish       = "en"
)

// SafetyLevel gates visibility of a phrase. Free responses never return
// entries with SafetyFreeMax < level.
type SafetyLevel int

const (
	SafetyFreeMax  SafetyLevel = 1 // highest level visible on the free path
	SafetyProMin   SafetyLevel = 2 // lowest level requiring pro tier
)

// Phrase is a single stored translation entry.
// Identity invariant: (SrcLang, NormalizedSrc, TgtLang, Pack) is unique;
// any surrogate ID is cosmetic and never part of identity.
type Phrase struct {
	ID            string      `json:"id"`
	SrcLang       string      `json:"src_lang"`
	SrcText       string      `json:"src_text"`
	NormalizedSrc string      `json:"-"`
	TgtLang       string      `json:"tgt_lang"`
	TgtText       string      `json:"tgt_text"`
	Pack          string      `json:"pack"`
	SafetyLevel   SafetyLevel `json:"safety_level"`
	CreatedAt     time.Time   `json:"created_at"`
}

// PackDefault is the pack name used by offline ingestion for ordinary entries.
const PackDefault = "default"

// PackAuto is the pack assigned to phrases synthesized via LM fallback.
const PackAuto = "auto"

// --- API keys ---

// APIKeyPrefix is the prefix carried by every minted API key.
const APIKeyPrefix = "dhk_"

// APIKeyMeta is the metadata persisted alongside an API key's enabled flag.
type APIKeyMeta struct {
	Key           string    `json:"key"`
	Plan          string    `json:"plan"`
	IssuedAt      time.Time `json:"issued_at"`
	SourceEventID string    `json:"source_event_id"`
	Email         string    `json:"email,omitempty"`
	Enabled       bool      `json:"enabled"`
}

// --- Translate request/response envelopes ---

// TranslateInput is the validated, normalized input to a translate operation.
// Either Q or Text may have been supplied by the caller; the edge/origin
// validators normalize both aliases into this single field.
type TranslateInput struct {
	Text    string
	SrcLang string
	TgtLang string
	Pack    string // optional pro-tier filter
}

// TranslateResult is what a lookup or fallback produces.
type TranslateResult struct {
	Src     string `json:"src"`
	Tgt     string `json:"tgt"`
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
	Source  string `json:"source"` // "db" or "gpt"
	Pack    string `json:"pack,omitempty"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
type requestMeta struct {
	RequestID string
	ClientIP  string
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.RequestID = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// ClientIPFromContext extracts the caller's fingerprinted IP from context.
func ClientIPFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.ClientIP
	}
	return ""
}

// ContextWithClientIP returns a context carrying the caller's IP.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.ClientIP = ip
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{ClientIP: ip})
}
