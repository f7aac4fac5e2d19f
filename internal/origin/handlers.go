package origin

import (
	"net/http"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/circuitbreaker"
	"github.com/dhkalign/gateway/internal/phrase"
)

// safetyUnrestricted is the SafetyMax passed to Lookup on the pro path,
// where no tier ceiling applies.
const safetyUnrestricted = dhkalign.SafetyLevel(1 << 30)

var backendCacheMissVal = []string{"MISS"}

// respondOK writes a 2xx envelope, tags it MISS (cacheRead already returned
// early on a hit), and populates the TTL cache under the request's
// canonical key. Only 2xx bodies are ever cached.
func (s *server) respondOK(w http.ResponseWriter, r *http.Request, data any) {
	w.Header()["X-Backend-Cache"] = backendCacheMissVal
	body := writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
	if body == nil || s.deps.Cache == nil {
		return
	}
	s.deps.Cache.Set(r.Context(), cacheKeyFromContext(r.Context()), body, s.deps.CacheTTL)
}

// handleHealth reports Phrase Store reachability and row count.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbPath := ""
	if s.deps.DBPath != nil {
		dbPath = s.deps.DBPath()
	}
	rowCount := 0
	if s.deps.Store != nil {
		if n, err := s.deps.Store.Count(r.Context(), phrase.Filter{}); err == nil {
			rowCount = n
		}
	}
	writeOK(w, map[string]any{"db_path": dbPath, "row_count": rowCount})
}

// handleTranslate implements the free-tier lookup: DB-only, safety-gated,
// never invoking the LM fallback.
func (s *server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	in := inputFromContext(r.Context())
	norm := phrase.Normalize(in.Text)

	p, found, err := s.deps.Store.Lookup(r.Context(), phrase.Filter{
		SrcLang:   in.SrcLang,
		NormSrc:   norm,
		TgtLang:   in.TgtLang,
		SafetyMax: dhkalign.SafetyFreeMax,
	})
	if err != nil {
		writeErr(w, dhkalign.ErrStoreUnavailable)
		return
	}
	if !found {
		writeErr(w, dhkalign.ErrNotFound)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.DBHits.Inc()
	}
	s.respondOK(w, r, dhkalign.TranslateResult{
		Src:     p.SrcText,
		Tgt:     p.TgtText,
		SrcLang: p.SrcLang,
		TgtLang: p.TgtLang,
		Source:  "db",
	})
}

// handleTranslatePro implements the pro-tier lookup-then-fallback state
// machine: DB lookup across all safety tiers, then on miss (with fallback
// enabled) a single guarded LM call whose result is upserted as an "auto"
// phrase before being returned to the caller.
func (s *server) handleTranslatePro(w http.ResponseWriter, r *http.Request) {
	in := inputFromContext(r.Context())
	norm := phrase.Normalize(in.Text)

	p, found, err := s.deps.Store.Lookup(r.Context(), phrase.Filter{
		SrcLang:   in.SrcLang,
		NormSrc:   norm,
		TgtLang:   in.TgtLang,
		SafetyMax: safetyUnrestricted,
		Pack:      in.Pack,
	})
	if err != nil {
		writeErr(w, dhkalign.ErrStoreUnavailable)
		return
	}
	if found {
		if s.deps.Metrics != nil {
			s.deps.Metrics.DBHits.Inc()
		}
		s.respondOK(w, r, dhkalign.TranslateResult{
			Src:     p.SrcText,
			Tgt:     p.TgtText,
			SrcLang: p.SrcLang,
			TgtLang: p.TgtLang,
			Source:  "db",
			Pack:    p.Pack,
		})
		return
	}

	if !s.deps.FallbackEnabled || s.deps.LM == nil {
		writeErr(w, dhkalign.ErrNotFound)
		return
	}

	s.fallback(w, r, in)
}

// fallback calls the external LM once (guarded by the circuit breaker),
// upserts the resulting phrase on success, and falls through to a plain
// 404 not_found on any failure. The origin never synthesizes a response
// when the LM is unreachable or returns nothing usable.
func (s *server) fallback(w http.ResponseWriter, r *http.Request, in dhkalign.TranslateInput) {
	var breaker *circuitbreaker.Breaker
	if s.deps.Breakers != nil {
		breaker = s.deps.Breakers.GetOrCreate(breakerKey)
		if !breaker.Allow() {
			if s.deps.Metrics != nil {
				s.deps.Metrics.CircuitBreakerRejects.WithLabelValues(breakerKey).Inc()
			}
			s.reportBreakerState(breaker)
			s.fallbackFail(r, "circuit_open")
			writeErr(w, dhkalign.ErrNotFound)
			return
		}
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.FallbackCalls.Inc()
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Append("fallback_call", map[string]any{"src_lang": in.SrcLang, "tgt_lang": in.TgtLang})
	}

	text, err := s.deps.LM.Translate(r.Context(), in.Text, in.SrcLang, in.TgtLang)
	if err != nil {
		if breaker != nil {
			breaker.RecordError(circuitbreaker.ClassifyError(err))
			s.reportBreakerState(breaker)
		}
		s.fallbackFail(r, "lm_error")
		writeErr(w, dhkalign.ErrNotFound)
		return
	}
	if text == "" {
		if breaker != nil {
			breaker.RecordSuccess()
			s.reportBreakerState(breaker)
		}
		s.fallbackFail(r, "empty_response")
		writeErr(w, dhkalign.ErrNotFound)
		return
	}
	if breaker != nil {
		breaker.RecordSuccess()
		s.reportBreakerState(breaker)
	}

	safety := s.deps.AutoInsertSafetyLevel
	if safety < dhkalign.SafetyProMin {
		safety = dhkalign.SafetyProMin
	}
	if err := s.deps.Store.Upsert(r.Context(), dhkalign.Phrase{
		SrcLang:     in.SrcLang,
		SrcText:     in.Text,
		TgtLang:     in.TgtLang,
		TgtText:     text,
		Pack:        dhkalign.PackAuto,
		SafetyLevel: safety,
	}); err != nil {
		// Best-effort persistence: still return the translation. The
		// fallback itself succeeded, so it counts once under fallback_ok;
		// only the audit trail records the lost insert.
		if s.deps.Audit != nil {
			s.deps.Audit.Append("fallback_fail", map[string]any{"reason": "insert"})
		}
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.FallbackOK.Inc()
	}
	s.respondOK(w, r, dhkalign.TranslateResult{
		Src:     in.Text,
		Tgt:     text,
		SrcLang: in.SrcLang,
		TgtLang: in.TgtLang,
		Source:  "gpt",
		Pack:    dhkalign.PackAuto,
	})
}

func (s *server) fallbackFail(r *http.Request, reason string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.FallbackFail.WithLabelValues(reason).Inc()
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Append("fallback_fail", map[string]any{"reason": reason})
	}
}

// reportBreakerState publishes the LM fallback breaker's current state to
// the circuit_breaker_state gauge (0=closed, 1=open, 2=half_open).
func (s *server) reportBreakerState(breaker *circuitbreaker.Breaker) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.CircuitBreakerState.WithLabelValues(breakerKey).Set(float64(breaker.State()))
}
