package edge

import (
	"net/http"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// handleAdminHealth reports a composite of the edge's own reachability and
// the origin's /health endpoint.
func (s *server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	originUp := false
	if s.deps.Origin != nil {
		originUp = s.deps.Origin.Health(r.Context())
	}
	keysUp := s.deps.Keys == nil
	if s.deps.Keys != nil {
		keysUp = s.deps.Keys.HealthCheck(r.Context()) == nil
	}
	writeOK(w, map[string]any{
		"edge":   true,
		"origin": originUp,
		"keys":   keysUp,
	})
}

// handleAdminCacheStats returns aggregate, non-PII counters: key-store
// activity plus the edge response cache's hit/miss/entry/size counters.
func (s *server) handleAdminCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		ActiveKeys      int64 `json:"active_keys"`
		KeyEntries      int64 `json:"key_entries"`
		CacheHits       int64 `json:"cache_hits"`
		CacheMisses     int64 `json:"cache_misses"`
		CacheEntries    int64 `json:"cache_entries"`
		CacheApproxSize int64 `json:"cache_approx_size_bytes"`
	}{}
	if s.deps.Keys != nil {
		if st, err := s.deps.Keys.Stats(r.Context()); err == nil {
			stats.ActiveKeys = st.ActiveKeys
			stats.KeyEntries = st.Entries
		}
	}
	if s.deps.Cache != nil {
		cs := s.deps.Cache.Stats(r.Context())
		stats.CacheHits = cs.Hits
		stats.CacheMisses = cs.Misses
		stats.CacheEntries = cs.Entries
		stats.CacheApproxSize = cs.ApproxSizeBytes
	}
	writeOK(w, stats)
}

func (s *server) handleAdminWhoami(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"service": "edge", "env": s.deps.Env, "sha": s.deps.BuildSHA})
}

func (s *server) handleAdminKeyAdd(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}
	meta := dhkalign.APIKeyMeta{
		Key:      key,
		Plan:     "manual",
		IssuedAt: time.Now().UTC(),
		Enabled:  true,
	}
	if err := s.deps.Keys.SetKey(r.Context(), key, meta); err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Append("admin_action", map[string]any{"action": "add"})
	}
	writeOK(w, map[string]any{"enabled": true})
}

func (s *server) handleAdminKeyCheck(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}
	enabled, err := s.deps.Keys.KeyEnabled(r.Context(), key)
	if err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	writeOK(w, map[string]any{"enabled": enabled})
}

func (s *server) handleAdminKeyDel(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}
	if err := s.deps.Keys.RevokeKey(r.Context(), key); err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Append("admin_action", map[string]any{"action": "del"})
	}
	writeOK(w, map[string]any{"enabled": false})
}
