package edge

import (
	"encoding/json"
	"net/http"
	"time"

	dhkalign "github.com/dhkalign/gateway/internal"
)

var edgeCacheMissVal = []string{"MISS"}

// forwardTranslate re-encodes the validated input and relays it to the
// origin under path, tagging the response MISS and writing it into the
// edge cache on upstream success. The caller's IP is passed on as
// X-Forwarded-For. The shield token and its
// injection are entirely owned by OriginClient; forwardTranslate never
// sees or touches it.
func (s *server) forwardTranslate(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/translate" {
		path = "/translate"
	}

	in := inputFromContext(r.Context())
	body, _ := json.Marshal(struct {
		Text    string `json:"text"`
		SrcLang string `json:"src_lang"`
		TgtLang string `json:"tgt_lang"`
		Pack    string `json:"pack,omitempty"`
	}{Text: in.Text, SrcLang: in.SrcLang, TgtLang: in.TgtLang, Pack: in.Pack})

	fwd := map[string]string{"X-Forwarded-For": dhkalign.ClientIPFromContext(r.Context())}
	status, respBody, err := s.deps.Origin.Call(r.Context(), http.MethodPost, path, body, fwd)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header()["Cf-Cache-Edge"] = edgeCacheMissVal
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(respBody)

	if status >= 200 && status < 300 {
		if key := cacheKeyFromContext(r.Context()); key != "" && s.deps.Cache != nil {
			s.deps.Cache.Set(r.Context(), key, respBody, s.deps.CacheTTL)
		}
	}
}

func (s *server) handleFreeTranslateGET(w http.ResponseWriter, r *http.Request)  { s.forwardTranslate(w, r) }
func (s *server) handleFreeTranslatePOST(w http.ResponseWriter, r *http.Request) { s.forwardTranslate(w, r) }
func (s *server) handleProTranslate(w http.ResponseWriter, r *http.Request)      { s.forwardTranslate(w, r) }

func (s *server) handleEdgeHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"ts":  time.Now().UTC().Format(time.RFC3339),
		"env": s.deps.Env,
	})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"sha": s.deps.BuildSHA})
}

// handleBillingKey implements the one-time session->key handoff: an atomic
// read-and-delete, so a second request for the same session_id always 404s.
func (s *server) handleBillingKey(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}
	key, found, err := s.deps.Keys.TakeSession(r.Context(), sessionID)
	if err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	if !found {
		writeErr(w, dhkalign.ErrNotFound)
		return
	}
	writeOK(w, map[string]any{"api_key": key})
}
