package origin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// envelope is the wire shape for every origin response: {ok:true, data:...}
// on success or {ok:false, error:"<code>"} on failure. Never both.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// jsonCT is a pre-allocated header value slice, avoiding the []string{v}
// alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json; charset=utf-8"}

func writeJSON(w http.ResponseWriter, status int, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return nil
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeOK(w http.ResponseWriter, data any) []byte {
	return writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, dhkalign.ErrorStatus(err), envelope{OK: false, Error: dhkalign.ErrorCode(err)})
}
