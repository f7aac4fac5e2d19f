package edge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	dhkalign "github.com/dhkalign/gateway/internal"
)

const stripeEventType = "checkout.session.completed"

// verifyStripeSignature checks the Stripe-Signature header
// ("t=<unix>,v1=<hex hmac>[,v1=<hex hmac>...]") against payload, using the
// documented ±300s timestamp tolerance.
func verifyStripeSignature(header, secret string, payload []byte, tolerance time.Duration, now time.Time) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	eventTime := time.Unix(unix, 0)
	if now.Sub(eventTime).Abs() > tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	for _, got := range sigs {
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

// handleWebhookStripe verifies the signature (rejecting outside the
// tolerance window with 400 bad_signature), dedupes by event_id (replays
// are a 200 no-op), then mints a key and records the session handoff on
// first delivery of checkout.session.completed.
func (s *server) handleWebhookStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}

	sigHeader := r.Header.Get("stripe-signature")
	if !verifyStripeSignature(sigHeader, s.deps.Webhook.Secret, payload, webhookTolerance(s.deps.Webhook.ToleranceSeconds), time.Now()) {
		if s.deps.Audit != nil {
			s.deps.Audit.Append("webhook_bad_sig", map[string]any{"ip": dhkalign.ClientIPFromContext(r.Context())})
		}
		writeErr(w, dhkalign.ErrBadSignature)
		return
	}

	eventType := gjson.GetBytes(payload, "type").String()
	eventID := gjson.GetBytes(payload, "id").String()
	if eventType != stripeEventType {
		writeOK(w, map[string]any{"ignored": true})
		return
	}
	if eventID == "" {
		writeErr(w, dhkalign.ErrBadRequest)
		return
	}

	inserted, err := s.deps.Keys.MarkEvent(r.Context(), eventID, s.deps.Webhook.EventTTL)
	if err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	if !inserted {
		if s.deps.Audit != nil {
			s.deps.Audit.Append("webhook_replay", map[string]any{"event_id": eventID})
		}
		writeOK(w, map[string]any{"replay": true})
		return
	}

	sessionID := gjson.GetBytes(payload, "data.object.id").String()
	email := gjson.GetBytes(payload, "data.object.customer_details.email").String()

	key, err := generateAPIKey()
	if err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	meta := dhkalign.APIKeyMeta{
		Key:           key,
		Plan:          "pro",
		IssuedAt:      time.Now().UTC(),
		SourceEventID: eventID,
		Email:         email,
		Enabled:       true,
	}
	if err := s.deps.Keys.SetKey(r.Context(), key, meta); err != nil {
		writeErr(w, dhkalign.ErrQuotaUnavailable)
		return
	}
	if sessionID != "" {
		if err := s.deps.Keys.PutSession(r.Context(), sessionID, key, s.deps.Webhook.SessionTTL); err != nil {
			if s.deps.Audit != nil {
				s.deps.Audit.Append("fallback_fail", map[string]any{"reason": "session_handoff"})
			}
		}
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Append("key_minted", map[string]any{"event_id": eventID})
	}

	writeOK(w, map[string]any{"minted": true})
}

func webhookTolerance(seconds int) time.Duration {
	if seconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// generateAPIKey mints a cryptographically random, >=128-bit key with the
// service prefix.
func generateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return dhkalign.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}
