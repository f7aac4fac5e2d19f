package edge

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dhkalign "github.com/dhkalign/gateway/internal"
)

const maxBodyBytes = 2048

var (
	nosniffVal = []string{"nosniff"}
	denyVal    = []string{"DENY"}
)

var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{status: http.StatusOK} },
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func (s *server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h["X-Content-Type-Options"] = nosniffVal
		h["X-Frame-Options"] = denyVal
		next.ServeHTTP(w, r)
	})
}

func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, envelope{OK: false, Error: "bad_request"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-Id"

func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 && isValidToken(vals[0], 128) {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		ctx := dhkalign.ContextWithRequestID(r.Context(), id)
		ctx = dhkalign.ContextWithClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isValidToken(s string, maxLen int) bool {
	if len(s) == 0 || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}

// clientIP returns the direct peer address. Unlike the origin (which trusts
// X-Forwarded-For from the edge), the edge is the first hop from the public
// internet, so it does not trust any forwarded-for header from the caller.
func clientIP(r *http.Request) string {
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false
		next.ServeHTTP(sw, r)
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", dhkalign.RequestIDFromContext(r.Context())),
		)
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.deps.Metrics.ActiveRequests.Inc()
		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false

		next.ServeHTTP(sw, r)

		s.deps.Metrics.ActiveRequests.Dec()
		s.deps.Metrics.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		s.deps.Metrics.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

func (s *server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.deps.Tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("http.request_id", dhkalign.RequestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false

		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", sw.status))
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

// cors compares Origin against the configured allowlist, answers preflight
// OPTIONS directly, and rejects disallowed origins before any further work.
// Requests with no Origin header (e.g. server-to-server callers) pass
// through untouched.
func (s *server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.originAllowed(origin) {
			if s.deps.Audit != nil {
				s.deps.Audit.Append("cors_block", map[string]any{"origin": origin, "ip": dhkalign.ClientIPFromContext(r.Context())})
			}
			writeErr(w, dhkalign.ErrForbidden)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-admin-key")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) originAllowed(origin string) bool {
	for _, allowed := range s.deps.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// adminGate requires x-admin-key, constant-time compared against the
// configured secret.
func (s *server) adminGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("x-admin-key")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.AdminKey)) != 1 {
			if s.deps.Audit != nil {
				s.deps.Audit.Append("auth_fail", map[string]any{"ip": dhkalign.ClientIPFromContext(r.Context()), "route": r.URL.Path})
			}
			writeErr(w, dhkalign.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// proGate requires a valid, enabled x-api-key.
func (s *server) proGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if key == "" {
			writeErr(w, dhkalign.ErrInvalidAPIKey)
			return
		}
		enabled, err := s.deps.Keys.KeyEnabled(r.Context(), key)
		if err != nil {
			writeErr(w, dhkalign.ErrQuotaUnavailable)
			return
		}
		if !enabled {
			if s.deps.Audit != nil {
				s.deps.Audit.Append("auth_fail", map[string]any{"ip": dhkalign.ClientIPFromContext(r.Context()), "route": r.URL.Path})
			}
			writeErr(w, dhkalign.ErrInvalidAPIKey)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithAPIKey(r.Context(), key)))
	})
}

// quota atomically increments the caller's daily usage counter and rejects
// requests over DailyQuota.
func (s *server) quota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromContext(r.Context())
		date := time.Now().UTC().Format("2006-01-02")
		count, allowed, err := s.deps.Keys.IncAndCheck(r.Context(), key, date, s.deps.DailyQuota, 31*24*time.Hour)
		if err != nil {
			writeErr(w, dhkalign.ErrQuotaUnavailable)
			return
		}
		if !allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.WithLabelValues("quota").Inc()
			}
			if s.deps.Audit != nil {
				s.deps.Audit.Append("rate_limited", map[string]any{"key_count": count})
			}
			w.Header().Set("Retry-After", strconv.Itoa(secondsUntilUTCMidnight()))
			writeErr(w, dhkalign.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secondsUntilUTCMidnight() int {
	now := time.Now().UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int(tomorrow.Sub(now).Seconds())
}

// parseTranslate decodes the GET query or POST JSON body of a translate
// request into a translateRequest, validates minimally, and stashes the
// resolved input plus the canonical cache key (empty when cache=no) in
// context.
func (s *server) parseTranslate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body translateRequest
		if r.Method == http.MethodGet {
			q := r.URL.Query()
			body = translateRequest{
				Q:       q.Get("q"),
				Text:    q.Get("text"),
				SrcLang: q.Get("src_lang"),
				TgtLang: q.Get("tgt_lang"),
				Pack:    q.Get("pack"),
			}
		} else {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			dec := json.NewDecoder(r.Body)
			if err := dec.Decode(&body); err != nil {
				if err == io.EOF {
					writeErr(w, dhkalign.ErrMissingQuery)
					return
				}
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					writeErr(w, dhkalign.ErrPayloadTooLarge)
					return
				}
				writeErr(w, dhkalign.ErrInvalidJSON)
				return
			}
		}

		in, err := body.toInput()
		if err != nil {
			writeErr(w, err)
			return
		}

		key := ""
		if r.URL.Query().Get("cache") != "no" {
			key = cacheKey(r.Method, r.URL.Path, body)
		}

		ctx := contextWithInput(r.Context(), in)
		ctx = contextWithCacheKey(ctx, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// edgeCacheRead serves a cached response on hit (CF-Cache-Edge: HIT);
// misses and bypassed requests (empty cache key) fall through to the
// handler, which tags MISS and populates the cache on success.
func (s *server) edgeCacheRead(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cacheKeyFromContext(r.Context())
		if key == "" || s.deps.Cache == nil {
			next.ServeHTTP(w, r)
			return
		}
		if body, ok := s.deps.Cache.Get(r.Context(), key); ok {
			if s.deps.Metrics != nil {
				s.deps.Metrics.CacheHits.WithLabelValues("edge").Inc()
			}
			w.Header().Set("CF-Cache-Edge", "HIT")
			w.Header()["Content-Type"] = jsonCT
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.CacheMisses.WithLabelValues("edge").Inc()
		}
		next.ServeHTTP(w, r)
	})
}
