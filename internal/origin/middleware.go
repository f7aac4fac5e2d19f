package origin

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

const maxBodyBytes = 2048 // 2 KiB request body cap

// Pre-allocated header value slices.
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

// securityHeaders sets defense-in-depth headers on every response.
func (s *server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h["X-Content-Type-Options"] = nosniffVal
		h["X-Frame-Options"] = denyVal
		next.ServeHTTP(w, r)
	})
}

// recovery catches panics in handlers and returns a generic 500.
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

// requestID assigns (or accepts a valid client-supplied) request ID.
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

// clientIP returns the forwarded client address when the origin is fronted
// by the edge (which strips/overwrites this header itself), falling back to
// the direct peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

// logging logs each request with method, path, status, and duration.
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

// metricsMiddleware records request count and latency.
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

// tracingMiddleware starts a span for each request.
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

// shieldCheck rejects any request lacking a valid shield token, unless
// enforcement has been disabled for local development.
func (s *server) shieldCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.ShieldEnforce {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("x-edge-shield")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.ShieldToken)) != 1 {
			if s.deps.Audit != nil {
				s.deps.Audit.Append("auth_fail", map[string]any{"ip": dhkalign.ClientIPFromContext(r.Context()), "route": r.URL.Path})
			}
			writeErr(w, dhkalign.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sizeCap rejects bodies larger than maxBodyBytes.
func (s *server) sizeCap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// contentTypeJSON requires application/json (charset optional) on POST bodies.
func (s *server) contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		base, _, _ := strings.Cut(ct, ";")
		if strings.TrimSpace(base) != "application/json" {
			writeErr(w, dhkalign.ErrUnsupportedMedia)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type translateRequest struct {
	Q       string `json:"q"`
	Text    string `json:"text"`
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
	Pack    string `json:"pack"`
}

// schemaValidate decodes and validates the request body, normalizes the
// input, and stashes the validated TranslateInput (plus the canonical
// cache key) in the request context for downstream middleware/handlers.
func (s *server) schemaValidate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body translateRequest
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

		raw := body.Text
		if raw == "" {
			raw = body.Q
		}
		if raw == "" {
			writeErr(w, dhkalign.ErrMissingQuery)
			return
		}
		cleaned, ok := validText(raw)
		if !ok {
			writeErr(w, dhkalign.ErrBadRequest)
			return
		}
		if !validLang(body.SrcLang) || !validLang(body.TgtLang) {
			writeErr(w, dhkalign.ErrBadRequest)
			return
		}

		srcLang := body.SrcLang
		if srcLang == "" {
			srcLang = dhkalign.LangBanglishRoman
		}
		tgtLang := body.TgtLang
		if tgtLang == "" {
			tgtLang = dhkalign.LangEnglish
		}

		in := dhkalign.TranslateInput{
			Text:    cleaned,
			SrcLang: srcLang,
			TgtLang: tgtLang,
			Pack:    body.Pack,
		}

		key := cacheKey(r.Method, r.URL.Path, in)
		ctx := contextWithInput(r.Context(), in)
		ctx = contextWithCacheKey(ctx, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cacheKey builds the canonical TTL cache key from method, path, and the
// normalized input, independent of the edge's own cache key (which hashes
// the raw request body before normalization happens at the origin).
func cacheKey(method, path string, in dhkalign.TranslateInput) string {
	norm := normalizeForCacheKey(in.Text)
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('|')
	b.WriteString(path)
	b.WriteByte('|')
	b.WriteString(in.SrcLang)
	b.WriteByte('|')
	b.WriteString(in.TgtLang)
	b.WriteByte('|')
	b.WriteString(in.Pack)
	b.WriteByte('|')
	b.WriteString(norm)
	return b.String()
}

// ipRateLimit enforces an optional per-IP token bucket with temp-ban
// escalation. Disabled unless a Registry was configured.
func (s *server) ipRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.RateLimit == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := dhkalign.ClientIPFromContext(r.Context())
		result := s.deps.RateLimit.Allow(ip)
		if result.Banned {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.WithLabelValues("temp_ban").Inc()
			}
			if s.deps.Audit != nil {
				s.deps.Audit.Append("temp_ban_ip", map[string]any{"ip": ip})
			}
			writeRateLimitErr(w, result.RetryAfterSeconds)
			return
		}
		if !result.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.WithLabelValues("ip").Inc()
			}
			if s.deps.Audit != nil {
				s.deps.Audit.Append("rate_limited", map[string]any{"ip": ip})
			}
			writeRateLimitErr(w, result.RetryAfterSeconds)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimitErr(w http.ResponseWriter, retryAfterSeconds float64) {
	if retryAfterSeconds > 0 {
		w.Header()["Retry-After"] = []string{strconv.Itoa(int(retryAfterSeconds) + 1)}
	}
	writeErr(w, dhkalign.ErrRateLimited)
}

// cacheRead serves a cached response body on hit, tagging it with
// X-Backend-Cache: HIT; on a miss it lets the handler run, which is
// responsible for writing the MISS tag and populating the cache itself.
func (s *server) cacheRead(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Cache == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := cacheKeyFromContext(r.Context())
		body, ok := s.deps.Cache.Get(r.Context(), key)
		if s.deps.Metrics != nil {
			if ok {
				s.deps.Metrics.CacheHits.WithLabelValues("origin").Inc()
			} else {
				s.deps.Metrics.CacheMisses.WithLabelValues("origin").Inc()
			}
		}
		if ok {
			w.Header().Set("X-Backend-Cache", "HIT")
			w.Header()["Content-Type"] = jsonCT
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
		next.ServeHTTP(w, r)
	})
}
