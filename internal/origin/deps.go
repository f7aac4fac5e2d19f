// Package origin implements the private translation service: DB-first
// phrase lookup with normalization, optional external-LM fallback on a
// pro-tier miss, a TTL response cache, and the request validation
// middleware guarding both. It never accepts direct public traffic --
// every caller is expected to be the edge gateway, presenting a shield
// token over a private network path.
package origin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/audit"
	"github.com/dhkalign/gateway/internal/cache"
	"github.com/dhkalign/gateway/internal/circuitbreaker"
	"github.com/dhkalign/gateway/internal/lm"
	"github.com/dhkalign/gateway/internal/phrase"
	"github.com/dhkalign/gateway/internal/ratelimit"
	"github.com/dhkalign/gateway/internal/telemetry"
)

// breakerKey names the single circuit breaker this service registers: the
// LM fallback call. A Registry is still used (rather than a bare Breaker)
// so additional guarded endpoints can be registered without rewiring.
const breakerKey = "lm_fallback"

// Deps holds everything the origin HTTP transport needs. Nil-valued
// optional fields degrade a feature off rather than panicking.
type Deps struct {
	Store phrase.Store
	Cache cache.Cache // nil = no TTL cache (always a miss, never written)

	LM              *lm.Client
	FallbackEnabled bool
	Breakers        *circuitbreaker.Registry // nil = no circuit breaker around LM

	RateLimit       *ratelimit.Registry // nil = IP rate limiting disabled
	RateLimitConfig ratelimit.Config

	Audit *audit.Writer // nil = no audit log (tests only)

	Metrics        *telemetry.Metrics // nil = no Prometheus metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	Tracer         trace.Tracer       // nil = no distributed tracing

	ShieldToken   string
	ShieldEnforce bool

	CacheTTL              time.Duration
	AutoInsertSafetyLevel dhkalign.SafetyLevel

	DBPath func() string // reports the Phrase Store's DSN for /health
}

type server struct {
	deps Deps
}

// New builds the origin HTTP handler with the full middleware pipeline and
// route table wired per the required ordering: shield check -> size cap ->
// content-type check -> schema validate -> IP rate limit -> TTL cache read
// -> handler dispatch.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()
	r.Use(s.securityHeaders)
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(s.metricsMiddleware)
	}
	if deps.Tracer != nil {
		r.Use(s.tracingMiddleware)
	}

	r.Get("/health", s.handleHealth)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.shieldCheck)
		r.Use(s.sizeCap)
		r.Use(s.contentTypeJSON)
		r.Use(s.schemaValidate)
		r.Use(s.ipRateLimit)
		r.Use(s.cacheRead)
		r.Post("/translate", s.handleTranslate)
		r.Post("/translate/pro", s.handleTranslatePro)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, dhkalign.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{OK: false, Error: "bad_request"})
	})

	return r
}
