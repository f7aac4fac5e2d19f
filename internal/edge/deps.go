// Package edge implements the public ingress: the sole HTTP surface
// clients reach directly. It owns the Key/Quota Store, the edge response
// cache, CORS, the billing handoff, the payment webhook, and the admin
// endpoints, and forwards every translate request to the private origin
// over a shielded HTTP call. It never touches the Phrase Store directly.
package edge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	dhkalign "github.com/dhkalign/gateway/internal"
	"github.com/dhkalign/gateway/internal/audit"
	"github.com/dhkalign/gateway/internal/cache"
	"github.com/dhkalign/gateway/internal/keystore"
	"github.com/dhkalign/gateway/internal/telemetry"
)

// Deps holds everything the edge HTTP transport needs. Nil-valued optional
// fields degrade a feature off rather than panicking, matching the origin
// service's convention.
type Deps struct {
	Keys  keystore.Store
	Cache cache.Cache // nil = no edge response cache

	Origin *OriginClient

	AdminKey    string
	ShieldToken string
	DailyQuota  int64
	CacheTTL    time.Duration
	CORSOrigins []string
	BuildSHA    string
	Env         string

	Webhook WebhookConfig

	Audit *audit.Writer // nil = no audit log (tests only)

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	Tracer         trace.Tracer
}

// WebhookConfig configures payment-provider webhook verification.
type WebhookConfig struct {
	Secret           string
	ToleranceSeconds int
	SessionTTL       time.Duration
	EventTTL         time.Duration
}

type server struct {
	deps Deps
}

// New builds the edge HTTP handler with the full request pipeline and
// route table: CORS -> dispatch -> admin gate -> pro gate -> quota ->
// cache read -> shield injection -> cache write -> error mapping.
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
	r.Use(s.cors)

	r.Get("/edge/health", s.handleEdgeHealth)
	r.Get("/version", s.handleVersion)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.parseTranslate)
		r.Use(s.edgeCacheRead)
		r.Get("/api/translate", s.handleFreeTranslateGET)
		r.Post("/translate", s.handleFreeTranslatePOST)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.parseTranslate)
		r.Use(s.proGate)
		r.Use(s.quota)
		r.Use(s.edgeCacheRead)
		r.Post("/translate/pro", s.handleProTranslate)
	})

	r.Get("/billing/key", s.handleBillingKey)
	r.Post("/webhook/stripe", s.handleWebhookStripe)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminGate)
		r.Get("/health", s.handleAdminHealth)
		r.Get("/cache_stats", s.handleAdminCacheStats)
		r.Get("/whoami", s.handleAdminWhoami)
		r.Get("/keys/add", s.handleAdminKeyAdd)
		r.Get("/keys/check", s.handleAdminKeyCheck)
		r.Get("/keys/del", s.handleAdminKeyDel)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, dhkalign.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{OK: false, Error: "bad_request"})
	})

	return r
}
