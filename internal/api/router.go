// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/middleware"
)

const (
	// defaultRateLimitPerMinute applies when the configured limit is
	// unset, which happens in tests that build a zero-value config.
	defaultRateLimitPerMinute = 100

	// probeRateLimitPerMinute stays loose so liveness probes and
	// dashboards can poll health without burning the API budget of the
	// probe host.
	probeRateLimitPerMinute = 1000
)

// NewRouter assembles the complete HTTP surface around h.
//
// Route groups, in registration order:
//
//   - health probes, open, with a permissive rate limit
//   - student surface, behind signed identity headers
//   - monitor websocket, authenticated by the one-time endpoint token
//   - admin surface, behind the bearer admin token
//   - observability (/metrics behind the admin token, /swagger open)
//
// Restriction routes are registered as flat patterns rather than
// mounted subrouters: the student group owns POST
// /restrictions/{id}/appeal while the admin group owns the rest, and
// both must land in the same routing subtree.
func NewRouter(h *Handler) http.Handler {
	sec := config.SecurityConfig{}
	if h.cfg != nil {
		sec = h.cfg.Security
	}

	requestsPerMinute := sec.RateLimitPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRateLimitPerMinute
	}

	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP(sec.TrustedProxies))
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(corsOptions(sec.CORSOrigins)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed for this endpoint", nil)
	})

	// One shared counter store per limiter, keyed by resolved client IP.
	apiLimit := httprate.Limit(requestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	)
	probeLimit := httprate.Limit(probeRateLimitPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	)

	// ========================
	// Health Probes
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(probeLimit)

		r.Get("/api/v1/healthz", h.Healthz)
		r.Get("/api/v1/readyz", h.Readyz)
	})

	// ========================
	// Student Surface
	// ========================
	// Exam clients arrive with X-Student-ID plus the HMAC identity
	// token minted by the institution's login layer.
	r.Group(func(r chi.Router) {
		r.Use(apiLimit)
		r.Use(middleware.Prometheus)
		r.Use(middleware.RequireIdentity(sec.IdentitySecret))

		r.Post("/api/v1/monitoring/start", h.StartMonitoring)
		r.Post("/api/v1/monitoring/{sessionID}/stop", h.StopMonitoring)
		r.Post("/api/v1/restrictions/{id}/appeal", h.SubmitAppeal)
	})

	// ========================
	// Monitor WebSocket
	// ========================
	// Browser WebSocket clients cannot set custom headers, so this
	// route authenticates with the single-use token returned by
	// /monitoring/start instead of the identity headers.
	r.Group(func(r chi.Router) {
		r.Use(apiLimit)
		r.Use(middleware.Prometheus)

		r.Get("/api/v1/monitor/ws", h.MonitorWS)
	})

	// ========================
	// Admin Surface
	// ========================
	// An empty admin token keeps this entire group dark (404).
	r.Group(func(r chi.Router) {
		r.Use(apiLimit)
		r.Use(middleware.Prometheus)
		r.Use(middleware.AdminAuth(sec.AdminToken))
		r.Use(middleware.Compression)

		r.Get("/api/v1/monitoring/sessions", h.ListSessions)
		r.Post("/api/v1/monitoring/{sessionID}/challenge", h.ChallengeSession)

		r.Get("/api/v1/restrictions", h.ListRestrictions)
		r.Post("/api/v1/restrictions", h.ImposeRestriction)
		r.Get("/api/v1/restrictions/student/{studentID}", h.ListStudentRestrictions)
		r.Get("/api/v1/restrictions/{id}", h.GetRestriction)
		r.Delete("/api/v1/restrictions/{id}", h.LiftRestriction)
		r.Post("/api/v1/restrictions/{id}/appeal/review", h.ReviewAppeal)
		r.Post("/api/v1/restrictions/{id}/appeal/resolve", h.ResolveAppeal)

		r.Get("/api/v1/bans", h.ListBans)
		r.Post("/api/v1/bans", h.BanClient)
		r.Post("/api/v1/bans/import", h.ImportBans)
		r.Delete("/api/v1/bans/{ip}", h.LiftBan)

		r.Get("/api/v1/events", h.QueryEvents)
		r.Get("/api/v1/events/count", h.CountEvents)

		// Network intelligence is optional; without a range feed the
		// routes stay unregistered and fall through to 404.
		if h.intel != nil {
			r.Get("/api/v1/netintel", h.NetIntelStats)
			r.Get("/api/v1/netintel/{ip}", h.NetIntelLookup)
			r.Post("/api/v1/netintel/import", h.NetIntelImport)
		}
	})

	// ========================
	// Observability
	// ========================
	// Metrics carry per-exam session counts, so they sit behind the
	// admin token. No compression here: promhttp negotiates its own.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(sec.AdminToken))

		r.Handle("/metrics", promhttp.Handler())
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	return r
}

// rateLimited renders the standard envelope for requests rejected by
// httprate. The middleware has already set Retry-After.
func rateLimited(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", nil)
}

// corsOptions builds the CORS policy for exam clients and the admin
// console. With no configured origins the surface stays open, which is
// the right default for single-host deployments behind a proxy.
func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Student-ID", "X-Identity-Token", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}
}
