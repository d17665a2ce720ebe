// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package middleware provides the HTTP middleware stack for the API server.

All components use the standard func(http.Handler) http.Handler shape so
they compose with chi's Use/With. The typical stack, outermost first:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)   // UUID tracking + logging context
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Logger)      // per-request structured log line
	r.Use(chimw.Recoverer)        // panic -> 500, not a dead worker
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(...))      // go-chi/cors from config origins
	r.Use(httprate.LimitByIP(...))
	r.Use(middleware.Prometheus)  // request counter + duration histogram

Route groups add their own gate:

	r.Route("/api/v1", func(r chi.Router) {
	    r.Group(func(r chi.Router) {
	        r.Use(middleware.RequireIdentity(cfg.IdentitySecret))
	        // student-facing endpoints
	    })
	    r.Group(func(r chi.Router) {
	        r.Use(middleware.AdminAuth(cfg.AdminToken))
	        // admin endpoints
	    })
	})

Identity is issued by the external exam platform, never here. The
platform forwards X-Student-ID together with X-Identity-Token, an
HMAC-SHA256 of the student ID under a shared secret; RequireIdentity
verifies the signature and rejects anything else. AdminAuth gates the
admin group with a static bearer token compared in constant time. An
empty admin token disables the whole admin surface.

Request IDs propagate from upstream proxies via X-Request-ID and land
in both the response header and the logging context, so every log line
of a request carries the same identifiers.

Prometheus instrumentation labels requests by chi route pattern, not
raw path, so session and restriction IDs never explode the metric
cardinality.
*/
package middleware
