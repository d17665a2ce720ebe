// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package api provides the HTTP surface of the monitoring engine: the
student-facing session lifecycle, the multiplexed websocket endpoint,
and the admin control plane.

# Surface

Student endpoints (gated by the external identity layer's headers):

	POST /api/v1/monitoring/start            allocate a monitoring session
	POST /api/v1/monitoring/{id}/stop        complete a session
	GET  /api/v1/monitor/ws?token=…          the realtime telemetry channel
	POST /api/v1/restrictions/{id}/appeal    appeal a restriction

Admin endpoints (gated by a static bearer token):

	GET    /api/v1/monitoring/sessions            live session snapshots
	POST   /api/v1/monitoring/{id}/challenge      force a re-validation
	GET    /api/v1/restrictions                   list restrictions
	GET    /api/v1/restrictions/student/{id}      per-student history
	POST   /api/v1/restrictions                   impose/escalate
	GET    /api/v1/restrictions/{id}              fetch one
	DELETE /api/v1/restrictions/{id}              lift
	POST   /api/v1/restrictions/{id}/appeal/review   move appeal under review
	POST   /api/v1/restrictions/{id}/appeal/resolve  approve or reject
	GET    /api/v1/bans                           list banned clients
	POST   /api/v1/bans                           record a manual violation
	DELETE /api/v1/bans/{ip}                      lift a ban
	POST   /api/v1/bans/import                    bulk import
	GET    /api/v1/events                         security event query
	GET    /api/v1/events/count                   matching event count
	GET    /api/v1/netintel/{ip}                  connection class lookup
	POST   /api/v1/netintel/import                range feed import
	GET    /metrics                               Prometheus exposition

Unauthenticated:

	GET /api/v1/healthz      liveness
	GET /api/v1/readyz       readiness (storage probes)
	GET /swagger/*           OpenAPI UI

# Responses

Every JSON endpoint wraps its payload in models.APIResponse with a
status discriminator, optional data, optional error and a metadata
timestamp. Error codes are stable strings (VALIDATION_ERROR,
RESTRICTION_ACTIVE, CLIENT_BANNED, POOL_EXHAUSTED, NOT_FOUND,
PERSISTENCE_ERROR, UNAUTHORIZED, RATE_LIMIT_EXCEEDED) so clients can
branch without parsing messages.

# Router

NewRouter assembles the chi stack: request IDs, trusted-proxy IP
resolution, structured request logging, panic recovery, security
headers, CORS, per-IP rate limiting and Prometheus instrumentation,
then mounts the route groups with their gates. See internal/middleware
for the individual components.
*/
package api
