// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package main provides the Invigilo HTTP server
//
// Invigilo monitors online exam sessions in real time and escalates
// integrity violations through graduated responses.
//
// @title Invigilo API
// @version 1.0
// @description Real-time exam integrity monitoring and risk escalation platform
// @description
// @description ## Features
// @description
// @description - **Session Monitoring**: WebSocket telemetry streaming with a bounded session pool
// @description - **Environment Validation**: Browser fingerprint checklist with re-validation challenges
// @description - **Behavioral Signals**: Mouse, keyboard and answer-pattern processors
// @description - **Risk Aggregation**: Weighted sliding-window scores with bucket transitions
// @description - **Graduated Responses**: Log, warn, challenge, lock and terminate
// @description - **Restrictions and Bans**: Escalating cooldown ladders with an appeal workflow
// @description - **Audit Trail**: Every security event persisted to DuckDB
// @description
// @description ## Authentication
// @description
// @description Proctor and admin endpoints require the admin bearer token in the
// @description Authorization header. Candidate WebSocket connections authenticate with
// @description the signed single-use token issued by `/api/v1/monitoring/start`.
// @description
// @description ## Rate Limiting
// @description
// @description Default rate limit: 100 requests per minute per IP address.
// @description Rate limit headers are included in responses: `X-RateLimit-Limit`, `X-RateLimit-Remaining`, `X-RateLimit-Reset`.
// @description
// @description ## Error Responses
// @description
// @description All error responses follow this format:
// @description ```json
// @description {
// @description   "status": "error",
// @description   "data": null,
// @description   "error": {
// @description     "code": "ERROR_CODE",
// @description     "message": "Human-readable error message",
// @description     "details": {}
// @description   },
// @description   "metadata": {
// @description     "timestamp": "2026-08-23T12:34:56Z"
// @description   }
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/invigilo/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Admin bearer token, sent as "Bearer {token}". Configured via ADMIN_TOKEN.
//
// @tag.name Monitoring
// @tag.description Session lifecycle endpoints: start monitoring, stop monitoring, the WebSocket upgrade and re-validation challenges
//
// @tag.name Sessions
// @tag.description Proctor visibility into active sessions and their live risk assessments
//
// @tag.name Restrictions
// @tag.description Restriction listing, appeals and administrative lifts
//
// @tag.name Bans
// @tag.description Banned client listing, import and administrative lifts
//
// @tag.name Events
// @tag.description Security event audit trail queries
//
// @tag.name NetIntel
// @tag.description Network intelligence lookups, imports and statistics
//
// @tag.name Health
// @tag.description Health checks, readiness probes and Prometheus metrics
package main
