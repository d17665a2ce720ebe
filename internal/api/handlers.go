// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/invigilo/internal/audit"
	"github.com/tomtom215/invigilo/internal/banlist"
	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/database"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/netintel"
	"github.com/tomtom215/invigilo/internal/restriction"
	"github.com/tomtom215/invigilo/internal/risk"
	"github.com/tomtom215/invigilo/internal/session"
	ws "github.com/tomtom215/invigilo/internal/websocket"
)

// Handler carries the collaborators behind every HTTP endpoint.
//
// Handler methods are split across files by concern:
//   - handlers_monitoring.go: session lifecycle + websocket upgrade
//   - handlers_restrictions.go: restriction CRUD + appeal workflow
//   - handlers_bans.go: banned client registry
//   - handlers_events.go: security event queries
//   - handlers_netintel.go: connection class lookups and feed import
//   - handlers_health.go: liveness and readiness probes
//
// Any collaborator may be nil; the owning endpoints then degrade to
// NOT_FOUND or skip the check, which keeps handler tests focused.
type Handler struct {
	cfg          *config.Config
	registry     *session.Registry
	hub          *ws.Hub
	monitor      *ws.Monitor
	restrictions *restriction.Engine
	bans         *banlist.Registry
	audit        *audit.Writer
	risk         *risk.Aggregator
	intel        *netintel.Service
	db           *database.DB
	startTime    time.Time
}

// NewHandler wires the HTTP surface to its collaborators.
func NewHandler(
	cfg *config.Config,
	registry *session.Registry,
	hub *ws.Hub,
	monitor *ws.Monitor,
	restrictions *restriction.Engine,
	bans *banlist.Registry,
	auditor *audit.Writer,
	assessments *risk.Aggregator,
	intel *netintel.Service,
	db *database.DB,
) *Handler {
	return &Handler{
		cfg:          cfg,
		registry:     registry,
		hub:          hub,
		monitor:      monitor,
		restrictions: restrictions,
		bans:         bans,
		audit:        auditor,
		risk:         assessments,
		intel:        intel,
		db:           db,
		startTime:    time.Now(),
	}
}

// upgrader builds the websocket upgrader with origin checking and a
// handshake timeout against slow-loris clients.
func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates connection origins against the CORS
// allowlist. Browser clients always send Origin; an absent header means
// a non-browser client, which the exam runner never is, so it is
// rejected rather than waved through.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("Websocket connection rejected: missing Origin header")
		return false
	}

	if h.cfg == nil {
		return true
	}

	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().
		Str("origin", sanitizeLogValue(origin)).
		Msg("Websocket connection rejected from unauthorized origin")
	return false
}
