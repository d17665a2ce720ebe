// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/invigilo/internal/models"
)

// Healthz is the liveness probe. It answers 200 whenever the process
// can serve HTTP, regardless of dependency state.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse "Process is alive"
// @Router /healthz [get]
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// Readyz is the readiness probe. It answers 200 only when the event
// store is reachable, so load balancers drain a node whose storage
// died while the supervisor restarts it.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse "Ready to serve"
// @Failure 503 {object} models.APIResponse "Dependencies unavailable"
// @Router /readyz [get]
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil
	ready := dbConnected

	data := map[string]any{
		"ready":              ready,
		"database_connected": dbConnected,
		"uptime":             time.Since(h.startTime).Seconds(),
	}
	if h.registry != nil {
		data["sessions_active"] = h.registry.Count()
	}
	if h.hub != nil {
		data["websocket_clients"] = h.hub.ClientCount()
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "error",
			Data:   data,
			Metadata: models.Metadata{
				Timestamp: time.Now().UTC(),
			},
			Error: &models.APIError{
				Code:    "NOT_READY",
				Message: "Event store unreachable",
			},
		})
		return
	}

	respondSuccess(w, http.StatusOK, data)
}
