// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/banlist"
	"github.com/tomtom215/invigilo/internal/models"
)

// ListBans returns every ban record inside the retention window.
//
// @Summary List banned clients
// @Description Returns all ban records, active and lapsed, most recently updated first.
// @Tags Bans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=[]models.BannedClient} "Ban records"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /bans [get]
func (h *Handler) ListBans(w http.ResponseWriter, r *http.Request) {
	clients, err := h.bans.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Ban listing failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, clients)
}

// BanClient records a manual violation against a client address. The
// resulting ban duration follows the same escalation ladder as
// automatic violations.
//
// @Summary Ban a client
// @Description Records a violation for the address. Duration escalates with the violation count; past the permanent threshold the ban stops expiring.
// @Tags Bans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.BanClientRequest true "Violation"
// @Success 201 {object} models.APIResponse{data=models.BannedClient} "Ban recorded"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /bans [post]
func (h *Handler) BanClient(w http.ResponseWriter, r *http.Request) {
	var req models.BanClientRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	client, err := h.bans.RecordViolation(r.Context(), req.IPAddress, req.UserAgent, "", req.Reason)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Ban record failed", err)
		return
	}

	respondSuccess(w, http.StatusCreated, client)
}

// LiftBan removes a client's ban record.
//
// @Summary Lift a ban
// @Description Deletes the ban record for the address, including its device alias. The violation history restarts from zero.
// @Tags Bans
// @Produce json
// @Security BearerAuth
// @Param ip path string true "Banned IP address"
// @Success 200 {object} models.APIResponse "Ban lifted"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "No ban on record"
// @Router /bans/{ip} [delete]
func (h *Handler) LiftBan(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	if err := h.bans.Lift(r.Context(), ip); err != nil {
		if errors.Is(err, banlist.ErrNotBanned) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "No ban on record for this address", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Ban lift failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]any{"ip_address": ip, "lifted": true})
}

// ImportBans bulk-loads ban records, e.g. from a sibling deployment.
// Records with a lower violation count than an existing entry are
// skipped rather than allowed to weaken it.
//
// @Summary Import ban records
// @Description Bulk imports a JSON array of ban records. Existing entries only change when the import carries a higher violation count.
// @Tags Bans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body []models.BannedClient true "Ban records"
// @Success 200 {object} models.APIResponse "Import summary"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /bans/import [post]
func (h *Handler) ImportBans(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var clients []models.BannedClient
	if err := json.NewDecoder(r.Body).Decode(&clients); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}

	imported, err := h.bans.Import(r.Context(), clients)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Ban import failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]any{
		"imported": imported,
		"received": len(clients),
	})
}
