// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NetIntelLookup classifies one address against the loaded ranges.
//
// @Summary Look up an address
// @Description Returns the connection class (vpn, proxy, datacenter, tor) and provider for an address, if any loaded range covers it.
// @Tags NetIntel
// @Produce json
// @Security BearerAuth
// @Param ip path string true "IP address"
// @Success 200 {object} models.APIResponse{data=netintel.LookupResult} "Lookup result"
// @Failure 400 {object} models.APIResponse "Invalid address"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /netintel/{ip} [get]
func (h *Handler) NetIntelLookup(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if net.ParseIP(ip) == nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Not a valid IP address", nil)
		return
	}

	respondSuccess(w, http.StatusOK, h.intel.Inspect(ip))
}

// NetIntelImport replaces the loaded ranges from a JSON feed document.
//
// @Summary Import a range feed
// @Description Loads a feed document of classified CIDR ranges, replacing the current population and persisting it for restart.
// @Tags NetIntel
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=netintel.ImportResult} "Import summary"
// @Failure 400 {object} models.APIResponse "Malformed feed"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /netintel/import [post]
func (h *Handler) NetIntelImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unreadable request body", err)
		return
	}

	result, err := h.intel.ImportFromBytes(r.Context(), data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed range feed", err)
		return
	}

	respondSuccess(w, http.StatusOK, result)
}

// NetIntelStats reports the loaded range population.
//
// @Summary Range set statistics
// @Tags NetIntel
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=netintel.Stats} "Statistics"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /netintel [get]
func (h *Handler) NetIntelStats(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.intel.Stats())
}
