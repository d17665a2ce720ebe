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

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// eventFilterFromQuery builds an event filter from query parameters.
// Unknown or unparseable values fall back to the unconstrained zero
// value rather than erroring, matching how operators iterate on filters.
func eventFilterFromQuery(r *http.Request) models.EventFilter {
	limit := getIntParam(r, "limit", defaultEventLimit)
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	offset := getIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	return models.EventFilter{
		SessionID:      r.URL.Query().Get("session_id"),
		ExamID:         r.URL.Query().Get("exam_id"),
		StudentID:      r.URL.Query().Get("student_id"),
		Type:           models.SecurityEventType(r.URL.Query().Get("type")),
		Since:          getTimeParam(r, "since"),
		Until:          getTimeParam(r, "until"),
		SuspiciousOnly: getBoolParam(r, "suspicious_only"),
		Limit:          limit,
		Offset:         offset,
	}
}

// QueryEvents returns security events matching the filter, newest
// first.
//
// @Summary Query security events
// @Description Returns audit events filtered by session, student, exam, type, time range and suspicion flag. Results are newest first.
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param session_id query string false "Session ID"
// @Param exam_id query string false "Exam ID"
// @Param student_id query string false "Student ID"
// @Param type query string false "Event type"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param suspicious_only query bool false "Only suspicious events"
// @Param limit query int false "Max results (default 100, cap 1000)"
// @Param offset query int false "Results to skip"
// @Success 200 {object} models.APIResponse{data=[]models.SecurityEvent} "Events"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /events [get]
func (h *Handler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	filter := eventFilterFromQuery(r)

	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Event query failed", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   events,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(started).Milliseconds(),
		},
	})
}

// CountEvents returns how many events match the filter, ignoring
// limit/offset.
//
// @Summary Count security events
// @Description Returns the number of audit events matching the same filters as the query endpoint.
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param session_id query string false "Session ID"
// @Param exam_id query string false "Exam ID"
// @Param student_id query string false "Student ID"
// @Param type query string false "Event type"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param suspicious_only query bool false "Only suspicious events"
// @Success 200 {object} models.APIResponse "Count"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /events/count [get]
func (h *Handler) CountEvents(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	filter := eventFilterFromQuery(r)

	count, err := h.audit.Count(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Event count failed", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]any{"count": count},
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(started).Milliseconds(),
		},
	})
}
