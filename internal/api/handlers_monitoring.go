// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/middleware"
	"github.com/tomtom215/invigilo/internal/models"
	"github.com/tomtom215/invigilo/internal/session"
	ws "github.com/tomtom215/invigilo/internal/websocket"
)

// StartMonitoring allocates a monitoring session for one exam attempt.
//
// The caller's identity arrives through the verified identity headers,
// never in the body. Denials are ordered: a banned client is refused
// before policy is consulted, an active restriction is refused before a
// slot is spent.
//
// @Summary Start a monitoring session
// @Description Allocates a realtime monitoring endpoint for an exam attempt. The response carries the websocket endpoint with its single-session token; connect before expires_at.
// @Tags Monitoring
// @Accept json
// @Produce json
// @Param request body models.StartMonitoringRequest true "Exam attempt"
// @Success 201 {object} models.APIResponse{data=models.StartMonitoringResponse} "Session allocated"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Missing or invalid identity headers"
// @Failure 403 {object} models.APIResponse "Client banned or restriction active"
// @Failure 503 {object} models.APIResponse "Endpoint pool exhausted"
// @Router /monitoring/start [post]
func (h *Handler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	studentID := middleware.StudentID(ctx)
	if studentID == "" {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity headers", nil)
		return
	}

	var req models.StartMonitoringRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ip := middleware.ClientIP(r)

	if h.bans != nil {
		banned, err := h.bans.IsBanned(ctx, ip, "")
		if err != nil {
			respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Ban lookup failed", err)
			return
		}
		if banned != nil {
			respondErrorDetails(w, http.StatusForbidden, "CLIENT_BANNED",
				"This client is banned from monitoring", banDetails(banned))
			return
		}
	}

	if h.restrictions != nil {
		decision := h.restrictions.CanProceed(ctx, studentID, req.ExamID, ip)
		if !decision.Allowed {
			respondErrorDetails(w, http.StatusForbidden, "RESTRICTION_ACTIVE",
				decision.Message, restrictionDetails(decision.Restriction))
			return
		}
	}

	sess, err := h.registry.Allocate(session.AllocateRequest{
		ExamID:    req.ExamID,
		StudentID: studentID,
		SourceIP:  ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, session.ErrPoolExhausted) {
			respondError(w, http.StatusServiceUnavailable, "POOL_EXHAUSTED",
				"No monitoring endpoint available, retry shortly", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Session allocation failed", err)
		return
	}

	if h.risk != nil {
		h.risk.StartSession(sess.SessionID, sess.ExamID, sess.StudentID)
	}

	logging.Info().
		Str("session_id", sess.SessionID).
		Str("exam_id", sess.ExamID).
		Str("student_id", sess.StudentID).
		Int("slot", sess.Slot).
		Msg("Monitoring session started")

	respondSuccess(w, http.StatusCreated, models.StartMonitoringResponse{
		SessionID: sess.SessionID,
		Endpoint:  "/api/v1/monitor/ws?token=" + sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// StopMonitoring completes a session gracefully. Only the owning
// student can stop it; anyone else sees the same 404 as for a session
// that never existed.
//
// @Summary Stop a monitoring session
// @Description Marks the exam attempt complete and releases its endpoint. Connected clients receive session_terminated.
// @Tags Monitoring
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} models.APIResponse "Session completed"
// @Failure 404 {object} models.APIResponse "Unknown session"
// @Router /monitoring/{sessionID}/stop [post]
func (h *Handler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := h.registry.Get(sessionID)
	if !ok || sess.StudentID != middleware.StudentID(r.Context()) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No such monitoring session", nil)
		return
	}

	h.registry.Release(sessionID, session.ReasonCompleted)

	respondSuccess(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"state":      "completed",
	})
}

// ListSessions returns live session snapshots enriched with the
// current risk assessment.
//
// @Summary List active monitoring sessions
// @Description Returns every live session with connection counts, risk scores and violation counts, ordered by start time.
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=[]models.SessionSnapshot} "Active sessions"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /monitoring/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	started := time.Now()

	sessions := h.registry.List()
	snapshots := make([]models.SessionSnapshot, 0, len(sessions))

	for _, sess := range sessions {
		snap := sess.Snapshot()

		if h.risk != nil {
			if assessment, ok := h.risk.Snapshot(sess.SessionID); ok {
				snap.OverallRisk = assessment.OverallRisk
				snap.Bucket = assessment.Bucket
				snap.ConsecutiveAlerts = assessment.ConsecutiveAlerts
			}
		}

		if h.audit != nil {
			count, err := h.audit.Count(ctx, models.EventFilter{
				SessionID:      sess.SessionID,
				SuspiciousOnly: true,
			})
			if err == nil {
				snap.ViolationCount = int(count)
			}
		}

		snapshots = append(snapshots, snap)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   snapshots,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(started).Milliseconds(),
		},
	})
}

// ChallengeSession forces a session to re-validate its environment.
// The nonce travels only over the session's websocket; the admin
// response confirms dispatch and the answer deadline.
//
// @Summary Challenge a monitoring session
// @Description Sends a validation_challenge frame to the session. The client must answer with a fresh fingerprint carrying the nonce before the deadline or be rejected.
// @Tags Monitoring
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} models.APIResponse "Challenge dispatched"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "Unknown session"
// @Router /monitoring/{sessionID}/challenge [post]
func (h *Handler) ChallengeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if h.monitor == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Challenges unavailable", nil)
		return
	}

	challenge, err := h.monitor.Challenge(sessionID)
	if err != nil {
		if errors.Is(err, ws.ErrSessionGone) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "No such monitoring session", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Challenge dispatch failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]any{
		"session_id":  sessionID,
		"deadline_ms": challenge.DeadlineMS,
	})
}

// MonitorWS upgrades the connection into the realtime telemetry
// channel. The endpoint token from the start-monitoring response is the
// only credential; browsers cannot attach custom headers to websocket
// dials, so it rides the query string.
//
// @Summary Realtime monitoring channel
// @Description Upgrades to a websocket carrying telemetry inbound (browser_validation, security_event, keyboard_data, mouse_data, answer_data) and verdicts outbound.
// @Tags Monitoring
// @Param token query string true "Endpoint token"
// @Success 101 "Switching protocols"
// @Failure 401 {object} models.APIResponse "Invalid or expired endpoint token"
// @Failure 403 {object} models.APIResponse "Client banned"
// @Router /monitor/ws [get]
func (h *Handler) MonitorWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing endpoint token", nil)
		return
	}

	sess, err := h.registry.Resolve(token)
	if err != nil {
		logging.Warn().Err(err).Str("ip", middleware.ClientIP(r)).Msg("Endpoint token rejected")
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired endpoint token", nil)
		return
	}

	if h.bans != nil {
		banned, err := h.bans.IsBanned(r.Context(), middleware.ClientIP(r), "")
		if err == nil && banned != nil {
			respondErrorDetails(w, http.StatusForbidden, "CLIENT_BANNED",
				"This client is banned from monitoring", banDetails(banned))
			return
		}
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		logging.Warn().Err(err).
			Str("session_id", sess.SessionID).
			Msg("Websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, sess, h.monitor)
	h.hub.Register <- client
	client.Start()

	logging.Info().
		Str("session_id", sess.SessionID).
		Str("exam_id", sess.ExamID).
		Msg("Monitoring connection established")
}

// restrictionDetails flattens the policy-relevant fields of a denial
// for the error envelope.
func restrictionDetails(r *models.Restriction) map[string]any {
	if r == nil {
		return nil
	}

	details := map[string]any{
		"restriction_id":   r.ID,
		"restriction_type": string(r.Type),
		"is_permanent":     r.IsPermanent,
	}
	if !r.IsPermanent {
		details["restricted_until"] = r.RestrictedUntil.Format(time.RFC3339)
	}
	if r.Scope != "" {
		details["scope"] = r.Scope
	}
	return details
}

// banDetails flattens a ban for the error envelope.
func banDetails(b *models.BannedClient) map[string]any {
	details := map[string]any{
		"is_permanent":    b.IsPermanent,
		"violation_count": b.ViolationCount,
	}
	if !b.IsPermanent {
		details["ban_until"] = b.BanUntil.Format(time.RFC3339)
	}
	return details
}
