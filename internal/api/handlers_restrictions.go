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

	"github.com/tomtom215/invigilo/internal/middleware"
	"github.com/tomtom215/invigilo/internal/models"
	"github.com/tomtom215/invigilo/internal/restriction"
)

// ListRestrictions returns every restriction on record, active or not.
//
// @Summary List restrictions
// @Description Returns all restrictions including lapsed and lifted records still inside the history retention window.
// @Tags Restrictions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=[]models.Restriction} "Restrictions"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /restrictions [get]
func (h *Handler) ListRestrictions(w http.ResponseWriter, r *http.Request) {
	restrictions, err := h.restrictions.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Restriction listing failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, restrictions)
}

// ListStudentRestrictions returns one student's restriction history.
//
// @Summary List restrictions for a student
// @Description Returns the student's restrictions across all types and scopes.
// @Tags Restrictions
// @Produce json
// @Security BearerAuth
// @Param studentID path string true "Student ID"
// @Success 200 {object} models.APIResponse{data=[]models.Restriction} "Restrictions"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /restrictions/student/{studentID} [get]
func (h *Handler) ListStudentRestrictions(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	restrictions, err := h.restrictions.ListByStudent(r.Context(), studentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Restriction listing failed", err)
		return
	}

	respondSuccess(w, http.StatusOK, restrictions)
}

// ImposeRestriction creates or escalates a restriction from the admin
// surface. Repeat impositions against the same (student, type, scope)
// key escalate the existing record instead of duplicating it.
//
// @Summary Impose a restriction
// @Description Creates a restriction, or escalates the duration ladder when one already exists for the same student, type and scope.
// @Tags Restrictions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ImposeRestrictionRequest true "Restriction"
// @Success 201 {object} models.APIResponse{data=models.Restriction} "Restriction imposed"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Router /restrictions [post]
func (h *Handler) ImposeRestriction(w http.ResponseWriter, r *http.Request) {
	var req models.ImposeRestrictionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if !req.Type.Valid() {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"type must be one of: exam_ban, account_suspension, ip_ban, global_ban", nil)
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = req.ExamID
	}

	imposed, err := h.restrictions.Impose(r.Context(), req.StudentID, req.Type, scope, models.Violation{
		Reason:     req.Reason,
		ExamID:     req.ExamID,
		RiskScore:  req.RiskScore,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusCreated, imposed)
}

// GetRestriction fetches one restriction by ID.
//
// @Summary Get a restriction
// @Tags Restrictions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Restriction ID"
// @Success 200 {object} models.APIResponse{data=models.Restriction} "Restriction"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /restrictions/{id} [get]
func (h *Handler) GetRestriction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.restrictions.Get(r.Context(), id)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, found)
}

// LiftRestriction removes a restriction ahead of its expiry.
//
// @Summary Lift a restriction
// @Description Marks the restriction lifted. The record stays on file for history; a later violation against the same key revives it.
// @Tags Restrictions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Restriction ID"
// @Param lifted_by query string false "Operator identifier"
// @Success 200 {object} models.APIResponse{data=models.Restriction} "Restriction lifted"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /restrictions/{id} [delete]
func (h *Handler) LiftRestriction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	liftedBy := r.URL.Query().Get("lifted_by")
	if liftedBy == "" {
		liftedBy = "admin"
	}

	lifted, err := h.restrictions.Lift(r.Context(), id, liftedBy)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, lifted)
}

// SubmitAppeal files a student appeal against a restriction. Students
// can only appeal their own restrictions; anyone else's ID draws the
// same 404 as an unknown one.
//
// @Summary Appeal a restriction
// @Description Submits an appeal. Only one appeal can be in flight per restriction; a rejected appeal may be resubmitted.
// @Tags Restrictions
// @Accept json
// @Produce json
// @Param id path string true "Restriction ID"
// @Param request body models.AppealRequest true "Appeal text"
// @Success 200 {object} models.APIResponse{data=models.Restriction} "Appeal submitted"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 404 {object} models.APIResponse "Not found"
// @Failure 409 {object} models.APIResponse "Appeal already in flight"
// @Router /restrictions/{id}/appeal [post]
func (h *Handler) SubmitAppeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req models.AppealRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	existing, err := h.restrictions.Get(ctx, id)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}
	if existing.StudentID != middleware.StudentID(ctx) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Restriction not found", nil)
		return
	}

	appealed, err := h.restrictions.SubmitAppeal(ctx, id, req.Text)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, appealed)
}

// ReviewAppeal moves a submitted appeal under review.
//
// @Summary Take an appeal under review
// @Tags Restrictions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Restriction ID"
// @Success 200 {object} models.APIResponse{data=models.Restriction} "Appeal under review"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "Not found"
// @Failure 409 {object} models.APIResponse "No appeal awaiting review"
// @Router /restrictions/{id}/appeal/review [post]
func (h *Handler) ReviewAppeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reviewed, err := h.restrictions.ReviewAppeal(r.Context(), id)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, reviewed)
}

// ResolveAppeal settles an appeal under review. Approval lifts the
// restriction; rejection leaves it in force and reopens the appeal
// path.
//
// @Summary Resolve an appeal
// @Tags Restrictions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Restriction ID"
// @Param request body models.ResolveAppealRequest true "Resolution"
// @Success 200 {object} models.APIResponse{data=models.Restriction} "Appeal resolved"
// @Failure 401 {object} models.APIResponse "Unauthorized"
// @Failure 404 {object} models.APIResponse "Not found"
// @Failure 409 {object} models.APIResponse "No appeal under review"
// @Router /restrictions/{id}/appeal/resolve [post]
func (h *Handler) ResolveAppeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.ResolveAppealRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resolved, err := h.restrictions.ResolveAppeal(r.Context(), id, req.Approve, req.Note, req.Reviewer)
	if err != nil {
		h.respondRestrictionError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, resolved)
}

// respondRestrictionError maps restriction engine errors onto the
// error envelope.
func (h *Handler) respondRestrictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, restriction.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Restriction not found", nil)
	case errors.Is(err, restriction.ErrInvalidAppealTransition):
		respondError(w, http.StatusConflict, "CONFLICT", "Appeal is not in a state that allows this transition", nil)
	case errors.Is(err, restriction.ErrInvalidRestriction):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Restriction store failure", err)
	}
}
