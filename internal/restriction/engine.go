// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package restriction enforces graduated access limitations on students.
//
// Four restriction types form a severity ladder: exam_ban (one exam),
// account_suspension (all exams), ip_ban (an address, any student) and
// global_ban (everything). A violation against an existing (student, type,
// scope) key appends to its history and lengthens the restriction via the
// per-type duration ladder; it never creates a duplicate record. Past the
// escalation cap the student is converted to a permanent global ban.
//
// Access checks fail open: a storage error grants access and raises an
// alarm, because locking every student out of their exams on an outage is
// the worse failure mode.
package restriction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// ErrInvalidAppealTransition is returned when an appeal operation is not
// legal from the restriction's current appeal state.
var ErrInvalidAppealTransition = errors.New("invalid appeal state transition")

// ErrInvalidRestriction is returned for malformed Impose arguments.
var ErrInvalidRestriction = errors.New("invalid restriction parameters")

// Recorder receives security events emitted by the engine. Satisfied by
// the audit writer; tests substitute a capture.
type Recorder interface {
	Record(event *models.SecurityEvent)
}

// Engine applies the restriction policy: escalating durations per repeat
// violation, cap conversion to permanent global bans, appeal lifecycle,
// and fail-open access checks.
type Engine struct {
	store    Store
	cfg      config.RestrictionConfig
	recorder Recorder

	// studentLocks serializes mutations per student so concurrent
	// violations cannot race the read-modify-write cycle.
	studentLocks sync.Map

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a policy engine over the given store. A nil recorder
// disables event emission.
func NewEngine(store Store, cfg config.RestrictionConfig, recorder Recorder) *Engine {
	if cfg.EscalationCap <= 0 {
		cfg.EscalationCap = 5
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 90 * 24 * time.Hour
	}
	if len(cfg.Ladders) == 0 {
		cfg.Ladders = map[string][]time.Duration{
			string(models.RestrictionExamBan):           {2 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			string(models.RestrictionAccountSuspension): {24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			string(models.RestrictionIPBan):             {6 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			string(models.RestrictionGlobalBan):         {7 * 24 * time.Hour, 30 * 24 * time.Hour},
		}
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
	}
}

// lockStudent returns the mutex guarding one student's records.
func (e *Engine) lockStudent(studentID string) *sync.Mutex {
	mu, _ := e.studentLocks.LoadOrStore(studentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Impose records a violation and creates or escalates the restriction for
// (studentID, t, scope). Account and global restrictions always use the
// global scope; exam bans scope to the exam ID and IP bans to the address.
//
// Returns the restriction now in force for the student, which is the
// permanent global ban when the escalation cap has been exceeded.
func (e *Engine) Impose(ctx context.Context, studentID string, t models.RestrictionType, scope string, v models.Violation) (*models.Restriction, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student ID required", ErrInvalidRestriction)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRestriction, t)
	}
	switch t {
	case models.RestrictionAccountSuspension, models.RestrictionGlobalBan:
		scope = models.ScopeGlobal
	case models.RestrictionExamBan, models.RestrictionIPBan:
		if scope == "" {
			return nil, fmt.Errorf("%w: %s requires a scope", ErrInvalidRestriction, t)
		}
	}
	if v.OccurredAt.IsZero() {
		v.OccurredAt = e.now().UTC()
	}

	mu := e.lockStudent(studentID)
	mu.Lock()
	defer mu.Unlock()

	r, err := e.escalate(ctx, studentID, t, scope, v, false)
	if err != nil {
		return nil, err
	}

	// Past the cap every restriction converts to a permanent global ban.
	// The per-type record keeps its history; enforcement moves to the
	// global key so the uniqueness invariant holds for both.
	if r.ViolationCount > e.cfg.EscalationCap && !r.IsPermanent {
		capReason := fmt.Sprintf("escalation cap exceeded: %s", v.Reason)
		if t == models.RestrictionGlobalBan {
			r.IsPermanent = true
			r.Reason = capReason
			r.UpdatedAt = e.now().UTC()
			if err := e.store.Put(ctx, r); err != nil {
				return nil, fmt.Errorf("persist restriction: %w", err)
			}
		} else {
			capViolation := models.Violation{
				Reason:     capReason,
				SessionID:  v.SessionID,
				ExamID:     v.ExamID,
				RiskScore:  v.RiskScore,
				OccurredAt: v.OccurredAt,
			}
			global, err := e.escalate(ctx, studentID, models.RestrictionGlobalBan, models.ScopeGlobal, capViolation, true)
			if err != nil {
				return nil, err
			}
			r = global
		}
	}

	e.recordImposed(r, v)
	return r, nil
}

// escalate performs the locked upsert for one key: first violation creates
// the record, repeats append history and climb the duration ladder.
func (e *Engine) escalate(ctx context.Context, studentID string, t models.RestrictionType, scope string, v models.Violation, permanent bool) (*models.Restriction, error) {
	now := e.now().UTC()
	key := models.RestrictionKey(studentID, t, scope)

	r, err := e.store.GetByKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if r == nil {
		r = &models.Restriction{
			ID:           uuid.NewString(),
			StudentID:    studentID,
			Type:         t,
			Scope:        scope,
			AppealStatus: models.AppealNone,
			CreatedAt:    now,
		}
	} else if r.LiftedAt != nil {
		// A violation against a lifted record revives it. The appeal
		// outcome belonged to the lifted term, so the slate resets.
		r.LiftedAt = nil
		r.LiftedBy = ""
		r.AppealStatus = models.AppealNone
		r.AppealText = ""
		r.AppealSubmittedAt = nil
		r.AppealResolvedAt = nil
		r.AppealNote = ""
	}

	r.ViolationCount++
	r.ViolationHistory = append(r.ViolationHistory, v)
	r.Reason = v.Reason
	r.UpdatedAt = now

	if permanent || r.IsPermanent {
		r.IsPermanent = true
	} else {
		ladder := e.ladderFor(t)
		rung := r.ViolationCount - 1
		if rung >= len(ladder) {
			rung = len(ladder) - 1
		}
		r.RestrictedUntil = now.Add(ladder[rung])
	}

	if err := e.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persist restriction: %w", err)
	}
	return r, nil
}

// ladderFor returns the duration ladder for a type, with a one-rung
// fallback so an incomplete config cannot zero out restrictions.
func (e *Engine) ladderFor(t models.RestrictionType) []time.Duration {
	if ladder := e.cfg.Ladders[string(t)]; len(ladder) > 0 {
		return ladder
	}
	return []time.Duration{24 * time.Hour}
}

// recordImposed emits the metric, log line and security event for an
// imposed or escalated restriction.
func (e *Engine) recordImposed(r *models.Restriction, v models.Violation) {
	metrics.RestrictionsImposed.WithLabelValues(string(r.Type)).Inc()

	logging.Warn().
		Str("student_id", r.StudentID).
		Str("type", string(r.Type)).
		Str("scope", r.Scope).
		Int("violation_count", r.ViolationCount).
		Bool("permanent", r.IsPermanent).
		Time("restricted_until", r.RestrictedUntil).
		Str("reason", r.Reason).
		Msg("Restriction imposed")

	if e.recorder == nil {
		return
	}
	e.recorder.Record(&models.SecurityEvent{
		SessionID:    v.SessionID,
		ExamID:       v.ExamID,
		StudentID:    r.StudentID,
		Type:         models.EventRestrictionImposed,
		RiskScore:    v.RiskScore,
		IsSuspicious: true,
		Details: map[string]any{
			"restriction_id":   r.ID,
			"restriction_type": string(r.Type),
			"scope":            r.Scope,
			"violation_count":  r.ViolationCount,
			"permanent":        r.IsPermanent,
			"restricted_until": r.RestrictedUntil,
			"reason":           r.Reason,
		},
	})
}

// CanProceed decides whether a student may continue in an exam. Checks run
// in priority order: exam ban, account suspension, IP ban, global ban. The
// first active restriction denies; no record means proceed.
//
// A storage error on any step fails open with the alarm raised through
// logs and metrics. An empty ip skips the IP check.
func (e *Engine) CanProceed(ctx context.Context, studentID, examID, ip string) models.Decision {
	now := e.now()

	type check struct {
		kind   models.RestrictionType
		lookup func() (*models.Restriction, error)
	}
	checks := []check{
		{models.RestrictionExamBan, func() (*models.Restriction, error) {
			return e.store.GetByKey(ctx, models.RestrictionKey(studentID, models.RestrictionExamBan, examID))
		}},
		{models.RestrictionAccountSuspension, func() (*models.Restriction, error) {
			return e.store.GetByKey(ctx, models.RestrictionKey(studentID, models.RestrictionAccountSuspension, models.ScopeGlobal))
		}},
		{models.RestrictionIPBan, func() (*models.Restriction, error) {
			if ip == "" {
				return nil, ErrNotFound
			}
			return e.store.GetByIP(ctx, ip)
		}},
		{models.RestrictionGlobalBan, func() (*models.Restriction, error) {
			return e.store.GetByKey(ctx, models.RestrictionKey(studentID, models.RestrictionGlobalBan, models.ScopeGlobal))
		}},
	}

	for _, c := range checks {
		r, err := c.lookup()
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return e.failOpen(studentID, examID, c.kind, err)
		}
		if r.Active(now) {
			metrics.RestrictionChecks.WithLabelValues("denied").Inc()
			return models.Decision{
				Allowed:     false,
				Restriction: r,
				Message:     denyMessage(r),
			}
		}
	}

	metrics.RestrictionChecks.WithLabelValues("allowed").Inc()
	return models.Decision{Allowed: true}
}

// failOpen grants access on a storage failure and makes the failure loud.
func (e *Engine) failOpen(studentID, examID string, kind models.RestrictionType, err error) models.Decision {
	metrics.RestrictionChecks.WithLabelValues("fail_open").Inc()
	metrics.FailOpenDecisions.Inc()

	logging.Error().
		Err(err).
		Str("student_id", studentID).
		Str("exam_id", examID).
		Str("check", string(kind)).
		Msg("Restriction check failed, allowing access")

	return models.Decision{Allowed: true, FailOpen: true}
}

// denyMessage renders the student-facing denial text.
func denyMessage(r *models.Restriction) string {
	var subject string
	switch r.Type {
	case models.RestrictionExamBan:
		subject = "You are banned from this exam"
	case models.RestrictionAccountSuspension:
		subject = "Your account is suspended"
	case models.RestrictionIPBan:
		subject = "Access from your network is blocked"
	default:
		subject = "Your access is revoked"
	}
	if r.IsPermanent {
		return subject + " permanently."
	}
	return fmt.Sprintf("%s until %s.", subject, r.RestrictedUntil.UTC().Format(time.RFC1123))
}

// SubmitAppeal files an appeal against a restriction. Legal from the none
// and rejected states only.
func (e *Engine) SubmitAppeal(ctx context.Context, id, text string) (*models.Restriction, error) {
	return e.transitionAppeal(ctx, id, models.AppealSubmitted, func(r *models.Restriction, now time.Time) {
		r.AppealText = text
		r.AppealSubmittedAt = &now
		r.AppealResolvedAt = nil
		r.AppealNote = ""
	})
}

// ReviewAppeal moves a submitted appeal under review.
func (e *Engine) ReviewAppeal(ctx context.Context, id string) (*models.Restriction, error) {
	return e.transitionAppeal(ctx, id, models.AppealUnderReview, nil)
}

// ResolveAppeal closes an appeal under review. Approval lifts the
// restriction immediately; rejection leaves it standing.
func (e *Engine) ResolveAppeal(ctx context.Context, id string, approved bool, note, reviewer string) (*models.Restriction, error) {
	next := models.AppealRejected
	if approved {
		next = models.AppealApproved
	}
	return e.transitionAppeal(ctx, id, next, func(r *models.Restriction, now time.Time) {
		r.AppealResolvedAt = &now
		r.AppealNote = note
		if approved {
			r.LiftedAt = &now
			r.LiftedBy = reviewer
		}
	})
}

// transitionAppeal loads a restriction by ID, validates the appeal state
// transition and applies the mutation under the student lock.
func (e *Engine) transitionAppeal(ctx context.Context, id string, next models.AppealStatus, mutate func(*models.Restriction, time.Time)) (*models.Restriction, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	mu := e.lockStudent(r.StudentID)
	mu.Lock()
	defer mu.Unlock()

	// Reload under the lock: the record may have moved since the lookup.
	r, err = e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !r.AppealStatus.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidAppealTransition, r.AppealStatus, next)
	}

	now := e.now().UTC()
	r.AppealStatus = next
	if mutate != nil {
		mutate(r, now)
	}
	r.UpdatedAt = now

	if err := e.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persist appeal transition: %w", err)
	}

	logging.Info().
		Str("restriction_id", r.ID).
		Str("student_id", r.StudentID).
		Str("appeal_status", string(next)).
		Msg("Appeal state changed")

	return r, nil
}

// Lift removes a restriction from enforcement while keeping the record for
// history. Used by operators; approved appeals lift through ResolveAppeal.
func (e *Engine) Lift(ctx context.Context, id, liftedBy string) (*models.Restriction, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	mu := e.lockStudent(r.StudentID)
	mu.Lock()
	defer mu.Unlock()

	r, err = e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.LiftedAt != nil {
		return r, nil
	}

	now := e.now().UTC()
	r.LiftedAt = &now
	r.LiftedBy = liftedBy
	r.UpdatedAt = now

	if err := e.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("lift restriction: %w", err)
	}

	logging.Info().
		Str("restriction_id", r.ID).
		Str("student_id", r.StudentID).
		Str("lifted_by", liftedBy).
		Msg("Restriction lifted")

	return r, nil
}

// Get retrieves a restriction by ID.
func (e *Engine) Get(ctx context.Context, id string) (*models.Restriction, error) {
	return e.store.Get(ctx, id)
}

// ListByStudent returns all restriction records for a student.
func (e *Engine) ListByStudent(ctx context.Context, studentID string) ([]models.Restriction, error) {
	return e.store.ListByStudent(ctx, studentID)
}

// List returns all restriction records.
func (e *Engine) List(ctx context.Context) ([]models.Restriction, error) {
	return e.store.List(ctx)
}
