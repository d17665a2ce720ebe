// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

import (
	"fmt"
	"time"
)

// RestrictionType classifies the reach of a restriction. The escalation
// ladder orders types by severity: exam_ban < account_suspension < ip_ban <
// global_ban.
type RestrictionType string

const (
	RestrictionExamBan           RestrictionType = "exam_ban"
	RestrictionAccountSuspension RestrictionType = "account_suspension"
	RestrictionIPBan             RestrictionType = "ip_ban"
	RestrictionGlobalBan         RestrictionType = "global_ban"
)

// Severity returns the position of the type on the escalation ladder.
// Higher is more severe. Unknown types sort lowest.
func (t RestrictionType) Severity() int {
	switch t {
	case RestrictionExamBan:
		return 1
	case RestrictionAccountSuspension:
		return 2
	case RestrictionIPBan:
		return 3
	case RestrictionGlobalBan:
		return 4
	default:
		return 0
	}
}

// Valid reports whether t is a known restriction type.
func (t RestrictionType) Valid() bool {
	return t.Severity() > 0
}

// ScopeGlobal is the scope value used by account-wide and global restrictions.
const ScopeGlobal = "global"

// AppealStatus tracks the appeal lifecycle of a restriction:
// none -> submitted -> under_review -> approved | rejected.
// An approved appeal lifts the restriction immediately; a rejected one
// leaves it standing with the outcome recorded.
type AppealStatus string

const (
	AppealNone        AppealStatus = "none"
	AppealSubmitted   AppealStatus = "submitted"
	AppealUnderReview AppealStatus = "under_review"
	AppealApproved    AppealStatus = "approved"
	AppealRejected    AppealStatus = "rejected"
)

// appealTransitions encodes the legal appeal state machine.
var appealTransitions = map[AppealStatus][]AppealStatus{
	AppealNone:        {AppealSubmitted},
	AppealSubmitted:   {AppealUnderReview},
	AppealUnderReview: {AppealApproved, AppealRejected},
	// approved/rejected are terminal; a rejected appeal may be resubmitted.
	AppealRejected: {AppealSubmitted},
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s AppealStatus) CanTransitionTo(next AppealStatus) bool {
	for _, allowed := range appealTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Violation is one entry in a restriction's history. The history grows by
// append only; it is the evidence trail behind the current duration rung.
type Violation struct {
	Reason     string    `json:"reason"`
	SessionID  string    `json:"session_id,omitempty"`
	ExamID     string    `json:"exam_id,omitempty"`
	RiskScore  float64   `json:"risk_score,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Restriction is an enforceable access limitation scoped to an exam, an
// account, a network address, or everything.
//
// Uniqueness invariant: at most one record exists per (student_id, type,
// scope) key. Repeat violations against the same key append to
// ViolationHistory and lengthen RestrictedUntil via the per-type duration
// ladder; they never create a second record.
//
// IsPermanent records are never treated as expired regardless of
// RestrictedUntil. LiftedAt is set when an appeal is approved or an
// operator removes the restriction; a lifted record is inactive even if
// permanent.
type Restriction struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"student_id"`
	Type             RestrictionType `json:"type"`
	Scope            string          `json:"scope"`
	Reason           string          `json:"reason"`
	RestrictedUntil  time.Time       `json:"restricted_until"`
	IsPermanent      bool            `json:"is_permanent"`
	ViolationCount   int             `json:"violation_count"`
	ViolationHistory []Violation     `json:"violation_history,omitempty"`

	AppealStatus      AppealStatus `json:"appeal_status"`
	AppealText        string       `json:"appeal_text,omitempty"`
	AppealSubmittedAt *time.Time   `json:"appeal_submitted_at,omitempty"`
	AppealResolvedAt  *time.Time   `json:"appeal_resolved_at,omitempty"`
	AppealNote        string       `json:"appeal_note,omitempty"`

	LiftedAt *time.Time `json:"lifted_at,omitempty"`
	LiftedBy string     `json:"lifted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the uniqueness key for this restriction.
func (r *Restriction) Key() string {
	return RestrictionKey(r.StudentID, r.Type, r.Scope)
}

// RestrictionKey builds the (student, type, scope) uniqueness key.
func RestrictionKey(studentID string, t RestrictionType, scope string) string {
	return fmt.Sprintf("%s:%s:%s", studentID, t, scope)
}

// Active reports whether the restriction is in force at the given instant.
// Lifted records are inactive; permanent records are active until lifted;
// everything else is active while RestrictedUntil lies in the future.
func (r *Restriction) Active(now time.Time) bool {
	if r.LiftedAt != nil {
		return false
	}
	if r.IsPermanent {
		return true
	}
	return r.RestrictedUntil.After(now)
}

// Expired reports whether a non-permanent restriction has run out.
// Permanent records never expire.
func (r *Restriction) Expired(now time.Time) bool {
	if r.IsPermanent || r.LiftedAt != nil {
		return false
	}
	return !r.RestrictedUntil.After(now)
}

// Decision is the outcome of an access check against the policy engine.
//
// FailOpen is set when the check could not be completed and access was
// granted by policy rather than by evidence; callers surface it in logs
// and metrics, never to the student.
type Decision struct {
	Allowed     bool         `json:"allowed"`
	Restriction *Restriction `json:"restriction,omitempty"`
	Message     string       `json:"message,omitempty"`
	FailOpen    bool         `json:"-"`
}
