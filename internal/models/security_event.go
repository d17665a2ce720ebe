// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

import (
	"time"
)

// SecurityEventType identifies what kind of occurrence a SecurityEvent records.
// Values are stable strings; they appear in persisted rows, admin queries,
// and the dashboard fan-out, so renaming one is a breaking change.
type SecurityEventType string

// Security event types produced by the monitoring pipeline.
const (
	// EventAutomationDetected is recorded when the authenticity validator
	// rejects a client as non-human (webdriver flag, blacklisted agent,
	// accumulated weak signals).
	EventAutomationDetected SecurityEventType = "automation_detected"

	// EventValidationFailed is recorded when a re-challenge times out or a
	// fingerprint fails verification mid-session.
	EventValidationFailed SecurityEventType = "validation_failed"

	// EventMouseAnomaly, EventKeyboardAnomaly and EventAnswerAnomaly are
	// recorded when a signal processor scores a telemetry batch above its
	// reporting floor.
	EventMouseAnomaly    SecurityEventType = "mouse_anomaly"
	EventKeyboardAnomaly SecurityEventType = "keyboard_anomaly"
	EventAnswerAnomaly   SecurityEventType = "answer_anomaly"

	// EventIPAnomaly is recorded when one student's validated sessions
	// span more distinct source addresses than the roaming window allows.
	EventIPAnomaly SecurityEventType = "ip_anomaly"

	// EventRiskEscalation is recorded when a session enters the critical or
	// auto-suspend bucket, or trips the consecutive-alert trigger.
	EventRiskEscalation SecurityEventType = "rapid_risk_escalation"

	// EventSessionSuspended is recorded exactly once per suspension.
	EventSessionSuspended SecurityEventType = "session_suspended"

	// EventRestrictionImposed is recorded when the policy engine creates or
	// escalates a restriction.
	EventRestrictionImposed SecurityEventType = "restriction_imposed"

	// EventClientBanned is recorded when the ban registry records a
	// violation against an IP/device.
	EventClientBanned SecurityEventType = "client_banned"

	// EventManualFlag is recorded when an operator flags a session from the
	// admin surface.
	EventManualFlag SecurityEventType = "manual_flag"
)

// Security event types reported by the exam client itself. These arrive on
// the realtime channel as security_event frames and are persisted verbatim
// after sanity checks.
const (
	EventTabSwitch      SecurityEventType = "tab_switch"
	EventWindowBlur     SecurityEventType = "window_blur"
	EventFullscreenExit SecurityEventType = "fullscreen_exit"
	EventCopyAttempt    SecurityEventType = "copy_attempt"
	EventPasteAttempt   SecurityEventType = "paste_attempt"
	EventDevToolsOpen   SecurityEventType = "devtools_open"
	EventRightClick     SecurityEventType = "right_click"
)

// clientReportedTypes gates which event types a client may self-report.
var clientReportedTypes = map[SecurityEventType]bool{
	EventTabSwitch:      true,
	EventWindowBlur:     true,
	EventFullscreenExit: true,
	EventCopyAttempt:    true,
	EventPasteAttempt:   true,
	EventDevToolsOpen:   true,
	EventRightClick:     true,
}

// IsClientReportable reports whether t may be submitted by the exam client.
// Server-derived types (automation_detected, session_suspended, ...) are
// rejected when self-reported so a client cannot forge pipeline output.
func (t SecurityEventType) IsClientReportable() bool {
	return clientReportedTypes[t]
}

// SecurityEvent is an immutable, append-only record of one suspicious or
// noteworthy occurrence within a monitoring session.
//
// Events are written asynchronously (see internal/audit) and retained under
// a configurable TTL. RiskScore is the score assigned at emission time; it
// is not recomputed when thresholds change.
type SecurityEvent struct {
	ID           string            `json:"id"`
	SessionID    string            `json:"session_id"`
	ExamID       string            `json:"exam_id"`
	StudentID    string            `json:"student_id"`
	Type         SecurityEventType `json:"event_type"`
	Timestamp    time.Time         `json:"timestamp"`
	Details      map[string]any    `json:"details,omitempty"`
	RiskScore    float64           `json:"risk_score"`
	IsSuspicious bool              `json:"is_suspicious"`
	SourceIP     string            `json:"source_ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
}

// EventFilter narrows admin security-event queries. Zero values mean
// "no constraint".
type EventFilter struct {
	SessionID      string
	ExamID         string
	StudentID      string
	Type           SecurityEventType
	Since          time.Time
	Until          time.Time
	SuspiciousOnly bool
	Limit          int
	Offset         int
}
