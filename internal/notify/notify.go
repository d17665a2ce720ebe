// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package notify delivers out-of-band notifications to exam
// administrators and students.
//
// Enforcement code never talks to a delivery backend directly. It hands
// a Notification to the Queue and moves on; a small worker pool drains
// the queue and pushes each entry through the configured Notifier.
// Delivery failures are counted and logged, never propagated back to
// the caller, so a dead webhook cannot stall a suspension.
package notify

import (
	"context"
	"time"
)

// Audience selects who a notification is addressed to. The webhook
// receiver uses it for routing; the value is opaque to this package.
type Audience string

const (
	AudienceAdmin   Audience = "admin"
	AudienceStudent Audience = "student"
)

// Severity orders notifications for the receiving side.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is one outbound message. Session identity fields are
// optional; platform-level notices (startup, shutdown) omit them.
type Notification struct {
	ID        string         `json:"id"`
	Audience  Audience       `json:"audience"`
	Severity  Severity       `json:"severity"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	SessionID string         `json:"session_id,omitempty"`
	ExamID    string         `json:"exam_id,omitempty"`
	StudentID string         `json:"student_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier delivers one notification to a backend. Implementations must
// be safe for concurrent use; the queue calls Send from several workers.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
