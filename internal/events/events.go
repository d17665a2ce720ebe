// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package events mirrors integrity events onto an external NATS bus so
// institutional systems (LMS dashboards, proctoring review queues) can
// consume them without polling the REST API. The mirror is strictly
// fire-and-forget: a slow or absent bus never back-pressures the
// monitoring pipeline.
//
// The full publisher requires the nats build tag. Without it the
// package compiles to a constructor that reports the missing build tag,
// and deployments run with the mirror disabled.
package events

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// SchemaVersion is the current envelope schema version. Increment on
// breaking changes to Envelope.
const SchemaVersion = 1

// DefaultSubjectPrefix roots all published subjects when the
// configuration does not override it.
const DefaultSubjectPrefix = "invigilo.events"

// Envelope kinds. The kind is the second subject token, so consumers
// can subscribe to one stream of interest.
const (
	KindSecurityEvent  = "security"
	KindRiskUpdate     = "risk"
	KindEscalation     = "escalation"
	KindSessionStarted = "session_started"
	KindSessionEnded   = "session_ended"
	KindRestriction    = "restriction"
	KindBan            = "ban"
)

// Envelope is the canonical wire format for mirrored events. The
// payload carries the domain object verbatim; the envelope adds the
// identity fields consumers filter on.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	SessionID     string    `json:"session_id,omitempty"`
	ExamID        string    `json:"exam_id,omitempty"`
	StudentID     string    `json:"student_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with a fresh event ID and timestamp.
func NewEnvelope(kind string, payload any) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		Kind:          kind,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}
}

// WithSession attaches session identity to the envelope.
func (e *Envelope) WithSession(sessionID, examID, studentID string) *Envelope {
	e.SessionID = sessionID
	e.ExamID = examID
	e.StudentID = studentID
	return e
}

// Subject returns the NATS subject for this envelope.
// Format: <prefix>.<kind>.<exam_id>, with "global" standing in for
// events that are not scoped to one exam.
func (e *Envelope) Subject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	exam := e.ExamID
	if exam == "" {
		exam = "global"
	}
	return prefix + "." + e.Kind + "." + exam
}

// Validate checks required envelope fields.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return &FieldError{Field: "event_id", Message: "required"}
	}
	if e.Kind == "" {
		return &FieldError{Field: "kind", Message: "required"}
	}
	if e.Timestamp.IsZero() {
		return &FieldError{Field: "timestamp", Message: "required"}
	}
	return nil
}

// Serialize encodes the envelope for the wire.
func Serialize(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize decodes one envelope. The payload is retained as raw
// JSON inside the any field.
func Deserialize(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FieldError reports a missing or malformed envelope field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}
