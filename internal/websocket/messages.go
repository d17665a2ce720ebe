// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/models"
)

// Frame types received from exam clients.
const (
	MessageTypeBrowserValidation = "browser_validation"
	MessageTypeSecurityEvent     = "security_event"
	MessageTypeKeyboardData      = "keyboard_data"
	MessageTypeMouseData         = "mouse_data"
	MessageTypeAnswerData        = "answer_data"
	MessageTypePing              = "ping"
)

// Frame types sent to exam clients and dashboards.
const (
	MessageTypeValidationSuccess   = "validation_success"
	MessageTypeValidationFailed    = "validation_failed"
	MessageTypeValidationChallenge = "validation_challenge"
	MessageTypeSecurityWarning     = "security_warning"
	MessageTypeSessionTerminated   = "session_terminated"
	MessageTypeRestrictionBlocked  = "restriction_blocked"
	MessageTypePong                = "pong"
)

// Dashboard broadcast types mirrored to admin listeners.
const (
	MessageTypeSecurityEventRecorded = "security_event_recorded"
	MessageTypeRiskUpdate            = "risk_update"
	MessageTypeBucketChange          = "bucket_change"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ValidationPayload is the browser_validation frame body. Nonce is set
// when the frame answers an outstanding challenge.
type ValidationPayload struct {
	Fingerprint models.Fingerprint `json:"fingerprint"`
	Nonce       string             `json:"nonce,omitempty"`
}

// SecurityEventPayload is the security_event frame body. EventType must
// be one of the client-reportable types; server-derived types are
// rejected.
type SecurityEventPayload struct {
	EventType string         `json:"event_type"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ValidationFailedData itemizes why a fingerprint was rejected.
type ValidationFailedData struct {
	Reasons []string `json:"reasons"`
	Score   float64  `json:"score"`
}

// ChallengeData demands a fresh browser_validation carrying Nonce
// within DeadlineMS milliseconds.
type ChallengeData struct {
	Nonce      string `json:"nonce"`
	DeadlineMS int64  `json:"deadline_ms"`
}

// SecurityWarningData is an advisory frame pushed by the response
// dispatcher.
type SecurityWarningData struct {
	WarningType string `json:"warning_type"`
	Message     string `json:"message"`
}

// SessionTerminatedData is the last frame a client receives.
type SessionTerminatedData struct {
	Reason string `json:"reason"`
}

// RestrictionBlockedData tells the client an enforcement action stands
// between it and the exam.
type RestrictionBlockedData struct {
	Message     string              `json:"message"`
	Restriction *models.Restriction `json:"restriction,omitempty"`
}

// PongData answers an application-level ping.
type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
