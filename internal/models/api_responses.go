// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

import (
	"time"
)

// APIResponse represents the standardized response wrapper used by all HTTP
// endpoints, for both successful and error responses.
//
// Status field values:
//   - "success": Request completed, see Data field
//   - "error": Request failed, see Error field for details
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"session_id": "…", "endpoint": "/api/v1/monitor/ws?token=…"},
//	  "metadata": {"timestamp": "2026-08-23T12:00:00Z"}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "RESTRICTION_ACTIVE",
//	    "message": "You are banned from this exam until 2026-08-23T14:00:00Z",
//	    "details": {"restriction_type": "exam_ban"}
//	  },
//	  "metadata": {"timestamp": "2026-08-23T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries structured error details.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid input parameters
//   - RESTRICTION_ACTIVE: an active restriction denies access
//   - CLIENT_BANNED: the source IP/device is banned
//   - POOL_EXHAUSTED: no free monitoring endpoint, retry later
//   - NOT_FOUND: resource does not exist
//   - PERSISTENCE_ERROR: storage failure
//   - UNAUTHORIZED: missing/invalid credentials
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StartMonitoringRequest begins a monitoring session for one exam attempt.
// Student identity arrives separately through the pre-authenticated identity
// headers, never in the body.
type StartMonitoringRequest struct {
	ExamID string `json:"exam_id" validate:"required,max=128"`
}

// StartMonitoringResponse carries the allocated realtime endpoint. The
// endpoint embeds a signed single-session token; the client must connect
// before ExpiresAt or request a fresh allocation.
type StartMonitoringResponse struct {
	SessionID string    `json:"session_id"`
	Endpoint  string    `json:"endpoint"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionSnapshot is the admin view of one live monitoring session.
type SessionSnapshot struct {
	SessionID         string     `json:"session_id"`
	ExamID            string     `json:"exam_id"`
	StudentID         string     `json:"student_id"`
	State             string     `json:"state"`
	EndpointSlot      int        `json:"endpoint_slot"`
	ConnectionCount   int        `json:"connection_count"`
	StartTime         time.Time  `json:"start_time"`
	LastActivity      time.Time  `json:"last_activity"`
	OverallRisk       float64    `json:"overall_risk"`
	Bucket            RiskBucket `json:"bucket"`
	ConsecutiveAlerts int        `json:"consecutive_alerts"`
	ViolationCount    int        `json:"violation_count"`
	SourceIP          string     `json:"source_ip,omitempty"`
}

// ImposeRestrictionRequest creates or escalates a restriction from the
// admin surface.
type ImposeRestrictionRequest struct {
	StudentID string          `json:"student_id" validate:"required,max=128"`
	Type      RestrictionType `json:"type" validate:"required"`
	Scope     string          `json:"scope,omitempty" validate:"max=256"`
	Reason    string          `json:"reason" validate:"required,max=1024"`
	ExamID    string          `json:"exam_id,omitempty" validate:"max=128"`
	RiskScore float64         `json:"risk_score,omitempty" validate:"gte=0,lte=100"`
}

// AppealRequest submits a student appeal against a restriction.
type AppealRequest struct {
	Text string `json:"text" validate:"required,max=4096"`
}

// ResolveAppealRequest settles an appeal under review.
type ResolveAppealRequest struct {
	Approve  bool   `json:"approve"`
	Note     string `json:"note,omitempty" validate:"max=4096"`
	Reviewer string `json:"reviewer,omitempty" validate:"max=128"`
}

// BanClientRequest records a manual ban violation from the admin surface.
type BanClientRequest struct {
	IPAddress string `json:"ip_address" validate:"required,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"max=512"`
	Reason    string `json:"reason" validate:"required,max=1024"`
}
