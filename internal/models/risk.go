// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

import (
	"time"
)

// RiskSource identifies which stage of the pipeline produced a risk factor.
// The aggregator weights factors by source.
type RiskSource string

const (
	RiskSourceValidator   RiskSource = "validator"
	RiskSourceMouse       RiskSource = "mouse"
	RiskSourceKeyboard    RiskSource = "keyboard"
	RiskSourceAnswers     RiskSource = "answers"
	RiskSourceClientEvent RiskSource = "client_event"
	RiskSourceManual      RiskSource = "manual"
)

// RiskFactor is one bounded risk contribution fed to the aggregator.
// Score is clamped to [0,100] at the point of production.
type RiskFactor struct {
	Source     RiskSource `json:"source"`
	Score      float64    `json:"score"`
	Patterns   []string   `json:"patterns,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// RiskBucket is the level a session's rolling risk score falls into.
// Default boundaries: normal <40, suspicious 40-69, high_risk 70-89,
// critical 90-94, auto_suspend >=95. Boundaries are configurable; code must
// compare buckets through Rank, never through string order.
type RiskBucket string

const (
	BucketNormal      RiskBucket = "normal"
	BucketSuspicious  RiskBucket = "suspicious"
	BucketHighRisk    RiskBucket = "high_risk"
	BucketCritical    RiskBucket = "critical"
	BucketAutoSuspend RiskBucket = "auto_suspend"
)

// Rank orders buckets by severity, normal lowest.
func (b RiskBucket) Rank() int {
	switch b {
	case BucketNormal:
		return 0
	case BucketSuspicious:
		return 1
	case BucketHighRisk:
		return 2
	case BucketCritical:
		return 3
	case BucketAutoSuspend:
		return 4
	default:
		return -1
	}
}

// RiskSnapshot is the externally visible view of a session's assessment,
// served by the admin session API and mirrored to the dashboard topic.
type RiskSnapshot struct {
	SessionID         string       `json:"session_id"`
	OverallRisk       float64      `json:"overall_risk"`
	Bucket            RiskBucket   `json:"bucket"`
	Factors           []RiskFactor `json:"factors,omitempty"`
	ConsecutiveAlerts int          `json:"consecutive_alerts"`
	LastAlertAt       *time.Time   `json:"last_alert_at,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
