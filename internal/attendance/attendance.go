// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package attendance pushes monitoring outcomes into the external
// attendance system.
//
// The attendance record is owned by another service; this package only
// writes the monitoring sub-fields (status, behavior risk) it is
// responsible for. Pushes are best-effort: a failed update is counted
// and logged, and monitoring carries on. Deployments without an
// attendance backend run the no-op store.
package attendance

import (
	"context"

	"github.com/tomtom215/invigilo/internal/metrics"
)

// Status is the monitoring status written to an attendance record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSuspended Status = "suspended"
	StatusFlagged   Status = "flagged"
)

// Store writes monitoring fields to the attendance system.
type Store interface {
	// UpdateStatus sets the monitoring status of one attendee.
	UpdateStatus(ctx context.Context, examID, studentID string, status Status) error
	// UpdateRisk records the current behavior risk score and the
	// factor names that produced it.
	UpdateRisk(ctx context.Context, examID, studentID string, score float64, factors []string) error
}

// Noop is the store used when no attendance backend is configured.
// Every update succeeds and is counted as skipped.
type Noop struct{}

// NewNoop returns a no-op attendance store.
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) UpdateStatus(_ context.Context, _, _ string, _ Status) error {
	metrics.AttendanceUpdates.WithLabelValues("skipped").Inc()
	return nil
}

func (*Noop) UpdateRisk(_ context.Context, _, _ string, _ float64, _ []string) error {
	metrics.AttendanceUpdates.WithLabelValues("skipped").Inc()
	return nil
}
