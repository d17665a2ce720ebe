// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/invigilo/internal/models"
)

// Session states reported in snapshots. A session leaves the registry
// the moment it stops being active, so non-active states are only
// observable through a *Session captured before release.
const (
	StateActive     = "active"
	StateCompleted  = "completed"
	StateSuspended  = "suspended"
	StateTerminated = "terminated"
)

// Release reasons. The reason reaches connected clients in the
// session_terminated frame and labels the reclaim counter.
const (
	ReasonCompleted        = "completed"
	ReasonSuspended        = "suspended"
	ReasonReplaced         = "replaced"
	ReasonIdle             = "idle"
	ReasonShutdown         = "shutdown"
	ReasonValidationFailed = "validation_failed"
	ReasonTerminated       = "terminated"
)

// Session is the runtime state of one student's monitored exam
// attempt. Activity and connection counters are atomics because the
// websocket read loop touches them on every inbound frame.
type Session struct {
	SessionID string
	ExamID    string
	StudentID string
	Slot      int
	Token     string
	TokenID   string
	ExpiresAt time.Time
	StartTime time.Time
	SourceIP  string
	UserAgent string

	lastActivity atomic.Int64
	connections  atomic.Int32
	limiter      *rate.Limiter

	mu     sync.Mutex
	state  string
	reason string

	ctx    context.Context
	cancel context.CancelFunc
}

// Touch records activity at t. Inbound telemetry, pongs and admin
// challenges all count as activity for the idle sweep.
func (s *Session) Touch(t time.Time) {
	s.lastActivity.Store(t.UnixNano())
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Attach registers one more live connection and returns the new count.
func (s *Session) Attach() int {
	return int(s.connections.Add(1))
}

// Detach deregisters a closed connection and returns the new count.
func (s *Session) Detach() int {
	return int(s.connections.Add(-1))
}

// ConnectionCount returns the number of live connections.
func (s *Session) ConnectionCount() int {
	return int(s.connections.Load())
}

// AllowEvent reports whether the session's event budget admits one
// more inbound message right now.
func (s *Session) AllowEvent() bool {
	return s.limiter.Allow()
}

// Context is cancelled when the session is released. Connection
// handlers select on it and notify the client with the termination
// reason before closing.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TerminationReason returns the release reason, or "" while the
// session is still active.
func (s *Session) TerminationReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Endpoint returns the websocket path the client must dial. The
// compact JWS alphabet is URL-safe, so the token needs no escaping.
func (s *Session) Endpoint() string {
	return "/api/v1/monitor/ws?token=" + s.Token
}

// finish moves the session to its terminal state and cancels the
// context. The first reason wins; later calls are no-ops.
func (s *Session) finish(reason string) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = stateForReason(reason)
	s.reason = reason
	s.mu.Unlock()

	s.cancel()
}

func stateForReason(reason string) string {
	switch reason {
	case ReasonCompleted:
		return StateCompleted
	case ReasonSuspended:
		return StateSuspended
	default:
		return StateTerminated
	}
}

// Snapshot returns the session's monitoring fields for the admin
// surface. Risk fields are filled in by the caller from the risk
// aggregator.
func (s *Session) Snapshot() models.SessionSnapshot {
	return models.SessionSnapshot{
		SessionID:       s.SessionID,
		ExamID:          s.ExamID,
		StudentID:       s.StudentID,
		State:           s.State(),
		EndpointSlot:    s.Slot,
		ConnectionCount: s.ConnectionCount(),
		StartTime:       s.StartTime,
		LastActivity:    s.LastActivity(),
		SourceIP:        s.SourceIP,
	}
}
