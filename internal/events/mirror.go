// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package events

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

const (
	defaultQueueSize = 1024
	publishTimeout   = 5 * time.Second
)

// EnvelopePublisher sends envelopes to the external bus. Implemented
// by Publisher when built with the nats tag.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, env *Envelope) error
	Close() error
}

// Mirror fans integrity events onto the external bus through a bounded
// queue. Emitters never block; when the queue is full the oldest entry
// is discarded to make room for the newest.
type Mirror struct {
	pub   EnvelopePublisher
	queue chan *Envelope

	mu     sync.Mutex
	closed bool
}

// NewMirror wraps a publisher with the async queue. queueSize <= 0
// selects the default.
func NewMirror(pub EnvelopePublisher, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Mirror{
		pub:   pub,
		queue: make(chan *Envelope, queueSize),
	}
}

// Emit queues one envelope for publication.
func (m *Mirror) Emit(env *Envelope) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		metrics.EventsMirrorDropped.WithLabelValues("closed").Inc()
		return
	}
	m.mu.Unlock()

	select {
	case m.queue <- env:
		return
	default:
	}

	// Full queue: evict the oldest entry, then retry once. A concurrent
	// drain can still win the race, in which case the envelope is lost
	// and counted.
	select {
	case <-m.queue:
		metrics.EventsMirrorDropped.WithLabelValues("queue_full").Inc()
	default:
	}
	select {
	case m.queue <- env:
	default:
		metrics.EventsMirrorDropped.WithLabelValues("queue_full").Inc()
	}
}

// SecurityEvent mirrors one recorded security event.
func (m *Mirror) SecurityEvent(ev *models.SecurityEvent) {
	m.Emit(NewEnvelope(KindSecurityEvent, ev).WithSession(ev.SessionID, ev.ExamID, ev.StudentID))
}

// Record satisfies the security-event recorder interfaces so the
// mirror composes with the audit writer.
func (m *Mirror) Record(ev *models.SecurityEvent) {
	m.SecurityEvent(ev)
}

// RiskUpdate mirrors a risk snapshot.
func (m *Mirror) RiskUpdate(snap models.RiskSnapshot) {
	env := NewEnvelope(KindRiskUpdate, snap)
	env.SessionID = snap.SessionID
	m.Emit(env)
}

// SessionStarted mirrors a session allocation.
func (m *Mirror) SessionStarted(snap models.SessionSnapshot) {
	m.Emit(NewEnvelope(KindSessionStarted, snap).WithSession(snap.SessionID, snap.ExamID, snap.StudentID))
}

// SessionEnded mirrors a session release with its cause.
func (m *Mirror) SessionEnded(snap models.SessionSnapshot, reason string) {
	payload := map[string]any{"session": snap, "reason": reason}
	m.Emit(NewEnvelope(KindSessionEnded, payload).WithSession(snap.SessionID, snap.ExamID, snap.StudentID))
}

// Restriction mirrors an imposed or escalated restriction.
func (m *Mirror) Restriction(r *models.Restriction) {
	env := NewEnvelope(KindRestriction, r)
	env.StudentID = r.StudentID
	if r.Scope != models.ScopeGlobal {
		env.ExamID = r.Scope
	}
	m.Emit(env)
}

// Run drains the queue until ctx is cancelled. Publish failures are
// counted and logged, never retried; the bus carries a live mirror,
// not the system of record.
func (m *Mirror) Run(ctx context.Context) error {
	logging.Info().Int("queue_size", cap(m.queue)).Msg("Event mirror started")

	for {
		select {
		case <-ctx.Done():
			m.close()
			return ctx.Err()
		case env := <-m.queue:
			m.publish(ctx, env)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, env *Envelope) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := m.pub.PublishEnvelope(pctx, env); err != nil {
		metrics.EventsMirrorDropped.WithLabelValues("publish_failed").Inc()
		logging.Warn().Err(err).
			Str("kind", env.Kind).
			Str("event_id", env.EventID).
			Msg("Failed to mirror event")
		return
	}
	metrics.EventsMirrored.WithLabelValues(env.Kind).Inc()
}

func (m *Mirror) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if err := m.pub.Close(); err != nil {
		logging.Warn().Err(err).Msg("Event publisher close failed")
	}
	logging.Info().Msg("Event mirror stopped")
}
