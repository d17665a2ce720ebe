// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package response turns risk classifications into enforcement.
//
// The dispatcher subscribes to the risk aggregator. Bucket transitions
// map to a cumulative, table-driven action set; escalations additionally
// feed the restriction policy engine and the audit trail. Aggregator
// listeners only enqueue, so risk scoring never waits on enforcement;
// actions run on the single dispatcher goroutine, and anything outbound
// goes through the async notification queue.
//
// Every (action, session) pair is cooldown-gated. A session oscillating
// around a bucket boundary re-enters the bucket on each crossing; the
// gate drops the repeats instead of queueing them.
package response

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/attendance"
	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
	"github.com/tomtom215/invigilo/internal/notify"
	"github.com/tomtom215/invigilo/internal/risk"
	"github.com/tomtom215/invigilo/internal/session"
	"github.com/tomtom215/invigilo/internal/websocket"
)

const (
	defaultQueueSize = 256

	// attendanceTimeout bounds the fire-and-forget status push on
	// suspension, including the client's own retries.
	attendanceTimeout = 30 * time.Second
)

// Challenger re-validates a live session. Satisfied by the websocket
// monitor.
type Challenger interface {
	Challenge(sessionID string) (websocket.ChallengeData, error)
}

// FrameSender pushes a frame to every connection of one session.
// Satisfied by the websocket hub.
type FrameSender interface {
	SendToSession(sessionID string, msg websocket.Message) int
}

// Recorder receives security events for persistence. Satisfied by the
// audit writer.
type Recorder interface {
	Record(event *models.SecurityEvent)
}

// Restrictor imposes policy restrictions. Satisfied by the restriction
// engine.
type Restrictor interface {
	Impose(ctx context.Context, studentID string, t models.RestrictionType, scope string, v models.Violation) (*models.Restriction, error)
}

// NotifySink queues out-of-band notifications. Satisfied by the notify
// queue.
type NotifySink interface {
	Enqueue(n notify.Notification) bool
}

type taskKind int

const (
	taskBucketChange taskKind = iota
	taskEscalation
)

type task struct {
	kind   taskKind
	change risk.BucketChange
	esc    risk.Escalation
}

// Dispatcher executes the automated response table. Listener methods
// enqueue and return; the Run goroutine does the work.
type Dispatcher struct {
	registry   *session.Registry
	hub        FrameSender
	challenger Challenger
	policy     Restrictor
	recorder   Recorder
	notifier   NotifySink
	attendance attendance.Store

	tasks chan task
	gate  *cooldownGate

	// now is swappable for tests.
	now func() time.Time
}

// NewDispatcher wires the response table and registers cooldown cleanup
// with the registry. Any collaborator may be nil, which skips the
// corresponding channel of enforcement.
func NewDispatcher(
	cfg config.ResponseConfig,
	registry *session.Registry,
	hub FrameSender,
	challenger Challenger,
	policy Restrictor,
	recorder Recorder,
	notifier NotifySink,
	attendanceStore attendance.Store,
) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &Dispatcher{
		registry:   registry,
		hub:        hub,
		challenger: challenger,
		policy:     policy,
		recorder:   recorder,
		notifier:   notifier,
		attendance: attendanceStore,
		tasks:      make(chan task, queueSize),
		gate:       newCooldownGate(cfg.Cooldowns),
		now:        time.Now,
	}
	registry.OnRelease(d.HandleRelease)
	return d
}

// HandleBucketChange queues the action set for the session's new
// bucket. Registered as a risk aggregator listener; never blocks.
func (d *Dispatcher) HandleBucketChange(change risk.BucketChange) {
	if change.To.Rank() <= models.BucketNormal.Rank() {
		return
	}
	d.enqueue(task{kind: taskBucketChange, change: change})
}

// HandleEscalation queues restriction and audit handling for an
// escalation. Registered as a risk aggregator listener; never blocks.
func (d *Dispatcher) HandleEscalation(esc risk.Escalation) {
	d.enqueue(task{kind: taskEscalation, esc: esc})
}

// HandleRelease discards cooldown state for a finished session.
func (d *Dispatcher) HandleRelease(s *session.Session, _ string) {
	d.gate.forget(s.SessionID)
}

// enqueue adds a task, evicting the oldest queued task when full so the
// most recent risk picture wins.
func (d *Dispatcher) enqueue(t task) {
	select {
	case d.tasks <- t:
		return
	default:
	}

	select {
	case <-d.tasks:
		metrics.DispatcherDropped.Inc()
		logging.Warn().Msg("Dispatcher queue full, dropping oldest task")
	default:
	}

	select {
	case d.tasks <- t:
	default:
		metrics.DispatcherDropped.Inc()
	}
}

// Run executes queued tasks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	logging.Info().
		Int("queue_size", cap(d.tasks)).
		Msg("Starting response dispatcher")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Response dispatcher stopped")
			return ctx.Err()
		case t := <-d.tasks:
			switch t.kind {
			case taskBucketChange:
				d.applyBucketChange(t.change)
			case taskEscalation:
				d.applyEscalation(t.esc)
			}
		}
	}
}

// applyBucketChange runs the cumulative action set for the new bucket,
// dropping actions still inside their cooldown window.
func (d *Dispatcher) applyBucketChange(change risk.BucketChange) {
	for _, action := range ActionsFor(change.To) {
		if !d.gate.allow(action, change.SessionID) {
			metrics.CooldownDrops.WithLabelValues(string(action)).Inc()
			continue
		}
		d.execute(action, change)
		metrics.DispatcherActions.WithLabelValues(string(action)).Inc()
	}
}

func (d *Dispatcher) execute(action Action, change risk.BucketChange) {
	switch action {
	case ActionLog:
		logging.Warn().
			Str("session_id", change.SessionID).
			Str("exam_id", change.ExamID).
			Str("student_id", change.StudentID).
			Str("bucket", string(change.To)).
			Float64("score", change.Score).
			Msg("Session entered elevated risk bucket")

	case ActionEnhancedMonitoring:
		d.send(change.SessionID, websocket.SecurityWarningData{
			WarningType: "enhanced_monitoring",
			Message:     "Monitoring level for this session has been increased.",
		})

	case ActionNotifyAdmin:
		d.push(notify.Notification{
			Audience:  notify.AudienceAdmin,
			Severity:  severityFor(change.To),
			Subject:   "Exam session risk: " + string(change.To),
			Body:      fmt.Sprintf("Session %s (exam %s, student %s) moved to bucket %s with score %.1f.", change.SessionID, change.ExamID, change.StudentID, change.To, change.Score),
			SessionID: change.SessionID,
			ExamID:    change.ExamID,
			StudentID: change.StudentID,
			Details:   map[string]any{"bucket": string(change.To), "score": change.Score},
		})

	case ActionIncreaseVerification:
		d.challenge(change.SessionID)

	case ActionFlagForReview:
		d.push(notify.Notification{
			Audience:  notify.AudienceAdmin,
			Severity:  notify.SeverityCritical,
			Subject:   "Exam session flagged for review",
			Body:      fmt.Sprintf("Session %s (exam %s, student %s) requires manual review, score %.1f.", change.SessionID, change.ExamID, change.StudentID, change.Score),
			SessionID: change.SessionID,
			ExamID:    change.ExamID,
			StudentID: change.StudentID,
			Details:   map[string]any{"bucket": string(change.To), "score": change.Score},
		})

	case ActionRequireExtraVerification:
		d.send(change.SessionID, websocket.SecurityWarningData{
			WarningType: "extra_verification_required",
			Message:     "Complete the verification step to continue your exam.",
		})

	case ActionNotifyStudent:
		d.send(change.SessionID, websocket.SecurityWarningData{
			WarningType: "integrity_warning",
			Message:     "Irregular activity has been detected on your session.",
		})
		d.push(notify.Notification{
			Audience:  notify.AudienceStudent,
			Severity:  severityFor(change.To),
			Subject:   "Exam integrity warning",
			Body:      "Irregular activity has been detected on your exam session. Continued anomalies may end the attempt.",
			SessionID: change.SessionID,
			ExamID:    change.ExamID,
			StudentID: change.StudentID,
		})

	case ActionSuspendSession:
		d.suspend(change)
	}
}

// suspend terminates the session. The registry release is the
// idempotency point: the first caller wins and everything below runs
// exactly once; later calls find the session gone and return.
func (d *Dispatcher) suspend(change risk.BucketChange) {
	s, ok := d.registry.Get(change.SessionID)
	if !ok {
		return
	}
	if !d.registry.Release(change.SessionID, session.ReasonSuspended) {
		return
	}

	logging.Warn().
		Str("session_id", s.SessionID).
		Str("exam_id", s.ExamID).
		Str("student_id", s.StudentID).
		Float64("score", change.Score).
		Msg("Session auto-suspended")

	if d.recorder != nil {
		d.recorder.Record(&models.SecurityEvent{
			ID:        uuid.NewString(),
			SessionID: s.SessionID,
			ExamID:    s.ExamID,
			StudentID: s.StudentID,
			Type:      models.EventSessionSuspended,
			Timestamp: d.now().UTC(),
			Details: map[string]any{
				"bucket": string(change.To),
				"score":  change.Score,
			},
			RiskScore:    change.Score,
			IsSuspicious: true,
			SourceIP:     s.SourceIP,
			UserAgent:    s.UserAgent,
		})
	}

	if d.attendance != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), attendanceTimeout)
			defer cancel()
			if err := d.attendance.UpdateStatus(ctx, s.ExamID, s.StudentID, attendance.StatusSuspended); err != nil {
				logging.Error().
					Err(err).
					Str("session_id", s.SessionID).
					Msg("Attendance suspension update failed")
			}
		}()
	}

	d.push(notify.Notification{
		Audience:  notify.AudienceAdmin,
		Severity:  notify.SeverityCritical,
		Subject:   "Exam session auto-suspended",
		Body:      fmt.Sprintf("Session %s (exam %s, student %s) was suspended at score %.1f.", s.SessionID, s.ExamID, s.StudentID, change.Score),
		SessionID: s.SessionID,
		ExamID:    s.ExamID,
		StudentID: s.StudentID,
		Details:   map[string]any{"score": change.Score},
	})
	d.push(notify.Notification{
		Audience:  notify.AudienceStudent,
		Severity:  notify.SeverityCritical,
		Subject:   "Exam session suspended",
		Body:      "Your exam session was suspended after repeated integrity violations. Contact your exam administrator.",
		SessionID: s.SessionID,
		ExamID:    s.ExamID,
		StudentID: s.StudentID,
	})
}

// applyEscalation records the escalation in the audit trail and feeds
// the restriction ladder. Escalations are edge-triggered upstream, so
// they bypass the cooldown gate.
func (d *Dispatcher) applyEscalation(esc risk.Escalation) {
	var sourceIP, userAgent string
	if s, ok := d.registry.Get(esc.SessionID); ok {
		sourceIP = s.SourceIP
		userAgent = s.UserAgent
	}

	if d.recorder != nil {
		d.recorder.Record(&models.SecurityEvent{
			ID:        uuid.NewString(),
			SessionID: esc.SessionID,
			ExamID:    esc.ExamID,
			StudentID: esc.StudentID,
			Type:      models.EventRiskEscalation,
			Timestamp: esc.At,
			Details: map[string]any{
				"trigger":            string(esc.Trigger),
				"bucket":             string(esc.Bucket),
				"consecutive_alerts": esc.ConsecutiveAlerts,
				"factor_source":      string(esc.Factor.Source),
			},
			RiskScore:    esc.Score,
			IsSuspicious: true,
			SourceIP:     sourceIP,
			UserAgent:    userAgent,
		})
	}

	if d.policy != nil {
		imposed, err := d.policy.Impose(context.Background(), esc.StudentID, models.RestrictionExamBan, esc.ExamID, models.Violation{
			Reason:     string(models.EventRiskEscalation),
			SessionID:  esc.SessionID,
			ExamID:     esc.ExamID,
			RiskScore:  esc.Score,
			OccurredAt: esc.At,
		})
		if err != nil {
			logging.Error().
				Err(err).
				Str("session_id", esc.SessionID).
				Str("student_id", esc.StudentID).
				Msg("Escalation restriction failed")
			return
		}

		// The session is usually still connected at this point; tell the
		// client what now stands between it and the exam.
		if d.hub != nil {
			d.hub.SendToSession(esc.SessionID, websocket.Message{
				Type: websocket.MessageTypeRestrictionBlocked,
				Data: websocket.RestrictionBlockedData{
					Message:     "An exam restriction was imposed after repeated integrity violations.",
					Restriction: imposed,
				},
			})
		}
	}
}

// send pushes a security_warning frame to the session's connections.
func (d *Dispatcher) send(sessionID string, data websocket.SecurityWarningData) {
	if d.hub == nil {
		return
	}
	d.hub.SendToSession(sessionID, websocket.Message{
		Type: websocket.MessageTypeSecurityWarning,
		Data: data,
	})
}

// challenge asks the monitor to re-validate the session. A session that
// disconnected between queueing and execution is not an error worth
// more than a log line.
func (d *Dispatcher) challenge(sessionID string) {
	if d.challenger == nil {
		return
	}
	if _, err := d.challenger.Challenge(sessionID); err != nil {
		logging.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("Re-challenge failed")
	}
}

func (d *Dispatcher) push(n notify.Notification) {
	if d.notifier == nil {
		return
	}
	d.notifier.Enqueue(n)
}

// severityFor maps a bucket to the notification severity band.
func severityFor(bucket models.RiskBucket) notify.Severity {
	switch {
	case bucket.Rank() >= models.BucketCritical.Rank():
		return notify.SeverityCritical
	case bucket.Rank() >= models.BucketHighRisk.Rank():
		return notify.SeverityWarning
	default:
		return notify.SeverityInfo
	}
}
