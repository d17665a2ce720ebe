// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/cache"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
	"github.com/tomtom215/invigilo/internal/session"
	"github.com/tomtom215/invigilo/internal/signal"
	"github.com/tomtom215/invigilo/internal/validator"
)

// ErrSessionGone is returned by Challenge for unknown sessions.
var ErrSessionGone = errors.New("no such monitoring session")

// Recorder receives security events for persistence. Satisfied by the
// audit writer.
type Recorder interface {
	Record(event *models.SecurityEvent)
}

// BanRecorder tracks repeated validation failures per client address
// and answers ban lookups once the fingerprint supplies a device key.
// Satisfied by the banlist registry.
type BanRecorder interface {
	RecordValidationFailure(ctx context.Context, ip, userAgent, deviceKey string) (*models.BannedClient, error)
	IsBanned(ctx context.Context, ip, deviceKey string) (*models.BannedClient, error)
}

// Restrictor imposes policy restrictions. Satisfied by the restriction
// engine.
type Restrictor interface {
	Impose(ctx context.Context, studentID string, t models.RestrictionType, scope string, v models.Violation) (*models.Restriction, error)
}

// RiskSink folds risk factors into the per-session assessment.
// Satisfied by the risk aggregator.
type RiskSink interface {
	AddFactor(sessionID string, factor models.RiskFactor) (models.RiskSnapshot, bool)
	EndSession(sessionID string)
}

// rejectionRiskScore is the fixed risk recorded for any authenticity
// rejection, whether from the checklist or a lapsed challenge.
const rejectionRiskScore = 95

// suspiciousEventFloor marks client-reported events at or above it as
// suspicious in the audit trail.
const suspiciousEventFloor = 40

// challengeSweepInterval bounds how stale an expired challenge can go
// unnoticed.
const challengeSweepInterval = 5 * time.Second

// Address-roaming detection. A student whose validated sessions span
// ipAnomalyThreshold or more distinct source addresses inside
// ipAnomalyWindow is flagged, and flagged again for each further new
// address.
const (
	ipAnomalyWindow    = 30 * time.Minute
	ipAnomalyThreshold = 3
	ipAnomalyScore     = 45
)

// clientEventScores maps self-reported incident types to their risk
// contribution.
var clientEventScores = map[models.SecurityEventType]float64{
	models.EventTabSwitch:      30,
	models.EventWindowBlur:     20,
	models.EventFullscreenExit: 40,
	models.EventCopyAttempt:    50,
	models.EventPasteAttempt:   60,
	models.EventDevToolsOpen:   70,
	models.EventRightClick:     15,
}

// Monitor bridges inbound realtime frames into the integrity pipeline:
// fingerprints to the validator, telemetry batches to the signal
// processors, scores to the risk aggregator and everything noteworthy
// to the audit trail. It also owns the challenge lifecycle.
type Monitor struct {
	hub       *Hub
	registry  *session.Registry
	validator *validator.Validator
	pipeline  *signal.Pipeline
	risk      RiskSink
	bans      BanRecorder
	policy    Restrictor
	recorder  Recorder

	// studentIPs must survive session replacement; roaming is only
	// visible across the sessions one student burns through.
	studentIPs *cache.UniqueValueStore
}

// NewMonitor wires the pipeline and registers session cleanup with the
// registry, so every release path drops challenges and per-session
// processor state. bans, policy and recorder may be nil, which skips
// the respective enforcement feed.
func NewMonitor(
	hub *Hub,
	registry *session.Registry,
	v *validator.Validator,
	pipeline *signal.Pipeline,
	riskSink RiskSink,
	bans BanRecorder,
	policy Restrictor,
	recorder Recorder,
) *Monitor {
	m := &Monitor{
		hub:        hub,
		registry:   registry,
		validator:  v,
		pipeline:   pipeline,
		risk:       riskSink,
		bans:       bans,
		policy:     policy,
		recorder:   recorder,
		studentIPs: cache.NewUniqueValueStore(ipAnomalyWindow, 10, 10000),
	}
	registry.OnRelease(m.HandleRelease)
	return m
}

// HandleMessage dispatches one parsed frame. Called from the client
// read pump after the envelope passed the rate and size gates.
func (m *Monitor) HandleMessage(c *Client, msgType string, data json.RawMessage) {
	metrics.TelemetryMessages.WithLabelValues(msgType).Inc()

	switch msgType {
	case MessageTypeBrowserValidation:
		m.handleValidation(c, data)
	case MessageTypeSecurityEvent:
		m.handleSecurityEvent(c, data)
	case MessageTypeMouseData:
		m.handleTelemetry(c, signal.KindMouse, models.EventMouseAnomaly, data)
	case MessageTypeKeyboardData:
		m.handleTelemetry(c, signal.KindKeyboard, models.EventKeyboardAnomaly, data)
	case MessageTypeAnswerData:
		m.handleTelemetry(c, signal.KindAnswers, models.EventAnswerAnomaly, data)
	default:
		metrics.TelemetryDropped.WithLabelValues("unknown_type").Inc()
		logging.Warn().
			Str("type", msgType).
			Str("session_id", c.session.SessionID).
			Msg("Unknown websocket frame type")
	}
}

// handleValidation runs a submitted fingerprint through the checklist.
// When the frame carries a nonce it must answer the outstanding
// challenge; an unsolicited, mismatched or late nonce is itself a
// validation failure. The fingerprint also supplies the device key, so
// device bans issued against earlier sessions are enforced here, before
// any checklist work.
func (m *Monitor) handleValidation(c *Client, data json.RawMessage) {
	var payload ValidationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		metrics.TelemetryDropped.WithLabelValues("malformed").Inc()
		return
	}

	sess := c.session
	deviceKey := models.DeviceKey(sess.UserAgent, payload.Fingerprint.CanvasHash)

	if m.bans != nil && deviceKey != "" {
		banned, err := m.bans.IsBanned(sess.Context(), sess.SourceIP, deviceKey)
		if err == nil && banned != nil {
			m.terminateBanned(c, banned)
			return
		}
	}

	if payload.Nonce != "" {
		if err := m.validator.VerifyChallenge(sess.SessionID, payload.Nonce); err != nil {
			reason := "challenge response rejected"
			switch {
			case errors.Is(err, validator.ErrChallengeExpired):
				reason = "challenge response after deadline"
			case errors.Is(err, validator.ErrNonceMismatch):
				reason = "challenge nonce mismatch"
			case errors.Is(err, validator.ErrNoChallenge):
				reason = "no challenge outstanding"
			}
			m.rejectSession(c, models.EventValidationFailed, []string{reason}, 0, deviceKey, nil)
			return
		}
	}

	verdict := m.validator.Validate(sess.Context(), payload.Fingerprint, sess.SourceIP)
	if verdict.Authentic {
		c.Enqueue(Message{Type: MessageTypeValidationSuccess})
		m.trackStudentIP(c)
		return
	}

	details := map[string]any{
		"reasons": verdict.Reasons,
		"score":   verdict.Score,
		"signals": verdict.Signals,
	}
	m.rejectSession(c, models.EventAutomationDetected, verdict.Reasons, verdict.Score, deviceKey, details)
}

// terminateBanned ends the session of a client whose device key matches
// an active ban. The IP-only check at upgrade time cannot see these; the
// key only exists once the fingerprint arrives.
func (m *Monitor) terminateBanned(c *Client, banned *models.BannedClient) {
	sess := c.session

	c.Enqueue(Message{
		Type: MessageTypeValidationFailed,
		Data: ValidationFailedData{Reasons: []string{"client is banned: " + banned.BanReason}},
	})
	m.recordEvent(sess, models.EventValidationFailed, rejectionRiskScore, true, map[string]any{
		"reason":          "banned device reconnected",
		"ban_reason":      banned.BanReason,
		"violation_count": banned.ViolationCount,
	})

	sessionID := sess.SessionID
	time.AfterFunc(m.validator.RejectGrace(), func() {
		m.registry.Release(sessionID, session.ReasonValidationFailed)
	})

	logging.Warn().
		Str("session_id", sess.SessionID).
		Str("student_id", sess.StudentID).
		Str("ip", sess.SourceIP).
		Msg("Banned device reconnected, disconnecting after grace period")
}

// trackStudentIP folds the session's source address into the per-student
// roaming window after a successful validation. Mobile clients rotate
// addresses legitimately, so nothing is reported until the window-wide
// spread reaches the threshold; each further new address reports again.
func (m *Monitor) trackStudentIP(c *Client) {
	sess := c.session
	if !m.studentIPs.Add(sess.StudentID, sess.SourceIP) {
		return
	}
	distinct := m.studentIPs.CountUnique(sess.StudentID)
	if distinct < ipAnomalyThreshold {
		return
	}

	m.recordEvent(sess, models.EventIPAnomaly, ipAnomalyScore, true, map[string]any{
		"distinct_ips": distinct,
		"window":       ipAnomalyWindow.String(),
	})
	if m.risk != nil {
		m.risk.AddFactor(sess.SessionID, models.RiskFactor{
			Source:   models.RiskSourceValidator,
			Score:    ipAnomalyScore,
			Patterns: []string{"address roaming"},
		})
	}
	logging.Warn().
		Str("session_id", sess.SessionID).
		Str("student_id", sess.StudentID).
		Int("distinct_ips", distinct).
		Msg("Student sessions span too many source addresses")
}

// rejectSession runs the full rejection protocol: the itemized
// validation_failed frame, the audit record, the risk factor, the ban
// and restriction feeds, and the grace-period force disconnect.
func (m *Monitor) rejectSession(c *Client, eventType models.SecurityEventType, reasons []string, reportedScore float64, deviceKey string, details map[string]any) {
	sess := c.session

	c.Enqueue(Message{
		Type: MessageTypeValidationFailed,
		Data: ValidationFailedData{Reasons: reasons, Score: reportedScore},
	})

	if details == nil {
		details = map[string]any{"reasons": reasons}
	}
	m.recordEvent(sess, eventType, rejectionRiskScore, true, details)

	if m.risk != nil {
		m.risk.AddFactor(sess.SessionID, models.RiskFactor{
			Source:   models.RiskSourceValidator,
			Score:    rejectionRiskScore,
			Patterns: reasons,
		})
	}

	if m.bans != nil {
		if _, err := m.bans.RecordValidationFailure(context.Background(), sess.SourceIP, sess.UserAgent, deviceKey); err != nil {
			logging.Warn().Err(err).
				Str("session_id", sess.SessionID).
				Msg("Failed to record validation failure against client")
		}
	}

	if m.policy != nil {
		violation := models.Violation{
			Reason:     string(eventType),
			SessionID:  sess.SessionID,
			ExamID:     sess.ExamID,
			RiskScore:  rejectionRiskScore,
			OccurredAt: time.Now().UTC(),
		}
		if _, err := m.policy.Impose(context.Background(), sess.StudentID, models.RestrictionExamBan, sess.ExamID, violation); err != nil {
			logging.Error().Err(err).
				Str("session_id", sess.SessionID).
				Str("student_id", sess.StudentID).
				Msg("Failed to impose restriction after rejection")
		}
	}

	sessionID := sess.SessionID
	time.AfterFunc(m.validator.RejectGrace(), func() {
		m.registry.Release(sessionID, session.ReasonValidationFailed)
	})

	logging.Warn().
		Str("session_id", sess.SessionID).
		Str("student_id", sess.StudentID).
		Strs("reasons", reasons).
		Msg("Client rejected, disconnecting after grace period")
}

// handleSecurityEvent persists a client-observed incident. Only the
// allow-listed self-reportable types are accepted; a client cannot
// forge pipeline-derived events.
func (m *Monitor) handleSecurityEvent(c *Client, data json.RawMessage) {
	var payload SecurityEventPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.EventType == "" {
		metrics.TelemetryDropped.WithLabelValues("malformed").Inc()
		return
	}

	eventType := models.SecurityEventType(payload.EventType)
	if !eventType.IsClientReportable() {
		metrics.TelemetryDropped.WithLabelValues("unknown_type").Inc()
		logging.Warn().
			Str("event_type", payload.EventType).
			Str("session_id", c.session.SessionID).
			Msg("Client reported a non-reportable event type")
		return
	}

	score := clientEventScores[eventType]
	sess := c.session

	m.recordEvent(sess, eventType, score, score >= suspiciousEventFloor, payload.Details)

	if m.risk != nil {
		m.risk.AddFactor(sess.SessionID, models.RiskFactor{
			Source:   models.RiskSourceClientEvent,
			Score:    score,
			Patterns: []string{string(eventType)},
		})
	}
}

// handleTelemetry scores one telemetry batch. Quiet batches leave no
// trace beyond the processor's rolling window.
func (m *Monitor) handleTelemetry(c *Client, kind signal.Kind, eventType models.SecurityEventType, data json.RawMessage) {
	result, ok := m.pipeline.Process(kind, c.session.SessionID, data)
	if !ok || !result.Suspicious() {
		return
	}

	sess := c.session
	details := map[string]any{
		"patterns":  result.Patterns,
		"anomalies": result.Anomalies,
	}
	m.recordEvent(sess, eventType, result.RiskScore, true, details)

	if m.risk != nil {
		m.risk.AddFactor(sess.SessionID, models.RiskFactor{
			Source:   kind.RiskSource(),
			Score:    result.RiskScore,
			Patterns: result.Patterns,
		})
	}
}

// Challenge pushes a validation_challenge frame to every connection of
// the session and returns the issued challenge data.
func (m *Monitor) Challenge(sessionID string) (ChallengeData, error) {
	if _, ok := m.registry.Get(sessionID); !ok {
		return ChallengeData{}, ErrSessionGone
	}

	ch := m.validator.IssueChallenge(sessionID)
	data := ChallengeData{
		Nonce:      ch.Nonce,
		DeadlineMS: ch.Deadline.Sub(ch.IssuedAt).Milliseconds(),
	}
	m.hub.SendToSession(sessionID, Message{Type: MessageTypeValidationChallenge, Data: data})
	return data, nil
}

// Run expires outstanding challenges until ctx is cancelled. A session
// that lets a challenge lapse is terminated like a failed validation.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(challengeSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.expireChallenges()
		}
	}
}

func (m *Monitor) expireChallenges() int {
	expired := m.validator.ExpiredChallenges()
	for _, sessionID := range expired {
		s, ok := m.registry.Get(sessionID)
		if !ok {
			continue
		}

		m.recordEvent(s, models.EventValidationFailed, rejectionRiskScore, true,
			map[string]any{"reason": "challenge timeout"})
		if m.risk != nil {
			m.risk.AddFactor(sessionID, models.RiskFactor{
				Source:   models.RiskSourceValidator,
				Score:    rejectionRiskScore,
				Patterns: []string{"challenge timeout"},
			})
		}

		m.registry.Release(sessionID, session.ReasonValidationFailed)
		logging.Warn().
			Str("session_id", sessionID).
			Msg("Validation challenge expired, terminating session")
	}
	return len(expired)
}

// HandleRelease drops per-session pipeline state. NewMonitor registers
// it as a registry release listener.
func (m *Monitor) HandleRelease(s *session.Session, _ string) {
	m.validator.CancelChallenge(s.SessionID)
	m.pipeline.EndSession(s.SessionID)
	if m.risk != nil {
		m.risk.EndSession(s.SessionID)
	}
}

// recordEvent persists one security event and mirrors it to the
// dashboard fan-out.
func (m *Monitor) recordEvent(s *session.Session, eventType models.SecurityEventType, score float64, suspicious bool, details map[string]any) {
	event := &models.SecurityEvent{
		ID:           uuid.NewString(),
		SessionID:    s.SessionID,
		ExamID:       s.ExamID,
		StudentID:    s.StudentID,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Details:      details,
		RiskScore:    score,
		IsSuspicious: suspicious,
		SourceIP:     s.SourceIP,
		UserAgent:    s.UserAgent,
	}

	if m.recorder != nil {
		m.recorder.Record(event)
	}
	m.hub.BroadcastJSON(MessageTypeSecurityEventRecorded, event)
}
