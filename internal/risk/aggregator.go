// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package risk maintains the rolling per-session risk assessment.
//
// Every risk factor entering the system lands here. The aggregator keeps
// the last N factors per session, recomputes the weighted average on each
// arrival and classifies it into a bucket. Two conditions escalate a
// session independent of each other: entering the critical or
// auto-suspend bucket, and a run of consecutive high-scoring factors
// crossing the configured count. Escalations fire on the crossing, not on
// every factor above the line; the dispatcher's cooldowns handle repeats.
//
// Factors for one session must arrive from a single goroutine to preserve
// receipt order. Different sessions are independent.
package risk

import (
	"sync"
	"time"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// BucketChange describes one bucket transition.
type BucketChange struct {
	SessionID string            `json:"session_id"`
	ExamID    string            `json:"exam_id"`
	StudentID string            `json:"student_id"`
	From      models.RiskBucket `json:"from"`
	To        models.RiskBucket `json:"to"`
	Score     float64           `json:"score"`
	At        time.Time         `json:"at"`
}

// EscalationTrigger names what tripped an escalation.
type EscalationTrigger string

const (
	TriggerBucket            EscalationTrigger = "bucket"
	TriggerConsecutiveAlerts EscalationTrigger = "consecutive_alerts"
)

// Escalation is handed to the dispatcher and the policy engine when a
// session needs intervention.
type Escalation struct {
	SessionID         string            `json:"session_id"`
	ExamID            string            `json:"exam_id"`
	StudentID         string            `json:"student_id"`
	Trigger           EscalationTrigger `json:"trigger"`
	Bucket            models.RiskBucket `json:"bucket"`
	Score             float64           `json:"score"`
	Factor            models.RiskFactor `json:"factor"`
	ConsecutiveAlerts int               `json:"consecutive_alerts"`
	At                time.Time         `json:"at"`
}

// BucketListener receives bucket transitions. Listeners run on the
// caller's goroutine and must not block.
type BucketListener func(change BucketChange)

// EscalationListener receives escalations. Same contract as
// BucketListener.
type EscalationListener func(esc Escalation)

// assessment is the mutable per-session state.
type assessment struct {
	mu                sync.Mutex
	examID            string
	studentID         string
	factors           []models.RiskFactor
	overall           float64
	bucket            models.RiskBucket
	consecutiveAlerts int
	lastAlertAt       time.Time
	updatedAt         time.Time
}

// Aggregator folds risk factors into per-session assessments.
type Aggregator struct {
	cfg config.RiskConfig

	mu       sync.RWMutex
	sessions map[string]*assessment

	listenerMu          sync.RWMutex
	bucketListeners     []BucketListener
	escalationListeners []EscalationListener

	// now is swappable for tests.
	now func() time.Time
}

// NewAggregator creates an aggregator with the given tuning.
func NewAggregator(cfg config.RiskConfig) *Aggregator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.AlertFloor <= 0 {
		cfg.AlertFloor = 70
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = 5 * time.Minute
	}
	if cfg.ConsecutiveAlertLimit <= 0 {
		cfg.ConsecutiveAlertLimit = 3
	}
	if cfg.Thresholds.Suspicious <= 0 {
		cfg.Thresholds = config.RiskThresholds{Suspicious: 40, HighRisk: 70, Critical: 90, AutoSuspend: 95}
	}
	return &Aggregator{
		cfg:      cfg,
		sessions: make(map[string]*assessment),
		now:      time.Now,
	}
}

// OnBucketChange registers a bucket transition listener.
func (a *Aggregator) OnBucketChange(fn BucketListener) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	a.bucketListeners = append(a.bucketListeners, fn)
}

// OnEscalation registers an escalation listener.
func (a *Aggregator) OnEscalation(fn EscalationListener) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	a.escalationListeners = append(a.escalationListeners, fn)
}

// StartSession seeds an assessment so snapshots exist before the first
// factor arrives.
func (a *Aggregator) StartSession(sessionID, examID, studentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; ok {
		return
	}
	a.sessions[sessionID] = &assessment{
		examID:    examID,
		studentID: studentID,
		bucket:    models.BucketNormal,
		updatedAt: a.now().UTC(),
	}
}

// EndSession discards a session's assessment. In-flight factors for the
// session are dropped rather than resurrecting state.
func (a *Aggregator) EndSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// AddFactor folds one factor into the session's assessment and returns
// the updated snapshot. Factors for unknown sessions are dropped.
func (a *Aggregator) AddFactor(sessionID string, factor models.RiskFactor) (models.RiskSnapshot, bool) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return models.RiskSnapshot{}, false
	}

	now := a.now().UTC()
	factor.Score = clampScore(factor.Score)
	if factor.RecordedAt.IsZero() {
		factor.RecordedAt = now
	}
	metrics.RiskScores.Observe(factor.Score)

	var (
		change *BucketChange
		escs   []Escalation
	)

	s.mu.Lock()

	s.factors = append(s.factors, factor)
	if len(s.factors) > a.cfg.WindowSize {
		keep := s.factors[len(s.factors)-a.cfg.WindowSize:]
		out := make([]models.RiskFactor, a.cfg.WindowSize)
		copy(out, keep)
		s.factors = out
	}

	s.overall = a.weightedAverage(s.factors)
	s.updatedAt = now

	prevBucket := s.bucket
	s.bucket = a.bucketFor(s.overall)
	if s.bucket != prevBucket {
		metrics.BucketTransitions.WithLabelValues(string(s.bucket)).Inc()
		change = &BucketChange{
			SessionID: sessionID,
			ExamID:    s.examID,
			StudentID: s.studentID,
			From:      prevBucket,
			To:        s.bucket,
			Score:     s.overall,
			At:        now,
		}
		if s.bucket.Rank() > prevBucket.Rank() && s.bucket.Rank() >= models.BucketCritical.Rank() {
			escs = append(escs, Escalation{
				SessionID: sessionID,
				ExamID:    s.examID,
				StudentID: s.studentID,
				Trigger:   TriggerBucket,
				Bucket:    s.bucket,
				Score:     s.overall,
				Factor:    factor,
				At:        now,
			})
		}
	}

	if factor.Score >= a.cfg.AlertFloor {
		prevCount := s.consecutiveAlerts
		if !s.lastAlertAt.IsZero() && now.Sub(s.lastAlertAt) <= a.cfg.AlertWindow {
			s.consecutiveAlerts++
		} else {
			s.consecutiveAlerts = 1
		}
		s.lastAlertAt = now

		if prevCount < a.cfg.ConsecutiveAlertLimit && s.consecutiveAlerts >= a.cfg.ConsecutiveAlertLimit {
			escs = append(escs, Escalation{
				SessionID:         sessionID,
				ExamID:            s.examID,
				StudentID:         s.studentID,
				Trigger:           TriggerConsecutiveAlerts,
				Bucket:            s.bucket,
				Score:             s.overall,
				Factor:            factor,
				ConsecutiveAlerts: s.consecutiveAlerts,
				At:                now,
			})
		}
	}

	snapshot := a.snapshotLocked(sessionID, s)
	s.mu.Unlock()

	if change != nil {
		logging.Info().
			Str("session_id", sessionID).
			Str("from", string(change.From)).
			Str("to", string(change.To)).
			Float64("score", change.Score).
			Msg("Risk bucket changed")
		a.notifyBucketChange(*change)
	}
	for _, esc := range escs {
		metrics.EscalationTriggers.WithLabelValues(string(esc.Trigger)).Inc()
		logging.Warn().
			Str("session_id", sessionID).
			Str("trigger", string(esc.Trigger)).
			Str("bucket", string(esc.Bucket)).
			Float64("score", esc.Score).
			Int("consecutive_alerts", esc.ConsecutiveAlerts).
			Msg("Risk escalation triggered")
		a.notifyEscalation(esc)
	}

	return snapshot, true
}

// Snapshot returns the current assessment for a session.
func (a *Aggregator) Snapshot(sessionID string) (models.RiskSnapshot, bool) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return models.RiskSnapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return a.snapshotLocked(sessionID, s), true
}

// snapshotLocked builds the external view. Caller holds s.mu.
func (a *Aggregator) snapshotLocked(sessionID string, s *assessment) models.RiskSnapshot {
	factors := make([]models.RiskFactor, len(s.factors))
	copy(factors, s.factors)

	snap := models.RiskSnapshot{
		SessionID:         sessionID,
		OverallRisk:       s.overall,
		Bucket:            s.bucket,
		Factors:           factors,
		ConsecutiveAlerts: s.consecutiveAlerts,
		UpdatedAt:         s.updatedAt,
	}
	if !s.lastAlertAt.IsZero() {
		at := s.lastAlertAt
		snap.LastAlertAt = &at
	}
	return snap
}

// weightedAverage computes sum(score*weight)/sum(weight) over the window.
func (a *Aggregator) weightedAverage(factors []models.RiskFactor) float64 {
	var scoreSum, weightSum float64
	for _, f := range factors {
		w := a.weightFor(f.Source)
		scoreSum += f.Score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return scoreSum / weightSum
}

// weightFor returns the configured weight for a source, 1.0 when unset.
func (a *Aggregator) weightFor(source models.RiskSource) float64 {
	if w, ok := a.cfg.SourceWeights[string(source)]; ok && w > 0 {
		return w
	}
	return 1.0
}

// bucketFor classifies an overall score.
func (a *Aggregator) bucketFor(score float64) models.RiskBucket {
	t := a.cfg.Thresholds
	switch {
	case score >= t.AutoSuspend:
		return models.BucketAutoSuspend
	case score >= t.Critical:
		return models.BucketCritical
	case score >= t.HighRisk:
		return models.BucketHighRisk
	case score >= t.Suspicious:
		return models.BucketSuspicious
	default:
		return models.BucketNormal
	}
}

func (a *Aggregator) notifyBucketChange(change BucketChange) {
	a.listenerMu.RLock()
	listeners := a.bucketListeners
	a.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(change)
	}
}

func (a *Aggregator) notifyEscalation(esc Escalation) {
	a.listenerMu.RLock()
	listeners := a.escalationListeners
	a.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(esc)
	}
}

// clampScore bounds a factor score to [0,100].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
