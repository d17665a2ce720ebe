// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package metrics provides Prometheus instrumentation for the monitoring
// pipeline and enforcement engines:
//
//   - session registry (active sessions, pool utilization, allocation failures)
//   - realtime channel (messages by type, drops)
//   - validator outcomes, signal batches, risk scores and bucket moves
//   - restrictions, bans, dispatcher actions and cooldown drops
//   - security-event writer health and fail-open occurrences
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session registry metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilo_sessions_active",
			Help: "Current number of active monitoring sessions",
		},
	)

	EndpointsAllocated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilo_endpoints_allocated",
			Help: "Current number of allocated endpoint slots",
		},
	)

	EndpointAllocationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilo_endpoint_allocation_failures_total",
			Help: "Total endpoint allocations rejected because the pool was exhausted",
		},
	)

	SessionsReclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_sessions_reclaimed_total",
			Help: "Total sessions reclaimed, by cause",
		},
		[]string{"cause"}, // "idle", "completed", "suspended", "terminated", "replaced", "shutdown", "validation_failed"
	)

	// Realtime channel metrics
	TelemetryMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_telemetry_messages_total",
			Help: "Total inbound realtime messages, by type",
		},
		[]string{"type"},
	)

	TelemetryDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_telemetry_dropped_total",
			Help: "Total inbound messages dropped before processing",
		},
		[]string{"reason"}, // "rate_limited", "malformed", "unknown_type", "oversized"
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilo_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	// Validator metrics
	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_validations_total",
			Help: "Total authenticity validations, by outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected", "challenge_timeout"
	)

	ValidationSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_validation_signals_total",
			Help: "Total triggered validation checklist signals, by check",
		},
		[]string{"check"},
	)

	// Signal processor metrics
	SignalBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_signal_batches_total",
			Help: "Total telemetry batches processed, by processor",
		},
		[]string{"processor"},
	)

	SignalProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invigilo_signal_processing_duration_seconds",
			Help:    "Per-batch signal processing duration in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		},
		[]string{"processor"},
	)

	// Risk aggregator metrics
	RiskScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invigilo_risk_scores",
			Help:    "Distribution of per-factor risk scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100},
		},
	)

	BucketTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_bucket_transitions_total",
			Help: "Total risk bucket transitions, by destination bucket",
		},
		[]string{"bucket"},
	)

	EscalationTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_escalation_triggers_total",
			Help: "Total escalations handed to the dispatcher, by trigger",
		},
		[]string{"trigger"}, // "bucket", "consecutive_alerts"
	)

	// Enforcement metrics
	RestrictionsImposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_restrictions_imposed_total",
			Help: "Total restrictions created or escalated, by type",
		},
		[]string{"type"},
	)

	RestrictionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_restriction_checks_total",
			Help: "Total canProceed checks, by result",
		},
		[]string{"result"}, // "allowed", "denied", "fail_open"
	)

	FailOpenDecisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilo_fail_open_total",
			Help: "Total access checks that failed open due to storage errors",
		},
	)

	BansRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_bans_recorded_total",
			Help: "Total ban violations recorded, by permanence",
		},
		[]string{"permanent"}, // "true", "false"
	)

	DispatcherActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_dispatcher_actions_total",
			Help: "Total enforcement actions executed, by action",
		},
		[]string{"action"},
	)

	CooldownDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_cooldown_drops_total",
			Help: "Total enforcement actions dropped inside their cooldown window",
		},
		[]string{"action"},
	)

	DispatcherDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilo_dispatcher_dropped_total",
			Help: "Total risk events dropped because the dispatcher queue was full",
		},
	)

	// Security-event writer metrics
	SecurityEventsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilo_security_events_written_total",
			Help: "Total security events persisted",
		},
	)

	SecurityEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_security_events_dropped_total",
			Help: "Total security events dropped, by reason",
		},
		[]string{"reason"}, // "buffer_full", "store_error"
	)

	// Notification metrics
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_notifications_total",
			Help: "Total outbound notifications, by result",
		},
		[]string{"result"}, // "sent", "failed", "dropped"
	)

	// Attendance metrics
	AttendanceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_attendance_updates_total",
			Help: "Total attendance status pushes, by result",
		},
		[]string{"result"}, // "ok", "failed", "skipped"
	)

	// Event mirror metrics
	EventsMirrored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_events_mirrored_total",
			Help: "Total integrity events published to the external bus, by kind",
		},
		[]string{"kind"},
	)

	EventsMirrorDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_events_mirror_dropped_total",
			Help: "Total integrity events not published, by reason",
		},
		[]string{"reason"}, // "queue_full", "publish_failed", "closed"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilo_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invigilo_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordValidation records a validation outcome plus the checks that fired.
func RecordValidation(outcome string, firedChecks []string) {
	Validations.WithLabelValues(outcome).Inc()
	for _, check := range firedChecks {
		ValidationSignals.WithLabelValues(check).Inc()
	}
}

// RecordSignalBatch records one processed telemetry batch.
func RecordSignalBatch(processor string, duration time.Duration) {
	SignalBatches.WithLabelValues(processor).Inc()
	SignalProcessingDuration.WithLabelValues(processor).Observe(duration.Seconds())
}

// RecordBanViolation records a ban registry violation.
func RecordBanViolation(permanent bool) {
	BansRecorded.WithLabelValues(strconv.FormatBool(permanent)).Inc()
}
