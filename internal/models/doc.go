// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package models defines the shared data structures exchanged between the
// monitoring pipeline, the enforcement engines, and the HTTP/WebSocket API.
//
// Core domain types:
//
//   - SecurityEvent: immutable, append-only record of a suspicious or
//     noteworthy occurrence within a monitoring session
//   - Restriction: an enforceable access limitation with escalation history
//     and an appeal lifecycle
//   - BannedClient: an IP/device-keyed ban independent of student identity
//   - RiskFactor / RiskBucket: bounded risk contributions and the levels
//     they aggregate into
//   - Fingerprint and telemetry event types: payloads the exam client
//     submits over the realtime channel
//
// API types:
//
//   - APIResponse: standard response wrapper
//   - Request/response DTOs for the monitoring and admin endpoints
//
// Types that are internal to a single subsystem (hub clients, rolling
// buffers, store entries) live with that subsystem, not here.
package models
