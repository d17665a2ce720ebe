// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package websocket carries the realtime monitoring channel between exam
clients and the integrity pipeline.

Every monitored exam attempt holds one allocated session and dials the
single multiplexed endpoint with its endpoint token. The package uses
gorilla/websocket with a hub-client architecture; the Monitor type is
the bridge from inbound frames to the validator, the signal processors,
the risk aggregator and the enforcement stores.

Key Components:

  - Hub: connection broker; indexes clients by session for targeted
    delivery and fans out admin dashboard broadcasts
  - Client: one WebSocket connection bound to a monitoring session,
    with read/write goroutines
  - Monitor: dispatches parsed frames into the integrity pipeline and
    owns the challenge lifecycle

Architecture:

	exam client ──ws──┐
	exam client ──ws──┤   ┌─────┐    ┌─────────┐    validator
	exam client ──ws──┼──►│ Hub │◄──►│ Monitor │──► signal pipeline
	                  │   └─────┘    └─────────┘    risk aggregator
	admin dashboards ─┘                             audit / banlist

Each client has two goroutines:
  - readPump: reads frames, enforces the per-session event budget,
    hands messages to the Monitor
  - writePump: drains the send buffer, emits protocol pings, delivers
    the session_terminated frame when the session context ends

Message Protocol:

Inbound (client to core):

  - browser_validation: fingerprint submission, optionally answering an
    outstanding challenge nonce
  - security_event: client-observed incident (tab_switch, window_blur,
    fullscreen_exit, copy/paste attempt, devtools_open, right_click)
  - keyboard_data, mouse_data, answer_data: telemetry batches
  - ping: application keepalive

Outbound (core to client):

  - validation_success, validation_failed: verdicts with itemized
    reasons on failure
  - validation_challenge: re-validation demand with nonce and deadline
  - security_warning: advisory pushed by the response dispatcher
  - session_terminated: final frame before the server closes
  - restriction_blocked: enforcement notice
  - pong: keepalive reply

Unknown frame types are dropped with a warning; malformed payloads are
dropped with a counter and no feedback to the client, so a probing
client learns nothing about the parser.

Connection Lifecycle:

 1. Client POSTs /monitoring/start and receives an endpoint token
 2. Client dials the ws endpoint; the API layer resolves the token to a
    session and upgrades
 3. Hub registers the client and attaches it to the session
 4. Frames flow through the Monitor into the pipeline
 5. Session release cancels the session context; the client gets
    session_terminated and the connection closes
 6. Hub unregisters the client and detaches it from the session

Timeouts follow the usual gorilla settings: 10s write deadline, 60s
pong wait with pings at 9/10 of that, 512KB read limit, 256-message
send buffer with slow-client disconnect.
*/
package websocket
