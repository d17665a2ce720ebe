// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package services provides suture.Service wrappers for Invigilo components.

This package adapts application components to the suture v4 supervision
model, translating their lifecycle patterns (Run, ListenAndServe,
Start/Shutdown) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation to the Serve pattern
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

# Available Services

Runner (RunnerService):
  - Wraps any component exposing Run(ctx context.Context) error
  - Covers the WebSocket hub, session monitor, session registry,
    response dispatcher and notification queue
  - RunnerFunc adapts loop functions such as kvstore.RunGC,
    audit Writer.RunCleanup, restriction Engine.RunSweep and
    netintel Service.RunRefresh

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining connections

NATS Components (NATSComponentsService):
  - Wraps the embedded NATS server, JetStream publisher and
    event mirror drain loop as one unit
  - Build tag: nats (disabled by default)

# Usage Example

Creating and registering services:

	import (
	    "net/http"
	    "time"

	    "github.com/tomtom215/invigilo/internal/supervisor"
	    "github.com/tomtom215/invigilo/internal/supervisor/services"
	)

	func setupSupervisor(server *http.Server, hub *ws.Hub, monitor *session.Monitor) {
	    tree, _ := supervisor.NewSupervisorTree(logger, config)

	    // HTTP server with 10s shutdown timeout
	    tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	    // Realtime components
	    tree.AddMessagingService(services.NewRunnerService("websocket-hub", hub))
	    tree.AddMessagingService(services.NewRunnerService("session-monitor", monitor))

	    // Start supervision
	    tree.Serve(ctx)
	}

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

Every Run loop in this codebase returns ctx.Err() when its context is
canceled, so a supervised shutdown always terminates cleanly.

# Testing

Services can be tested with mock components:

	type MockServer struct {
	    started  bool
	    shutdown bool
	}

	func (m *MockServer) ListenAndServe() error {
	    m.started = true
	    <-time.After(time.Hour) // Block until shutdown
	    return nil
	}

	func (m *MockServer) Shutdown(ctx context.Context) error {
	    m.shutdown = true
	    return nil
	}

# Thread Safety

All service wrappers are safe for concurrent use:
  - Wrappers hold no mutable state of their own
  - Context cancellation is handled atomically
  - Multiple Serve calls are not supported (undefined behavior)

# See Also

  - internal/supervisor: SupervisorTree that manages these services
  - github.com/thejerf/suture/v4: Underlying supervision library
  - internal/websocket: WebSocket hub implementation
  - internal/session: Heartbeat monitor and token registry
*/
package services
