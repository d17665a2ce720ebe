// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package supervisor provides process supervision for Invigilo using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of every long-running loop in the application. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The supervisor tree organizes services into three layers for failure
isolation:

	RootSupervisor ("invigilo")
	├── DataSupervisor ("data-layer")
	│   ├── badger-gc (value-log garbage collection)
	│   ├── audit-retention (security event cleanup)
	│   ├── restriction-sweep (restriction population census)
	│   └── netintel-refresh (network range reload, if configured)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── session-monitor (challenge lifecycle)
	│   ├── session-registry (idle session sweep)
	│   ├── response-dispatcher
	│   ├── notify-queue
	│   └── nats-components (event mirror, build tag: nats)
	└── APISupervisor ("api-layer")
	    └── http-server

This hierarchy ensures that:
  - A crash in the realtime pipeline doesn't take the admin API down
  - Storage maintenance failures never interrupt live sessions
  - Each layer restarts independently with its own failure budget

# Key Features

Automatic Restart:
  - Crashed services are automatically restarted
  - Exponential backoff prevents restart storms
  - Configurable failure thresholds and decay rates

Graceful Shutdown:
  - Context cancellation triggers orderly shutdown
  - Configurable shutdown timeout per service
  - UnstoppedServiceReport for debugging hangs

Structured Logging:
  - suture events route through sutureslog into the zerolog-backed
    slog handler, so supervision events share the process log stream

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: service stopped cleanly, will not be restarted
  - Return error: service crashed, will be restarted
  - Context canceled: shutdown requested, return promptly

Most Invigilo components expose a blocking Run(ctx) error with exactly
these semantics; the services package adapts them with a thin named
wrapper. The HTTP server and the NATS components have their own
adapters for their start/stop lifecycles.

# Build Tags

NATS/JetStream support is controlled by the nats build tag:

	-tags nats   # embedded JetStream server + watermill publisher

Without the tag, the NATS components compile to stubs and the mirror
runs without a bus sink.

# What Is NOT Supervised

DuckDB and Badger are embedded libraries, not long-running processes;
their handles are owned by cmd/server and closed after the tree stops.
Only their maintenance loops (GC, retention) run under supervision.
*/
package supervisor
