// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

/*
Package main is the entry point for the Invigilo server application.

Invigilo is a self-hosted exam integrity platform. Candidate browsers
hold a WebSocket connection for the duration of an assessment, streaming
environment fingerprints, behavioral telemetry and self-reported
incidents. The server validates the environment, scores the telemetry
into a per-session risk assessment, and escalates through graduated
responses: silent logging, warnings, re-validation challenges, answer
locks and session termination.

# Application Architecture

The server implements a layered architecture with Suture v4 process
supervision:

	RootSupervisor ("invigilo")
	├── DataSupervisor ("data-layer")
	│   ├── badger-gc (value-log garbage collection)
	│   ├── audit-retention (security event cleanup)
	│   ├── restriction-sweep (restriction population census)
	│   └── netintel-refresh (network range reload, if enabled)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── websocket-hub
	│   ├── session-monitor (challenge lifecycle)
	│   ├── session-registry (idle session sweep)
	│   ├── response-dispatcher
	│   ├── notify-queue
	│   └── nats-components (event mirror, -tags nats)
	└── APISupervisor ("api-layer")
	    └── http-server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB for the audit trail and network intelligence
 4. Key-value store: BadgerDB for sessions, restrictions and the banlist
 5. NATS event mirror (optional, -tags nats)
 6. Integrity pipeline: validator, signal processors, risk aggregator
 7. Session layer: registry, hub, monitor, response dispatcher
 8. Supervisor tree: Suture v4 process supervision
 9. HTTP server: Chi router with middleware stack

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest
priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	# Server
	HTTP_PORT=8080               # HTTP listen port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Storage
	DUCKDB_PATH=/data/invigilo.db
	BADGER_DIR=/data/badger

	# Perimeter
	ADMIN_TOKEN=<token>          # Bearer token for the proctor/admin API
	IDENTITY_SECRET=<32+ chars>  # HMAC key for session tokens
	CORS_ORIGINS=https://exams.example.com

	# Sessions
	SESSION_POOL_SIZE=64         # Concurrent monitored session cap
	SESSION_IDLE_TIMEOUT=7m

	# Collaborators
	WEBHOOK_URL=<url>            # Proctor notification webhook
	ATTENDANCE_ENABLED=true      # Report status to the exam platform
	ATTENDANCE_URL=<url>
	ATTENDANCE_API_KEY=<key>

Any other setting uses the INVIGILO_ prefix with the section name as
the first segment, for example INVIGILO_RISK_ALERT_FLOOR=70. See
.env.example for the complete reference.

# Build Tags

Optional build tags enable additional functionality:

	go build ./cmd/server              # Standard build
	go build -tags nats ./cmd/server   # Enable the JetStream event mirror

Build tags affect supervisor tree composition:
  - nats: Adds NATSComponentsService to the messaging layer and fans
    security events onto JetStream subjects alongside the audit trail

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Closes WebSocket sessions
 3. Waits for in-flight requests (configurable timeout)
 4. Drains the audit writer and notification queue
 5. Flushes pending writes and closes both stores
 6. Reports any services that failed to stop

# Usage Examples

Development (ephemeral storage):

	export ADMIN_TOKEN=dev-token
	go run ./cmd/server

Production:

	export DUCKDB_PATH=/data/invigilo.db
	export BADGER_DIR=/data/badger
	export ADMIN_TOKEN=$(openssl rand -hex 32)
	export IDENTITY_SECRET=$(openssl rand -hex 32)
	./invigilo

Docker:

	docker run -d \
	  -e ADMIN_TOKEN=change-me \
	  -e IDENTITY_SECRET=change-me-too \
	  -v invigilo-data:/data \
	  -p 8080:8080 \
	  ghcr.io/tomtom215/invigilo

# API Documentation

Swagger documentation is available at /swagger/index.html when the
server is running. The API is organized into categories:

  - Monitoring: Session start/stop and the WebSocket endpoint
  - Sessions: Proctor session listing and live risk snapshots
  - Restrictions: Restriction listing, appeals and lifts
  - Banlist: Banned client listing, import and lifts
  - Events: Audit trail queries
  - Intel: Network intelligence lookups and imports
  - Core: Health checks, readiness and Prometheus metrics

# See Also

  - internal/config: Configuration management
  - internal/supervisor: Process supervision
  - internal/api: HTTP handlers and routing
  - internal/websocket: Realtime transport and the monitor
  - internal/risk: Risk aggregation and escalation
*/
package main
