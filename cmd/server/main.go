// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package main is the entry point for the Invigilo server application.
//
// Invigilo is a self-hosted exam integrity platform that monitors
// candidate sessions in real time over WebSocket, scores behavioral
// telemetry into a per-session risk assessment, and escalates through
// graduated responses from silent logging up to session termination.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Logging: zerolog with JSON/console output modes
//  3. Database: DuckDB for the security event audit trail and network intelligence
//  4. Key-value store: BadgerDB for sessions, restrictions and the banlist
//  5. NATS (optional): JetStream event mirror for external consumers
//  6. Integrity pipeline: validator, signal processors, risk aggregator
//  7. Session layer: registry, WebSocket hub, monitor, response dispatcher
//  8. Supervisor tree: Suture v4 process supervision over every loop
//  9. HTTP server: REST API with Swagger documentation
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see .env.example)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Common environment variables:
//   - HTTP_PORT: HTTP listen port (default 8080)
//   - DUCKDB_PATH: Audit database path
//   - BADGER_DIR: Key-value store directory
//   - ADMIN_TOKEN: Bearer token for the proctor/admin API
//   - SESSION_POOL_SIZE: Concurrent monitored session cap
//   - WEBHOOK_URL: Proctor notification webhook
//
// # Build Tags
//
// Optional build tags enable additional functionality:
//
//	go build -tags "nats" ./cmd/server   # Enable NATS JetStream event mirror
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (configurable timeout)
//   - Drains the audit writer and notification queue
//   - Shuts down NATS components if enabled
//
// # Example Usage
//
// Development (ephemeral storage, admin API open on localhost):
//
//	export ADMIN_TOKEN=dev-token
//	go run ./cmd/server
//
// Production:
//
//	export HTTP_PORT=8080
//	export DUCKDB_PATH=/data/invigilo.db
//	export BADGER_DIR=/data/badger
//	export ADMIN_TOKEN=$(openssl rand -hex 32)
//	export IDENTITY_SECRET=$(openssl rand -hex 32)
//	export WEBHOOK_URL=https://proctor.example.com/hooks/invigilo
//	./invigilo
//
// With the event mirror (requires -tags nats):
//
//	export NATS_ENABLED=true
//	export NATS_EMBEDDED_SERVER=true
//	export NATS_STORE_DIR=/data/jetstream
//	./invigilo
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tomtom215/invigilo/docs" // Import generated swagger docs
	"github.com/tomtom215/invigilo/internal/api"
	"github.com/tomtom215/invigilo/internal/attendance"
	"github.com/tomtom215/invigilo/internal/audit"
	"github.com/tomtom215/invigilo/internal/banlist"
	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/database"
	"github.com/tomtom215/invigilo/internal/kvstore"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/models"
	"github.com/tomtom215/invigilo/internal/netintel"
	"github.com/tomtom215/invigilo/internal/notify"
	"github.com/tomtom215/invigilo/internal/response"
	"github.com/tomtom215/invigilo/internal/restriction"
	"github.com/tomtom215/invigilo/internal/risk"
	"github.com/tomtom215/invigilo/internal/session"
	intsignal "github.com/tomtom215/invigilo/internal/signal"
	"github.com/tomtom215/invigilo/internal/supervisor"
	"github.com/tomtom215/invigilo/internal/supervisor/services"
	"github.com/tomtom215/invigilo/internal/validator"
	ws "github.com/tomtom215/invigilo/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Invigilo with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("badger_dir", cfg.Badger.Dir).
		Int("session_pool", cfg.Session.PoolSize).
		Msg("Configuration loaded")

	// Initialize DuckDB for the audit trail and network intelligence
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Open BadgerDB for sessions, restrictions and the banlist
	kv, err := kvstore.Open(&cfg.Badger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open key-value store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing key-value store")
		}
	}()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	// Create supervisor tree
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Initialize NATS event mirror (optional - requires build with -tags nats)
	// The mirror fans security events, risk updates and session lifecycle
	// onto JetStream subjects for external consumers such as LMS dashboards.
	natsComponents, err := InitNATS(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}

	// Add NATS to supervisor tree (if enabled)
	// Note: NATS components are started/managed by supervisor, not manually
	AddNATSToSupervisor(tree, natsComponents)

	// Audit trail: buffered async writer over the DuckDB store. The
	// security_events table itself is created during database schema
	// initialization.
	auditWriter := audit.NewWriter(audit.NewDuckDBStore(db.Conn()), cfg.Audit)
	defer func() {
		if err := auditWriter.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit writer")
		}
	}()
	logging.Info().Msg("Audit writer initialized with DuckDB persistence")

	// Every component that records security events writes through a
	// single sink: the audit writer, plus the event mirror when the
	// NATS build is active.
	var recorder eventSink = auditWriter
	mirror := natsComponents.EventMirror()
	if mirror != nil {
		recorder = &recorderFan{sinks: []eventSink{auditWriter, mirror}}
		logging.Info().Msg("Security events mirrored to the message bus")
	}

	// Banlist registry tracks device/IP bans with escalating durations
	bans := banlist.NewRegistry(kv, cfg.Banlist)

	// Restriction engine imposes graduated cooldowns per student
	engine := restriction.NewEngine(
		restriction.NewBadgerStore(kv, cfg.Restriction.HistoryRetention),
		cfg.Restriction,
		recorder,
	)

	// Network intelligence classifies client addresses (VPN, proxy,
	// datacenter). Disabled it still satisfies the validator's lookup
	// interface and answers "unknown".
	intel := netintel.NewService(db.Conn(), cfg.NetIntel)
	if cfg.NetIntel.Enabled {
		if err := intel.Initialize(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to initialize network intelligence, lookups disabled")
		} else if cfg.NetIntel.ImportPath != "" {
			result, err := intel.ImportFromFile(ctx, cfg.NetIntel.ImportPath)
			if err != nil {
				logging.Warn().Err(err).Str("file", cfg.NetIntel.ImportPath).Msg("Failed to import network ranges")
			} else {
				logging.Info().
					Int("imported", result.RangesImported).
					Int("skipped", result.Skipped).
					Msg("Network ranges imported")
			}
		}
	} else {
		logging.Info().Msg("Network intelligence disabled (NETINTEL_ENABLED=false)")
	}

	// Browser environment validator and behavioral signal processors
	v := validator.New(cfg.Validator, intel)

	pipeline := intsignal.NewPipeline()
	pipeline.Register(intsignal.NewMouseProcessor(cfg.Signals.Mouse))
	pipeline.Register(intsignal.NewKeyboardProcessor(cfg.Signals.Keyboard))
	pipeline.Register(intsignal.NewAnswerProcessor(cfg.Signals.Answers))
	logging.Info().Int("processors", len(pipeline.Kinds())).Msg("Signal pipeline registered")

	// Risk aggregator folds weighted factors into per-session scores
	agg := risk.NewAggregator(cfg.Risk)

	// Session registry with bounded pool and signed tokens
	registry, err := session.NewRegistry(kv, cfg.Session)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create session registry")
	}

	// Create WebSocket hub for realtime frames (before the monitor)
	hub := ws.NewHub()

	// Monitor bridges inbound frames into the integrity pipeline
	monitor := ws.NewMonitor(hub, registry, v, pipeline, agg, bans, engine, recorder)

	// Proctor notifications: webhook when configured, log otherwise
	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify)
		logging.Info().Str("url", cfg.Notify.WebhookURL).Msg("Webhook notifier configured")
	} else {
		notifier = notify.NewLogNotifier()
		logging.Info().Msg("No webhook configured, notifications go to the log")
	}
	queue := notify.NewQueue(notifier, cfg.Notify.QueueSize, cfg.Notify.Workers)

	// Attendance integration reports session status to the exam platform
	var attendanceStore attendance.Store
	if cfg.Attendance.Enabled {
		attendanceStore = attendance.NewClient(cfg.Attendance)
		logging.Info().Str("base_url", cfg.Attendance.BaseURL).Msg("Attendance integration enabled")
	} else {
		attendanceStore = attendance.NewNoop()
	}

	// Response dispatcher turns risk transitions into graduated actions
	dispatcher := response.NewDispatcher(cfg.Response, registry, hub, monitor, engine, recorder, queue, attendanceStore)

	// Risk listeners: the dispatcher acts on every transition; the
	// mirror additionally publishes the fresh snapshot for consumers.
	agg.OnBucketChange(dispatcher.HandleBucketChange)
	agg.OnEscalation(dispatcher.HandleEscalation)
	if mirror != nil {
		agg.OnBucketChange(func(change risk.BucketChange) {
			if snap, ok := agg.Snapshot(change.SessionID); ok {
				mirror.RiskUpdate(snap)
			}
		})
		registry.OnRelease(func(s *session.Session, reason string) {
			mirror.SessionEnded(s.Snapshot(), reason)
		})
	}

	handler := api.NewHandler(cfg, registry, hub, monitor, engine, bans, auditWriter, agg, intel, db)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Data layer services
	tree.AddDataService(services.NewRunnerService("badger-gc", services.RunnerFunc(
		func(ctx context.Context) error {
			return kvstore.RunGC(ctx, kv, cfg.Badger.GCInterval)
		})))
	tree.AddDataService(services.NewRunnerService("audit-retention", services.RunnerFunc(auditWriter.RunCleanup)))
	tree.AddDataService(services.NewRunnerService("restriction-sweep", services.RunnerFunc(engine.RunSweep)))
	if cfg.NetIntel.Enabled {
		tree.AddDataService(services.NewRunnerService("netintel-refresh", services.RunnerFunc(intel.RunRefresh)))
	}

	// Messaging layer services
	tree.AddMessagingService(services.NewRunnerService("websocket-hub", hub))
	tree.AddMessagingService(services.NewRunnerService("session-monitor", monitor))
	tree.AddMessagingService(services.NewRunnerService("session-registry", registry))
	tree.AddMessagingService(services.NewRunnerService("response-dispatcher", dispatcher))
	tree.AddMessagingService(services.NewRunnerService("notify-queue", queue))
	logging.Info().Msg("Integrity pipeline added to supervisor tree")

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// eventSink matches the Record method shared by the audit writer and
// the event mirror. Record never blocks; both sinks queue internally.
type eventSink interface {
	Record(event *models.SecurityEvent)
}

// recorderFan delivers each security event to every registered sink.
type recorderFan struct {
	sinks []eventSink
}

// Record forwards the event to all sinks in registration order.
func (f *recorderFan) Record(event *models.SecurityEvent) {
	for _, s := range f.sinks {
		s.Record(event)
	}
}
