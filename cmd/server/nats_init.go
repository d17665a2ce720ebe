// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

//go:build nats

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/events"
	"github.com/tomtom215/invigilo/internal/logging"
)

// NATSComponents holds the event mirror stack for lifecycle management:
// the optional embedded JetStream server, the publisher and the mirror
// drain loop. The supervisor drives it through Start and Shutdown via
// services.NATSComponentsService.
type NATSComponents struct {
	server    *events.EmbeddedServer
	publisher *events.Publisher
	mirror    *events.Mirror

	cancelMirror     context.CancelFunc
	mirrorDone       sync.WaitGroup
	shutdownComplete chan struct{}
	mu               sync.Mutex
	running          bool
}

// InitNATS initializes the event mirror when NATS_ENABLED=true.
//
// The mirror publishes security events, risk updates and session
// lifecycle transitions onto JetStream subjects for external consumers.
// Returns nil, nil when NATS is disabled so main can wire the recorder
// unconditionally.
func InitNATS(cfg *config.Config) (*NATSComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS event mirror disabled (NATS_ENABLED=false)")
		return nil, nil
	}

	logging.Info().Msg("Initializing NATS event mirror...")

	components := &NATSComponents{
		shutdownComplete: make(chan struct{}),
	}

	// Step 1: Start the embedded JetStream server if configured,
	// otherwise point the publisher at the external broker.
	natsCfg := cfg.NATS
	if cfg.NATS.EmbeddedServer {
		server, err := events.NewEmbeddedServer(cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		components.server = server
		natsCfg.URL = server.ClientURL()
		logging.Info().Str("url", natsCfg.URL).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", natsCfg.URL).Msg("Using external NATS server")
	}

	// Step 2: Create the publisher. Connection retries happen in the
	// background, so a broker that is briefly down does not fail startup.
	publisher, err := events.NewPublisher(natsCfg, nil)
	if err != nil {
		if components.server != nil {
			if shutdownErr := components.server.Shutdown(context.Background()); shutdownErr != nil {
				logging.Error().Err(shutdownErr).Msg("Error shutting down NATS server")
			}
		}
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	components.publisher = publisher

	// Step 3: Guard publishes with a circuit breaker so a dead broker
	// sheds load fast instead of timing out every mirror attempt.
	publisher.SetCircuitBreaker(gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "nats-publish",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}))

	// Step 4: Create the mirror with the default queue size.
	components.mirror = events.NewMirror(publisher, 0)

	components.mu.Lock()
	components.running = true
	components.mu.Unlock()

	logging.Info().
		Str("subject_prefix", cfg.NATS.SubjectPrefix).
		Msg("NATS event mirror initialized successfully")
	return components, nil
}

// Start launches the mirror drain loop. The loop runs on an internal
// context so the queue keeps draining until Shutdown, independent of
// the startup context.
func (c *NATSComponents) Start(_ context.Context) error {
	if c == nil {
		return nil
	}
	if c.mirror == nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelMirror = cancel

	c.mirrorDone.Add(1)
	go func() {
		defer c.mirrorDone.Done()
		if err := c.mirror.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Event mirror stopped with error")
		}
	}()

	logging.Info().Msg("All NATS components started")
	return nil
}

// Shutdown gracefully stops the mirror stack.
//
// Shutdown order matters for clean termination:
//  1. Cancel the mirror loop; its exit path closes the publisher
//  2. Close the publisher directly in case the loop never started
//  3. Shutdown the embedded server last
func (c *NATSComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logging.Info().Msg("Shutting down NATS components...")

	if c.cancelMirror != nil {
		c.cancelMirror()
	}
	done := make(chan struct{})
	go func() {
		c.mirrorDone.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("Timed out waiting for event mirror to stop")
	}

	// Close is idempotent, so this is safe when the mirror loop
	// already closed the publisher on its way out.
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down NATS server")
		} else {
			logging.Info().Msg("Embedded NATS server stopped")
		}
	}

	close(c.shutdownComplete)
	logging.Info().Msg("NATS shutdown complete")
}

// IsRunning returns whether NATS components are active.
func (c *NATSComponents) IsRunning() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// EventMirror returns the mirror for wiring into the recorder fan and
// the risk listeners. Returns nil if NATS is not initialized.
func (c *NATSComponents) EventMirror() *events.Mirror {
	if c == nil {
		return nil
	}
	return c.mirror
}
