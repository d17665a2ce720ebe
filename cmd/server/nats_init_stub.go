// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

//go:build !nats

package main

import (
	"context"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/events"
	"github.com/tomtom215/invigilo/internal/logging"
)

// NATSComponents is a stub for non-NATS builds.
type NATSComponents struct{}

// InitNATS is a no-op stub for non-NATS builds.
// Returns nil to indicate NATS is not available.
func InitNATS(cfg *config.Config) (*NATSComponents, error) {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("NATS_ENABLED=true but NATS support not compiled (build with -tags nats)")
	}
	return nil, nil
}

// Start is a no-op stub for non-NATS builds.
func (c *NATSComponents) Start(_ context.Context) error {
	return nil
}

// Shutdown is a no-op stub for non-NATS builds.
func (c *NATSComponents) Shutdown(_ context.Context) {}

// IsRunning returns false for non-NATS builds.
func (c *NATSComponents) IsRunning() bool {
	return false
}

// EventMirror returns nil for non-NATS builds, so the recorder fan
// falls back to the audit writer alone.
func (c *NATSComponents) EventMirror() *events.Mirror {
	return nil
}
