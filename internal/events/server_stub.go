// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

//go:build !nats

package events

import (
	"context"
	"fmt"

	"github.com/tomtom215/invigilo/internal/config"
)

// EmbeddedServer is a stub when NATS support is not compiled in.
type EmbeddedServer struct{}

// NewEmbeddedServer reports the missing build tag.
func NewEmbeddedServer(cfg config.NATSConfig) (*EmbeddedServer, error) {
	return nil, fmt.Errorf("embedded NATS server not available: build with -tags=nats")
}

// ClientURL returns an empty URL for the stub.
func (s *EmbeddedServer) ClientURL() string {
	return ""
}

// Shutdown is a no-op stub.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	return nil
}
