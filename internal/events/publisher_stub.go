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

// Publisher is a stub when NATS support is not compiled in. Build with
// -tags=nats to enable the event mirror.
type Publisher struct{}

// NewPublisher reports the missing build tag.
func NewPublisher(cfg config.NATSConfig, logger interface{}) (*Publisher, error) {
	return nil, fmt.Errorf("NATS mirror not available: build with -tags=nats")
}

// PublishEnvelope is a stub that returns an error.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *Envelope) error {
	return fmt.Errorf("NATS mirror not available: build with -tags=nats")
}

// Close is a no-op stub.
func (p *Publisher) Close() error {
	return nil
}
