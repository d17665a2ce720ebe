// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package kvstore opens the shared Badger database backing the restriction
// registry, the ban registry and the endpoint-token replay cache. All
// consumers receive the same *badger.DB; ownership stays with the caller
// that opened it.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
)

// Open opens (or creates) the Badger database per config.
func Open(cfg *config.BadgerConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}

	// Suppress Badger's own logger; operational visibility comes from the
	// GC loop and store-level logs.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	logging.Info().
		Str("dir", cfg.Dir).
		Bool("in_memory", cfg.InMemory).
		Msg("Key-value store opened")
	return db, nil
}

// RunGC runs value-log garbage collection on a fixed interval until ctx is
// cancelled, then returns ctx.Err(). Badger requires the caller to drive GC;
// TTL-expired ban and restriction records are reclaimed here. Run under the
// supervisor as the "badger-gc" data service.
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Repeat while GC finds work; ErrNoRewrite means done.
			for {
				err := db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						logging.Debug().Err(err).Msg("Badger value log GC")
					}
					break
				}
			}
		}
	}
}
