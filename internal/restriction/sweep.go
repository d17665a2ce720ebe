// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package restriction

import (
	"context"
	"time"

	"github.com/tomtom215/invigilo/internal/logging"
)

// RunSweep runs a periodic scan reporting how many records are active
// versus lapsed, until ctx is cancelled. Enforcement never depends on the
// sweep; Active is always computed from record fields at check time. The
// sweep exists so operators can see the population without querying the
// store. Run under the supervisor as the "restriction-sweep" data service.
func (e *Engine) RunSweep(ctx context.Context) error {
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", interval).
		Msg("Restriction sweep started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Restriction sweep stopped")
			return ctx.Err()
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

// sweepOnce takes one census of the restriction population.
func (e *Engine) sweepOnce(ctx context.Context) {
	records, err := e.store.List(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Restriction sweep scan failed")
		return
	}

	now := e.now()
	var active, expired, lifted, permanent int
	for i := range records {
		r := &records[i]
		switch {
		case r.LiftedAt != nil:
			lifted++
		case r.IsPermanent:
			permanent++
			active++
		case r.Active(now):
			active++
		default:
			expired++
		}
	}

	logging.Debug().
		Int("total", len(records)).
		Int("active", active).
		Int("expired", expired).
		Int("lifted", lifted).
		Int("permanent", permanent).
		Msg("Restriction sweep complete")
}
