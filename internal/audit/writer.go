// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// Writer records security events asynchronously. Record never blocks:
// when the buffer is full the event is dropped and counted, because a
// stalled disk must not back-pressure into telemetry processing.
type Writer struct {
	cfg       config.AuditConfig
	store     Store
	eventChan chan *models.SecurityEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewWriter creates an event writer and starts its background goroutine.
func NewWriter(store Store, cfg config.AuditConfig) *Writer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	w := &Writer{
		cfg:       cfg,
		store:     store,
		eventChan: make(chan *models.SecurityEvent, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// Record enqueues an event for persistence. Fills in ID and timestamp when
// unset. Drops the event if the buffer is full.
func (w *Writer) Record(event *models.SecurityEvent) {
	if event == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case w.eventChan <- event:
	default:
		metrics.SecurityEventsDropped.WithLabelValues("buffer_full").Inc()
		logging.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Msg("Security event buffer full, dropping event")
	}
}

// run processes events from the buffer until Close, then drains what
// remains so accepted events are not lost on shutdown.
func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			for {
				select {
				case event := <-w.eventChan:
					w.writeEvent(event)
				default:
					return
				}
			}
		case event := <-w.eventChan:
			w.writeEvent(event)
		}
	}
}

// writeEvent persists a single event with bounded retries.
func (w *Writer) writeEvent(event *models.SecurityEvent) {
	var lastErr error

	attempts := w.cfg.RetryAttempts + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(w.cfg.RetryBackoff * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		err := w.store.Save(ctx, event)
		cancel()

		if err == nil {
			metrics.SecurityEventsWritten.Inc()
			return
		}
		lastErr = err
	}

	metrics.SecurityEventsDropped.WithLabelValues("store_error").Inc()
	logging.Error().
		Err(lastErr).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("Failed to save security event")
}

// Close stops the writer after draining buffered events.
func (w *Writer) Close() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	return nil
}

// Query retrieves events matching the filter.
func (w *Writer) Query(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	return w.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (w *Writer) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	return w.store.Count(ctx, filter)
}

// RunCleanup deletes events past the retention horizon on a fixed interval
// until ctx is cancelled, then returns ctx.Err(). Run under the supervisor
// as the "audit-retention" data service.
func (w *Writer) RunCleanup(ctx context.Context) error {
	interval := w.cfg.CleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retentionDays := w.cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			count, err := w.store.DeleteBefore(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("Security event cleanup error")
			} else if count > 0 {
				logging.Info().Int64("count", count).Msg("Cleaned up old security events")
			}
		}
	}
}
