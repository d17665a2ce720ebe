// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
)

const (
	defaultQueueSize   = 256
	defaultWorkerCount = 2
	sendTimeout        = 15 * time.Second
)

// Queue decouples enforcement from notification delivery. Enqueue never
// blocks: a full queue evicts its oldest entry so the freshest
// notifications survive a slow backend.
type Queue struct {
	notifier Notifier
	queue    chan Notification
	workers  int

	mu     sync.RWMutex
	closed bool
}

// NewQueue wraps a notifier with an async delivery queue.
func NewQueue(notifier Notifier, queueSize, workers int) *Queue {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &Queue{
		notifier: notifier,
		queue:    make(chan Notification, queueSize),
		workers:  workers,
	}
}

// Enqueue accepts a notification for delivery. Fills in ID and
// CreatedAt when unset. Returns false when the notification was
// dropped.
func (q *Queue) Enqueue(n Notification) bool {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return false
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	select {
	case q.queue <- n:
		return true
	default:
	}

	// Full. Evict the oldest entry and try once more.
	select {
	case old := <-q.queue:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		logging.Warn().
			Str("notification_id", old.ID).
			Str("subject", old.Subject).
			Msg("Notification queue full, dropping oldest")
	default:
	}

	select {
	case q.queue <- n:
		return true
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return false
	}
}

// Run starts the delivery workers and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	logging.Info().
		Int("workers", q.workers).
		Int("queue_size", cap(q.queue)).
		Msg("Starting notification queue")

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	logging.Info().Msg("Notification queue stopped")
	return ctx.Err()
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.queue:
			q.deliver(ctx, n)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := q.notifier.Send(sendCtx, n); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		logging.Warn().
			Err(err).
			Str("notification_id", n.ID).
			Str("audience", string(n.Audience)).
			Str("subject", n.Subject).
			Msg("Notification delivery failed")
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}
