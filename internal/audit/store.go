// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package audit persists security events for compliance review and
// forensic analysis. Writes go through an asynchronous bounded buffer so
// the telemetry hot path never blocks on disk.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/invigilo/internal/models"
)

// Store persists security events.
type Store interface {
	// Save persists a single event.
	Save(ctx context.Context, event *models.SecurityEvent) error

	// Query retrieves events matching the filter, most recent first.
	Query(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter models.EventFilter) (int64, error)

	// DeleteBefore removes events older than cutoff and returns how many
	// were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryStore implements Store using in-memory storage. Suitable for
// development and testing; data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []models.SecurityEvent
	maxLen int
}

// NewMemoryStore creates a new in-memory event store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]models.SecurityEvent, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an event, dropping the oldest 10% when full.
func (s *MemoryStore) Save(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount < 1 {
			removeCount = 1
		}
		s.events = s.events[removeCount:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Query retrieves events matching the filter, most recent first.
func (s *MemoryStore) Query(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SecurityEvent
	skipped := 0

	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]

		if !matchesFilter(&event, &filter) {
			continue
		}

		if skipped < filter.Offset {
			skipped++
			continue
		}

		results = append(results, event)

		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}
	return count, nil
}

// DeleteBefore removes events older than cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for i := range s.events {
		if s.events[i].Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept
	return removed, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// matchesFilter returns true if the event matches all filter criteria.
func matchesFilter(event *models.SecurityEvent, filter *models.EventFilter) bool {
	if filter.SessionID != "" && event.SessionID != filter.SessionID {
		return false
	}
	if filter.ExamID != "" && event.ExamID != filter.ExamID {
		return false
	}
	if filter.StudentID != "" && event.StudentID != filter.StudentID {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.SuspiciousOnly && !event.IsSuspicious {
		return false
	}
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	return true
}
