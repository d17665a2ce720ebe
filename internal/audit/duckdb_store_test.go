// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/database"
	"github.com/tomtom215/invigilo/internal/models"
)

func setupDuckDBStore(t *testing.T) *DuckDBStore {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
	})
	if err != nil {
		t.Fatalf("database.New() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})

	return NewDuckDBStore(db.Conn())
}

func TestDuckDBStoreSaveAndQuery(t *testing.T) {
	store := setupDuckDBStore(t)
	ctx := context.Background()

	event := &models.SecurityEvent{
		SessionID: "sess-1",
		ExamID:    "exam-1",
		StudentID: "alice",
		Type:      models.EventAutomationDetected,
		Timestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Details: map[string]any{
			"checks": []any{"webdriver", "user_agent"},
		},
		RiskScore:    95,
		IsSuspicious: true,
		SourceIP:     "203.0.113.9",
		UserAgent:    "HeadlessChrome/120.0",
	}

	if err := store.Save(ctx, event); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if event.ID == "" {
		t.Fatal("Save() did not assign an event ID")
	}

	got, err := store.Query(ctx, models.EventFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d events, want 1", len(got))
	}

	e := got[0]
	if e.Type != models.EventAutomationDetected {
		t.Errorf("Type = %s, want %s", e.Type, models.EventAutomationDetected)
	}
	if e.RiskScore != 95 {
		t.Errorf("RiskScore = %v, want 95", e.RiskScore)
	}
	if !e.IsSuspicious {
		t.Error("IsSuspicious = false, want true")
	}
	if e.SourceIP != "203.0.113.9" {
		t.Errorf("SourceIP = %s, want 203.0.113.9", e.SourceIP)
	}
	if e.Details == nil {
		t.Error("Details were not round-tripped")
	}
}

func TestDuckDBStoreFiltersAndCount(t *testing.T) {
	store := setupDuckDBStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed := []models.SecurityEvent{
		{SessionID: "s1", ExamID: "e1", StudentID: "alice", Type: models.EventTabSwitch, Timestamp: base},
		{SessionID: "s1", ExamID: "e1", StudentID: "alice", Type: models.EventAutomationDetected, Timestamp: base.Add(time.Minute), IsSuspicious: true, RiskScore: 95},
		{SessionID: "s2", ExamID: "e1", StudentID: "bob", Type: models.EventKeyboardAnomaly, Timestamp: base.Add(2 * time.Minute), IsSuspicious: true, RiskScore: 60},
	}
	for i := range seed {
		if err := store.Save(ctx, &seed[i]); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	suspicious, err := store.Query(ctx, models.EventFilter{ExamID: "e1", SuspiciousOnly: true})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(suspicious) != 2 {
		t.Errorf("suspicious query returned %d events, want 2", len(suspicious))
	}
	// Most recent first.
	if len(suspicious) == 2 && suspicious[0].Type != models.EventKeyboardAnomaly {
		t.Errorf("first event type = %s, want %s", suspicious[0].Type, models.EventKeyboardAnomaly)
	}

	count, err := store.Count(ctx, models.EventFilter{StudentID: "alice"})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count(alice) = %d, want 2", count)
	}
}

func TestDuckDBStoreDeleteBefore(t *testing.T) {
	store := setupDuckDBStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		event := &models.SecurityEvent{
			SessionID: "s1",
			Type:      models.EventWindowBlur,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Save(ctx, event); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	removed, err := store.DeleteBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteBefore() removed %d, want 2", removed)
	}

	count, err := store.Count(ctx, models.EventFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("remaining count = %d, want 2", count)
	}
}
