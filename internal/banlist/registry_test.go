// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package banlist

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/models"
)

func testRegistry(t *testing.T, cfg config.BanlistConfig) *Registry {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})

	return NewRegistry(db, cfg)
}

func defaultTestConfig() config.BanlistConfig {
	return config.BanlistConfig{
		BaseDuration:       time.Hour,
		DurationCap:        5,
		PermanentThreshold: 10,
		HistoryRetention:   90 * 24 * time.Hour,
		FailureLimit:       3,
		FailureWindow:      10 * time.Minute,
	}
}

func TestRecordViolationEscalates(t *testing.T) {
	registry := testRegistry(t, defaultTestConfig())
	ctx := context.Background()

	// First violation: 1x base duration.
	client, err := registry.RecordViolation(ctx, "203.0.113.9", "Mozilla/5.0", "dev-1", "automation detected")
	if err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}
	if client.ViolationCount != 1 {
		t.Errorf("ViolationCount = %d, want 1", client.ViolationCount)
	}
	firstUntil := client.BanUntil

	// Second violation: 2x base duration, count carried over.
	client, err = registry.RecordViolation(ctx, "203.0.113.9", "Mozilla/5.0", "dev-1", "automation detected")
	if err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}
	if client.ViolationCount != 2 {
		t.Errorf("ViolationCount = %d, want 2", client.ViolationCount)
	}
	if !client.BanUntil.After(firstUntil) {
		t.Errorf("second BanUntil %v not after first %v", client.BanUntil, firstUntil)
	}

	wantDur := 2 * time.Hour
	gotDur := time.Until(client.BanUntil)
	if gotDur < wantDur-time.Minute || gotDur > wantDur+time.Minute {
		t.Errorf("ban duration ~%v, want ~%v", gotDur, wantDur)
	}
}

func TestRecordViolationDurationCap(t *testing.T) {
	cfg := defaultTestConfig()
	registry := testRegistry(t, cfg)
	ctx := context.Background()

	var until time.Time
	for i := 0; i < 7; i++ {
		client, err := registry.RecordViolation(ctx, "203.0.113.9", "", "", "test")
		if err != nil {
			t.Fatalf("RecordViolation() failed: %v", err)
		}
		until = client.BanUntil
	}

	// Seventh violation still capped at 5x base.
	wantDur := 5 * time.Hour
	gotDur := time.Until(until)
	if gotDur < wantDur-time.Minute || gotDur > wantDur+time.Minute {
		t.Errorf("capped ban duration ~%v, want ~%v", gotDur, wantDur)
	}
}

func TestPermanentThreshold(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.PermanentThreshold = 3
	registry := testRegistry(t, cfg)
	ctx := context.Background()

	var client *models.BannedClient
	for i := 0; i < 3; i++ {
		c, err := registry.RecordViolation(ctx, "203.0.113.9", "", "", "test")
		if err != nil {
			t.Fatalf("RecordViolation() failed: %v", err)
		}
		client = c
	}

	if !client.IsPermanent {
		t.Errorf("ban not permanent after %d violations", client.ViolationCount)
	}
}

func TestIsBannedByIPAndDeviceKey(t *testing.T) {
	registry := testRegistry(t, defaultTestConfig())
	ctx := context.Background()

	_, err := registry.RecordViolation(ctx, "203.0.113.9", "Mozilla/5.0", "dev-abc", "test")
	if err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}

	tests := []struct {
		name      string
		ip        string
		deviceKey string
		want      bool
	}{
		{"by ip", "203.0.113.9", "", true},
		{"by device key", "", "dev-abc", true},
		{"by rotated ip, same device", "198.51.100.4", "dev-abc", true},
		{"unknown client", "198.51.100.4", "dev-zzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := registry.IsBanned(ctx, tt.ip, tt.deviceKey)
			if err != nil {
				t.Fatalf("IsBanned() failed: %v", err)
			}
			if (client != nil) != tt.want {
				t.Errorf("IsBanned(%q, %q) = %v, want banned=%v", tt.ip, tt.deviceKey, client, tt.want)
			}
		})
	}
}

func TestLift(t *testing.T) {
	registry := testRegistry(t, defaultTestConfig())
	ctx := context.Background()

	if _, err := registry.RecordViolation(ctx, "203.0.113.9", "", "dev-1", "test"); err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}

	if err := registry.Lift(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("Lift() failed: %v", err)
	}

	client, err := registry.IsBanned(ctx, "203.0.113.9", "dev-1")
	if err != nil {
		t.Fatalf("IsBanned() failed: %v", err)
	}
	if client != nil {
		t.Error("client still banned after Lift")
	}

	if err := registry.Lift(ctx, "203.0.113.9"); err != ErrNotBanned {
		t.Errorf("second Lift() = %v, want ErrNotBanned", err)
	}
}

func TestRecordValidationFailureEscalatesAtLimit(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.FailureLimit = 3
	registry := testRegistry(t, cfg)
	ctx := context.Background()

	// First two failures only count.
	for i := 0; i < 2; i++ {
		client, err := registry.RecordValidationFailure(ctx, "203.0.113.9", "Mozilla/5.0", "")
		if err != nil {
			t.Fatalf("RecordValidationFailure() failed: %v", err)
		}
		if client != nil {
			t.Fatalf("failure %d produced a ban, want nil", i+1)
		}
	}

	// Third failure crosses the limit.
	client, err := registry.RecordValidationFailure(ctx, "203.0.113.9", "Mozilla/5.0", "")
	if err != nil {
		t.Fatalf("RecordValidationFailure() failed: %v", err)
	}
	if client == nil {
		t.Fatal("third failure did not produce a ban")
	}
	if client.ViolationCount != 1 {
		t.Errorf("ViolationCount = %d, want 1", client.ViolationCount)
	}

	// Window reset: next failure counts from zero again.
	next, err := registry.RecordValidationFailure(ctx, "203.0.113.9", "Mozilla/5.0", "")
	if err != nil {
		t.Fatalf("RecordValidationFailure() failed: %v", err)
	}
	if next != nil {
		t.Error("failure immediately after escalation produced a ban, want counting restart")
	}
}

func TestListAndImport(t *testing.T) {
	registry := testRegistry(t, defaultTestConfig())
	ctx := context.Background()

	if _, err := registry.RecordViolation(ctx, "203.0.113.9", "", "", "test"); err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}

	until := time.Now().Add(time.Hour).UTC()
	imported, err := registry.Import(ctx, []models.BannedClient{
		{IPAddress: "198.51.100.4", ViolationCount: 3, BanUntil: until, BanReason: "imported"},
		{IPAddress: "203.0.113.9", ViolationCount: 0, BanUntil: until}, // lower count than existing, skipped
		{ViolationCount: 1, BanUntil: until},                          // no IP, skipped
	})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if imported != 1 {
		t.Errorf("Import() = %d, want 1", imported)
	}

	clients, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(clients) != 2 {
		t.Errorf("List() returned %d records, want 2", len(clients))
	}
}
