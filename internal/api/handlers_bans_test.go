// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/invigilo/internal/models"
)

func TestBanClient(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans",
		jsonBody(t, models.BanClientRequest{
			IPAddress: "203.0.113.9",
			UserAgent: "HeadlessChrome/120.0",
			Reason:    "automation detected",
		}))
	asAdmin(req)

	rec := env.do(req)
	resp := requireSuccess(t, rec, http.StatusCreated)
	data := dataMap(t, resp)

	if data["ip_address"] != "203.0.113.9" {
		t.Errorf("ip_address = %v, want 203.0.113.9", data["ip_address"])
	}
	if count, _ := data["violation_count"].(float64); count != 1 {
		t.Errorf("violation_count = %v, want 1", data["violation_count"])
	}

	banned, err := env.bans.IsBanned(context.Background(), "203.0.113.9", "")
	if err != nil {
		t.Fatalf("IsBanned() failed: %v", err)
	}
	if banned == nil {
		t.Fatal("ban not in force after BanClient")
	}
}

func TestBanClientInvalidIP(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans",
		jsonBody(t, models.BanClientRequest{
			IPAddress: "not-an-address",
			Reason:    "test",
		}))
	asAdmin(req)

	resp := requireError(t, env.do(req), http.StatusBadRequest, "VALIDATION_ERROR")
	if !strings.Contains(resp.Error.Message, "IPAddress") {
		t.Errorf("error message = %q, want mention of IPAddress", resp.Error.Message)
	}
}

func TestBanClientEscalatesDuration(t *testing.T) {
	env := newTestEnv(t, nil)

	ban := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bans",
			jsonBody(t, models.BanClientRequest{IPAddress: "203.0.113.9", Reason: "repeat"}))
		asAdmin(req)
		return dataMap(t, requireSuccess(t, env.do(req), http.StatusCreated))
	}

	first := ban()
	second := ban()

	firstUntil, err := time.Parse(time.RFC3339, first["ban_until"].(string))
	if err != nil {
		t.Fatalf("first ban_until unparseable: %v", err)
	}
	secondUntil, err := time.Parse(time.RFC3339, second["ban_until"].(string))
	if err != nil {
		t.Fatalf("second ban_until unparseable: %v", err)
	}
	if !secondUntil.After(firstUntil) {
		t.Errorf("second ban_until %v not after first %v", secondUntil, firstUntil)
	}
}

func TestListBans(t *testing.T) {
	env := newTestEnv(t, nil)

	empty := httptest.NewRequest(http.MethodGet, "/api/v1/bans", nil)
	asAdmin(empty)
	resp := requireSuccess(t, env.do(empty), http.StatusOK)
	if list, _ := resp.Data.([]any); len(list) != 0 {
		t.Fatalf("bans = %d, want 0", len(list))
	}

	if _, err := env.bans.RecordViolation(context.Background(), "203.0.113.9", "", "", "test"); err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bans", nil)
	asAdmin(req)
	resp = requireSuccess(t, env.do(req), http.StatusOK)
	list, _ := resp.Data.([]any)
	if len(list) != 1 {
		t.Fatalf("bans = %d, want 1", len(list))
	}
}

func TestLiftBan(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.bans.RecordViolation(ctx, "203.0.113.9", "", "", "test"); err != nil {
		t.Fatalf("RecordViolation() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/bans/203.0.113.9", nil)
	asAdmin(req)

	resp := requireSuccess(t, env.do(req), http.StatusOK)
	data := dataMap(t, resp)
	if data["lifted"] != true {
		t.Errorf("lifted = %v, want true", data["lifted"])
	}

	banned, err := env.bans.IsBanned(ctx, "203.0.113.9", "")
	if err != nil {
		t.Fatalf("IsBanned() failed: %v", err)
	}
	if banned != nil {
		t.Error("ban still in force after lift")
	}
}

func TestLiftBanNotBanned(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/bans/198.51.100.200", nil)
	asAdmin(req)

	requireError(t, env.do(req), http.StatusNotFound, "NOT_FOUND")
}

func TestImportBans(t *testing.T) {
	env := newTestEnv(t, nil)

	records := []models.BannedClient{
		{
			IPAddress:      "203.0.113.9",
			BanReason:      "imported from sibling deployment",
			ViolationCount: 3,
			BanUntil:       time.Now().Add(24 * time.Hour).UTC(),
		},
		{
			IPAddress:      "203.0.113.10",
			BanReason:      "imported permanent ban",
			ViolationCount: 12,
			IsPermanent:    true,
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans/import", jsonBody(t, records))
	asAdmin(req)

	resp := requireSuccess(t, env.do(req), http.StatusOK)
	data := dataMap(t, resp)
	if imported, _ := data["imported"].(float64); imported != 2 {
		t.Errorf("imported = %v, want 2", data["imported"])
	}
	if received, _ := data["received"].(float64); received != 2 {
		t.Errorf("received = %v, want 2", data["received"])
	}

	banned, err := env.bans.IsBanned(context.Background(), "203.0.113.10", "")
	if err != nil {
		t.Fatalf("IsBanned() failed: %v", err)
	}
	if banned == nil || !banned.IsPermanent {
		t.Error("imported permanent ban not in force")
	}
}

func TestImportBansSkipsWeakerRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.bans.RecordViolation(ctx, "203.0.113.9", "", "", "local violation"); err != nil {
			t.Fatalf("RecordViolation() failed: %v", err)
		}
	}

	weaker := []models.BannedClient{{
		IPAddress:      "203.0.113.9",
		BanReason:      "stale import",
		ViolationCount: 1,
		BanUntil:       time.Now().Add(time.Minute).UTC(),
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans/import", jsonBody(t, weaker))
	asAdmin(req)

	resp := requireSuccess(t, env.do(req), http.StatusOK)
	data := dataMap(t, resp)
	if imported, _ := data["imported"].(float64); imported != 0 {
		t.Errorf("imported = %v, want 0 for a weaker record", data["imported"])
	}

	banned, err := env.bans.IsBanned(ctx, "203.0.113.9", "")
	if err != nil {
		t.Fatalf("IsBanned() failed: %v", err)
	}
	if banned == nil || banned.ViolationCount != 3 {
		t.Errorf("existing record weakened: %+v", banned)
	}
}

func TestImportBansMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bans/import",
		strings.NewReader(`{"not":"an array"`))
	asAdmin(req)

	requireError(t, env.do(req), http.StatusBadRequest, "VALIDATION_ERROR")
}
