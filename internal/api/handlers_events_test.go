// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/invigilo/internal/models"
)

// seedEvents saves five events in chronological order, one minute
// apart, so reverse insertion order matches reverse timestamp order.
func seedEvents(t *testing.T, env *testEnv) time.Time {
	t.Helper()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	series := []models.SecurityEvent{
		{ID: "evt-1", SessionID: "sess-1", ExamID: "midterm-01", StudentID: "alice", Type: models.EventTabSwitch, Timestamp: base},
		{ID: "evt-2", SessionID: "sess-1", ExamID: "midterm-01", StudentID: "alice", Type: models.EventMouseAnomaly, RiskScore: 80, IsSuspicious: true, Timestamp: base.Add(1 * time.Minute)},
		{ID: "evt-3", SessionID: "sess-2", ExamID: "midterm-01", StudentID: "bob", Type: models.EventKeyboardAnomaly, RiskScore: 65, IsSuspicious: true, Timestamp: base.Add(2 * time.Minute)},
		{ID: "evt-4", SessionID: "sess-2", ExamID: "midterm-01", StudentID: "bob", Type: models.EventWindowBlur, Timestamp: base.Add(3 * time.Minute)},
		{ID: "evt-5", SessionID: "sess-1", ExamID: "midterm-01", StudentID: "alice", Type: models.EventSessionSuspended, RiskScore: 95, IsSuspicious: true, Timestamp: base.Add(4 * time.Minute)},
	}

	for i := range series {
		if err := env.events.Save(context.Background(), &series[i]); err != nil {
			t.Fatalf("Save(%s) failed: %v", series[i].ID, err)
		}
	}
	return base
}

func queryEvents(t *testing.T, env *testEnv, query string) []any {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil)
	asAdmin(req)

	resp := requireSuccess(t, env.do(req), http.StatusOK)
	list, _ := resp.Data.([]any)
	return list
}

func eventIDs(list []any) []string {
	ids := make([]string, 0, len(list))
	for _, entry := range list {
		event, _ := entry.(map[string]any)
		id, _ := event["id"].(string)
		ids = append(ids, id)
	}
	return ids
}

func TestQueryEventsNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	list := queryEvents(t, env, "")
	if len(list) != 5 {
		t.Fatalf("events = %d, want 5", len(list))
	}

	ids := eventIDs(list)
	want := []string{"evt-5", "evt-4", "evt-3", "evt-2", "evt-1"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestQueryEventsFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"by student", "?student_id=alice", []string{"evt-5", "evt-2", "evt-1"}},
		{"by session", "?session_id=sess-2", []string{"evt-4", "evt-3"}},
		{"by type", "?type=mouse_anomaly", []string{"evt-2"}},
		{"suspicious only", "?suspicious_only=true", []string{"evt-5", "evt-3", "evt-2"}},
		{"combined", "?student_id=alice&suspicious_only=true", []string{"evt-5", "evt-2"}},
		{"no match", "?student_id=nobody", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ids := eventIDs(queryEvents(t, env, tc.query))
			if len(ids) != len(tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
			for i := range tc.want {
				if ids[i] != tc.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestQueryEventsTimeBounds(t *testing.T) {
	env := newTestEnv(t, nil)
	base := seedEvents(t, env)

	mid := base.Add(2 * time.Minute).Format(time.RFC3339)

	since := eventIDs(queryEvents(t, env, "?since="+mid))
	if len(since) != 3 || since[len(since)-1] != "evt-3" {
		t.Errorf("since bound ids = %v, want evt-5..evt-3 inclusive", since)
	}

	until := eventIDs(queryEvents(t, env, "?until="+mid))
	if len(until) != 3 || until[0] != "evt-3" {
		t.Errorf("until bound ids = %v, want evt-3..evt-1 inclusive", until)
	}

	window := eventIDs(queryEvents(t, env, "?since="+mid+"&until="+mid))
	if len(window) != 1 || window[0] != "evt-3" {
		t.Errorf("window ids = %v, want exactly evt-3", window)
	}
}

func TestQueryEventsPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	page1 := eventIDs(queryEvents(t, env, "?limit=2"))
	if len(page1) != 2 || page1[0] != "evt-5" || page1[1] != "evt-4" {
		t.Fatalf("page1 = %v, want [evt-5 evt-4]", page1)
	}

	page2 := eventIDs(queryEvents(t, env, "?limit=2&offset=2"))
	if len(page2) != 2 || page2[0] != "evt-3" || page2[1] != "evt-2" {
		t.Fatalf("page2 = %v, want [evt-3 evt-2]", page2)
	}

	beyond := queryEvents(t, env, "?offset=50")
	if len(beyond) != 0 {
		t.Fatalf("offset past end returned %d events", len(beyond))
	}
}

func TestCountEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	seedEvents(t, env)

	count := func(query string) float64 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events/count"+query, nil)
		asAdmin(req)
		data := dataMap(t, requireSuccess(t, env.do(req), http.StatusOK))
		n, _ := data["count"].(float64)
		return n
	}

	if n := count(""); n != 5 {
		t.Errorf("count = %v, want 5", n)
	}
	if n := count("?student_id=bob"); n != 2 {
		t.Errorf("count for bob = %v, want 2", n)
	}
	// Count ignores pagination.
	if n := count("?limit=1"); n != 5 {
		t.Errorf("count with limit = %v, want 5", n)
	}
}

func TestEventFilterFromQuery(t *testing.T) {
	cases := []struct {
		name  string
		query string
		check func(t *testing.T, f models.EventFilter)
	}{
		{
			name:  "defaults",
			query: "",
			check: func(t *testing.T, f models.EventFilter) {
				if f.Limit != defaultEventLimit {
					t.Errorf("Limit = %d, want %d", f.Limit, defaultEventLimit)
				}
				if f.Offset != 0 {
					t.Errorf("Offset = %d, want 0", f.Offset)
				}
				if !f.Since.IsZero() || !f.Until.IsZero() {
					t.Error("time bounds should be zero when absent")
				}
			},
		},
		{
			name:  "limit capped",
			query: "?limit=99999",
			check: func(t *testing.T, f models.EventFilter) {
				if f.Limit != maxEventLimit {
					t.Errorf("Limit = %d, want %d", f.Limit, maxEventLimit)
				}
			},
		},
		{
			name:  "negative values fall back",
			query: "?limit=-5&offset=-3",
			check: func(t *testing.T, f models.EventFilter) {
				if f.Limit != defaultEventLimit {
					t.Errorf("Limit = %d, want %d", f.Limit, defaultEventLimit)
				}
				if f.Offset != 0 {
					t.Errorf("Offset = %d, want 0", f.Offset)
				}
			},
		},
		{
			name:  "unparseable time ignored",
			query: "?since=yesterday",
			check: func(t *testing.T, f models.EventFilter) {
				if !f.Since.IsZero() {
					t.Errorf("Since = %v, want zero", f.Since)
				}
			},
		},
		{
			name:  "fields pass through",
			query: "?student_id=alice&session_id=sess-1&type=tab_switch&suspicious_only=true",
			check: func(t *testing.T, f models.EventFilter) {
				if f.StudentID != "alice" || f.SessionID != "sess-1" {
					t.Errorf("identifiers not carried: %+v", f)
				}
				if f.Type != models.EventTabSwitch {
					t.Errorf("Type = %q, want %q", f.Type, models.EventTabSwitch)
				}
				if !f.SuspiciousOnly {
					t.Error("SuspiciousOnly = false, want true")
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/events%s", tc.query), nil)
			tc.check(t, eventFilterFromQuery(req))
		})
	}
}
