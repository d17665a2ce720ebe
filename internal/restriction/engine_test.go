// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package restriction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

func counterValue(counter prometheus.Counter) float64 {
	var m io_prometheus_client.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

type captureRecorder struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (c *captureRecorder) Record(event *models.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testEngineConfig() config.RestrictionConfig {
	return config.RestrictionConfig{
		Ladders: map[string][]time.Duration{
			"exam_ban":           {2 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			"account_suspension": {24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			"ip_ban":             {6 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
			"global_ban":         {7 * 24 * time.Hour, 30 * 24 * time.Hour},
		},
		EscalationCap:    5,
		HistoryRetention: 90 * 24 * time.Hour,
	}
}

// testEngine builds an engine over the memory store with a controllable
// clock.
func testEngine(t *testing.T, cfg config.RestrictionConfig) (*Engine, *MemoryStore, *time.Time) {
	t.Helper()

	store := NewMemoryStore()
	recorder := &captureRecorder{}
	engine := NewEngine(store, cfg, recorder)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, store, &now
}

func violation(reason string) models.Violation {
	return models.Violation{
		Reason:    reason,
		SessionID: "sess-1",
		ExamID:    "exam-1",
		RiskScore: 90,
	}
}

func TestImposeClimbsDurationLadder(t *testing.T) {
	engine, store, now := testEngine(t, testEngineConfig())
	ctx := context.Background()

	steps := []struct {
		wantCount int
		wantDur   time.Duration
	}{
		{1, 2 * time.Hour},
		{2, 24 * time.Hour},
		{3, 7 * 24 * time.Hour},
		{4, 30 * 24 * time.Hour},
		{5, 30 * 24 * time.Hour}, // last rung repeats
	}

	var firstID string
	for i, step := range steps {
		r, err := engine.Impose(ctx, "alice", models.RestrictionExamBan, "exam-1", violation("cheating"))
		if err != nil {
			t.Fatalf("Impose %d: %v", i+1, err)
		}
		if r.ViolationCount != step.wantCount {
			t.Errorf("step %d: ViolationCount = %d, want %d", i+1, r.ViolationCount, step.wantCount)
		}
		wantUntil := now.Add(step.wantDur)
		if !r.RestrictedUntil.Equal(wantUntil) {
			t.Errorf("step %d: RestrictedUntil = %v, want %v", i+1, r.RestrictedUntil, wantUntil)
		}
		if len(r.ViolationHistory) != step.wantCount {
			t.Errorf("step %d: history length = %d, want %d", i+1, len(r.ViolationHistory), step.wantCount)
		}
		if i == 0 {
			firstID = r.ID
		} else if r.ID != firstID {
			t.Errorf("step %d: record ID changed, duplicate created", i+1)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("store holds %d records, want 1", len(all))
	}
}

func TestImposePastCapConvertsToPermanentGlobalBan(t *testing.T) {
	cfg := testEngineConfig()
	cfg.EscalationCap = 2
	engine, store, _ := testEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.Impose(ctx, "mallory", models.RestrictionExamBan, "exam-1", violation("cheating")); err != nil {
			t.Fatalf("Impose %d: %v", i+1, err)
		}
	}

	r, err := engine.Impose(ctx, "mallory", models.RestrictionExamBan, "exam-1", violation("cheating again"))
	if err != nil {
		t.Fatalf("Impose past cap: %v", err)
	}
	if r.Type != models.RestrictionGlobalBan {
		t.Fatalf("Type = %s, want global_ban", r.Type)
	}
	if !r.IsPermanent {
		t.Error("converted restriction must be permanent")
	}
	if r.Scope != models.ScopeGlobal {
		t.Errorf("Scope = %q, want global", r.Scope)
	}

	// The exam record keeps its history; the global record enforces.
	examKey := models.RestrictionKey("mallory", models.RestrictionExamBan, "exam-1")
	exam, err := store.GetByKey(ctx, examKey)
	if err != nil {
		t.Fatalf("GetByKey exam record: %v", err)
	}
	if exam.ViolationCount != 3 {
		t.Errorf("exam record count = %d, want 3", exam.ViolationCount)
	}

	decision := engine.CanProceed(ctx, "mallory", "other-exam", "")
	if decision.Allowed {
		t.Error("permanent global ban must deny every exam")
	}
	if decision.Restriction == nil || decision.Restriction.Type != models.RestrictionGlobalBan {
		t.Error("denial should cite the global ban")
	}
}

func TestImposeValidatesArguments(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	tests := []struct {
		name    string
		student string
		rType   models.RestrictionType
		scope   string
	}{
		{"missing student", "", models.RestrictionExamBan, "exam-1"},
		{"unknown type", "alice", models.RestrictionType("timeout"), "exam-1"},
		{"exam ban without scope", "alice", models.RestrictionExamBan, ""},
		{"ip ban without scope", "alice", models.RestrictionIPBan, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Impose(ctx, tt.student, tt.rType, tt.scope, violation("x"))
			if !errors.Is(err, ErrInvalidRestriction) {
				t.Errorf("err = %v, want ErrInvalidRestriction", err)
			}
		})
	}
}

func TestImposeForcesGlobalScope(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "alice", models.RestrictionAccountSuspension, "exam-7", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}
	if r.Scope != models.ScopeGlobal {
		t.Errorf("account suspension Scope = %q, want global", r.Scope)
	}
}

func TestCanProceedPriorityOrder(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	// Both an exam ban and an account suspension are active; the exam ban
	// outranks it in check order.
	if _, err := engine.Impose(ctx, "bob", models.RestrictionAccountSuspension, "", violation("x")); err != nil {
		t.Fatalf("Impose suspension: %v", err)
	}
	if _, err := engine.Impose(ctx, "bob", models.RestrictionExamBan, "exam-1", violation("x")); err != nil {
		t.Fatalf("Impose exam ban: %v", err)
	}

	decision := engine.CanProceed(ctx, "bob", "exam-1", "")
	if decision.Allowed {
		t.Fatal("expected denial")
	}
	if decision.Restriction.Type != models.RestrictionExamBan {
		t.Errorf("cited type = %s, want exam_ban", decision.Restriction.Type)
	}

	// A different exam still hits the account suspension.
	decision = engine.CanProceed(ctx, "bob", "exam-2", "")
	if decision.Allowed {
		t.Fatal("expected denial on other exam")
	}
	if decision.Restriction.Type != models.RestrictionAccountSuspension {
		t.Errorf("cited type = %s, want account_suspension", decision.Restriction.Type)
	}
}

func TestCanProceedMatchesIPBanAcrossStudents(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	if _, err := engine.Impose(ctx, "mallory", models.RestrictionIPBan, "203.0.113.9", violation("proxy farm")); err != nil {
		t.Fatalf("Impose: %v", err)
	}

	decision := engine.CanProceed(ctx, "innocent", "exam-1", "203.0.113.9")
	if decision.Allowed {
		t.Fatal("banned address must deny regardless of student")
	}
	if decision.Restriction.Type != models.RestrictionIPBan {
		t.Errorf("cited type = %s, want ip_ban", decision.Restriction.Type)
	}

	decision = engine.CanProceed(ctx, "innocent", "exam-1", "198.51.100.1")
	if !decision.Allowed {
		t.Error("clean address must be allowed")
	}
}

func TestCanProceedIgnoresExpiredAndLifted(t *testing.T) {
	engine, _, now := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "carol", models.RestrictionExamBan, "exam-1", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}

	if d := engine.CanProceed(ctx, "carol", "exam-1", ""); d.Allowed {
		t.Fatal("fresh restriction must deny")
	}

	// Expiry by advancing the clock past the first rung.
	*now = now.Add(3 * time.Hour)
	if d := engine.CanProceed(ctx, "carol", "exam-1", ""); !d.Allowed {
		t.Error("expired restriction must not deny")
	}

	// A permanent record denies until lifted.
	cfg := testEngineConfig()
	cfg.EscalationCap = 1
	engine2, _, _ := testEngine(t, cfg)
	if _, err := engine2.Impose(ctx, "dave", models.RestrictionGlobalBan, "", violation("x")); err != nil {
		t.Fatalf("Impose: %v", err)
	}
	g, err := engine2.Impose(ctx, "dave", models.RestrictionGlobalBan, "", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}
	if !g.IsPermanent {
		t.Fatal("expected permanent record")
	}
	if d := engine2.CanProceed(ctx, "dave", "exam-1", ""); d.Allowed {
		t.Fatal("permanent ban must deny")
	}
	if _, err := engine2.Lift(ctx, g.ID, "admin"); err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if d := engine2.CanProceed(ctx, "dave", "exam-1", ""); !d.Allowed {
		t.Error("lifted ban must not deny")
	}

	_ = r
}

func TestCanProceedFailsOpenOnStoreError(t *testing.T) {
	engine, store, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	store.FailGets = true
	before := counterValue(metrics.FailOpenDecisions)

	decision := engine.CanProceed(ctx, "alice", "exam-1", "203.0.113.9")
	if !decision.Allowed {
		t.Fatal("storage failure must fail open")
	}
	if !decision.FailOpen {
		t.Error("FailOpen flag must be set")
	}
	if decision.Restriction != nil {
		t.Error("fail-open decision must not cite a restriction")
	}
	if after := counterValue(metrics.FailOpenDecisions); after != before+1 {
		t.Errorf("fail-open counter = %v, want %v", after, before+1)
	}
}

func TestAppealLifecycle(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "erin", models.RestrictionAccountSuspension, "", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}

	// Review before submission is illegal.
	if _, err := engine.ReviewAppeal(ctx, r.ID); !errors.Is(err, ErrInvalidAppealTransition) {
		t.Errorf("ReviewAppeal before submit: err = %v, want ErrInvalidAppealTransition", err)
	}

	r, err = engine.SubmitAppeal(ctx, r.ID, "I was using an accessibility tool")
	if err != nil {
		t.Fatalf("SubmitAppeal: %v", err)
	}
	if r.AppealStatus != models.AppealSubmitted {
		t.Errorf("status = %s, want submitted", r.AppealStatus)
	}
	if r.AppealSubmittedAt == nil {
		t.Error("AppealSubmittedAt not set")
	}

	// Double submission is illegal.
	if _, err := engine.SubmitAppeal(ctx, r.ID, "again"); !errors.Is(err, ErrInvalidAppealTransition) {
		t.Errorf("double submit: err = %v, want ErrInvalidAppealTransition", err)
	}

	// Resolving before review is illegal.
	if _, err := engine.ResolveAppeal(ctx, r.ID, true, "", "rev"); !errors.Is(err, ErrInvalidAppealTransition) {
		t.Errorf("resolve before review: err = %v, want ErrInvalidAppealTransition", err)
	}

	if r, err = engine.ReviewAppeal(ctx, r.ID); err != nil {
		t.Fatalf("ReviewAppeal: %v", err)
	}
	if r.AppealStatus != models.AppealUnderReview {
		t.Errorf("status = %s, want under_review", r.AppealStatus)
	}

	r, err = engine.ResolveAppeal(ctx, r.ID, true, "verified with instructor", "reviewer-9")
	if err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if r.AppealStatus != models.AppealApproved {
		t.Errorf("status = %s, want approved", r.AppealStatus)
	}
	if r.LiftedAt == nil || r.LiftedBy != "reviewer-9" {
		t.Error("approved appeal must lift the restriction")
	}

	if d := engine.CanProceed(ctx, "erin", "exam-1", ""); !d.Allowed {
		t.Error("lifted restriction must not deny")
	}
}

func TestRejectedAppealCanBeResubmitted(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "frank", models.RestrictionExamBan, "exam-1", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}

	if _, err = engine.SubmitAppeal(ctx, r.ID, "first try"); err != nil {
		t.Fatalf("SubmitAppeal: %v", err)
	}
	if _, err = engine.ReviewAppeal(ctx, r.ID); err != nil {
		t.Fatalf("ReviewAppeal: %v", err)
	}
	r, err = engine.ResolveAppeal(ctx, r.ID, false, "evidence stands", "reviewer-1")
	if err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if r.AppealStatus != models.AppealRejected {
		t.Fatalf("status = %s, want rejected", r.AppealStatus)
	}
	if r.LiftedAt != nil {
		t.Error("rejected appeal must not lift")
	}

	r, err = engine.SubmitAppeal(ctx, r.ID, "second try with new evidence")
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if r.AppealText != "second try with new evidence" {
		t.Errorf("AppealText = %q, not replaced", r.AppealText)
	}
	if r.AppealResolvedAt != nil {
		t.Error("resubmission must clear the previous resolution")
	}
}

func TestViolationAfterLiftRevivesRecord(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "grace", models.RestrictionExamBan, "exam-1", violation("first"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}
	if _, err = engine.Lift(ctx, r.ID, "admin"); err != nil {
		t.Fatalf("Lift: %v", err)
	}

	r, err = engine.Impose(ctx, "grace", models.RestrictionExamBan, "exam-1", violation("second"))
	if err != nil {
		t.Fatalf("Impose after lift: %v", err)
	}
	if r.LiftedAt != nil {
		t.Error("revived record must clear LiftedAt")
	}
	if r.AppealStatus != models.AppealNone {
		t.Errorf("revived record AppealStatus = %s, want none", r.AppealStatus)
	}
	if r.ViolationCount != 2 {
		t.Errorf("ViolationCount = %d, want 2 (ladder resumes)", r.ViolationCount)
	}

	if d := engine.CanProceed(ctx, "grace", "exam-1", ""); d.Allowed {
		t.Error("revived restriction must deny")
	}
}

func TestLiftIsIdempotent(t *testing.T) {
	engine, _, _ := testEngine(t, testEngineConfig())
	ctx := context.Background()

	r, err := engine.Impose(ctx, "heidi", models.RestrictionExamBan, "exam-1", violation("x"))
	if err != nil {
		t.Fatalf("Impose: %v", err)
	}

	first, err := engine.Lift(ctx, r.ID, "admin-1")
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	second, err := engine.Lift(ctx, r.ID, "admin-2")
	if err != nil {
		t.Fatalf("second Lift: %v", err)
	}
	if !second.LiftedAt.Equal(*first.LiftedAt) || second.LiftedBy != "admin-1" {
		t.Error("second lift must not overwrite the first")
	}
}

func TestImposeEmitsSecurityEvent(t *testing.T) {
	store := NewMemoryStore()
	recorder := &captureRecorder{}
	engine := NewEngine(store, testEngineConfig(), recorder)
	ctx := context.Background()

	if _, err := engine.Impose(ctx, "ivan", models.RestrictionExamBan, "exam-1", violation("x")); err != nil {
		t.Fatalf("Impose: %v", err)
	}

	if recorder.count() != 1 {
		t.Fatalf("recorded %d events, want 1", recorder.count())
	}
	event := recorder.events[0]
	if event.Type != models.EventRestrictionImposed {
		t.Errorf("event type = %s, want restriction_imposed", event.Type)
	}
	if event.StudentID != "ivan" {
		t.Errorf("event student = %q, want ivan", event.StudentID)
	}
	if !event.IsSuspicious {
		t.Error("restriction event must be suspicious")
	}
}
