// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package risk

import (
	"math"
	"testing"
	"time"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/models"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		WindowSize: 20,
		SourceWeights: map[string]float64{
			"validator": 1.5,
			"mouse":     1.0,
			"keyboard":  1.0,
			"answers":   1.2,
			"manual":    2.0,
		},
		Thresholds: config.RiskThresholds{
			Suspicious:  40,
			HighRisk:    70,
			Critical:    90,
			AutoSuspend: 95,
		},
		AlertFloor:            70,
		AlertWindow:           5 * time.Minute,
		ConsecutiveAlertLimit: 3,
	}
}

// testAggregator returns an aggregator with a seeded session and a
// controllable clock.
func testAggregator(cfg config.RiskConfig) (*Aggregator, *time.Time) {
	a := NewAggregator(cfg)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	a.StartSession("sess-1", "exam-1", "alice")
	return a, &now
}

func factor(source models.RiskSource, score float64) models.RiskFactor {
	return models.RiskFactor{Source: source, Score: score}
}

func TestAddFactorComputesWeightedAverage(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	a.AddFactor("sess-1", factor(models.RiskSourceValidator, 80))
	snap, ok := a.AddFactor("sess-1", factor(models.RiskSourceMouse, 40))
	if !ok {
		t.Fatal("AddFactor returned ok=false for known session")
	}

	// (80*1.5 + 40*1.0) / 2.5 = 64
	if math.Abs(snap.OverallRisk-64) > 1e-9 {
		t.Errorf("OverallRisk = %.4f, want 64", snap.OverallRisk)
	}
	if snap.Bucket != models.BucketSuspicious {
		t.Errorf("Bucket = %s, want suspicious", snap.Bucket)
	}
	if len(snap.Factors) != 2 {
		t.Errorf("Factors = %d, want 2", len(snap.Factors))
	}
}

func TestAddFactorUsesUnitWeightForUnknownSource(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	snap, _ := a.AddFactor("sess-1", factor(models.RiskSource("webcam"), 60))
	if math.Abs(snap.OverallRisk-60) > 1e-9 {
		t.Errorf("OverallRisk = %.4f, want 60", snap.OverallRisk)
	}
}

func TestWindowDropsOldestFactors(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 3
	a, _ := testAggregator(cfg)

	// Two spikes pushed out by three calm factors.
	for _, score := range []float64{100, 100, 10, 10, 10} {
		a.AddFactor("sess-1", factor(models.RiskSourceMouse, score))
	}

	snap, _ := a.Snapshot("sess-1")
	if math.Abs(snap.OverallRisk-10) > 1e-9 {
		t.Errorf("OverallRisk = %.4f, want 10 after spikes left the window", snap.OverallRisk)
	}
	if len(snap.Factors) != 3 {
		t.Errorf("Factors = %d, want 3", len(snap.Factors))
	}
}

func TestAddFactorClampsScores(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	snap, _ := a.AddFactor("sess-1", factor(models.RiskSourceMouse, 250))
	if snap.OverallRisk != 100 {
		t.Errorf("OverallRisk = %.4f, want clamped 100", snap.OverallRisk)
	}
	a.EndSession("sess-1")
	a.StartSession("sess-1", "exam-1", "alice")
	snap, _ = a.AddFactor("sess-1", factor(models.RiskSourceMouse, -20))
	if snap.OverallRisk != 0 {
		t.Errorf("OverallRisk = %.4f, want clamped 0", snap.OverallRisk)
	}
}

func TestBucketTransitionsNotifyListeners(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 1
	a, _ := testAggregator(cfg)

	var changes []BucketChange
	a.OnBucketChange(func(c BucketChange) { changes = append(changes, c) })

	for _, score := range []float64{10, 50, 75, 92, 96} {
		a.AddFactor("sess-1", factor(models.RiskSourceMouse, score))
	}

	want := []struct {
		from, to models.RiskBucket
	}{
		{models.BucketNormal, models.BucketSuspicious},
		{models.BucketSuspicious, models.BucketHighRisk},
		{models.BucketHighRisk, models.BucketCritical},
		{models.BucketCritical, models.BucketAutoSuspend},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d transitions, want %d: %+v", len(changes), len(want), changes)
	}
	for i, w := range want {
		if changes[i].From != w.from || changes[i].To != w.to {
			t.Errorf("transition %d = %s->%s, want %s->%s", i, changes[i].From, changes[i].To, w.from, w.to)
		}
	}
	if changes[0].StudentID != "alice" || changes[0].ExamID != "exam-1" {
		t.Errorf("transition carries wrong identity: %+v", changes[0])
	}
}

func TestEscalatesOnEnteringCriticalBuckets(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 1
	a, _ := testAggregator(cfg)

	var escalations []Escalation
	a.OnEscalation(func(e Escalation) { escalations = append(escalations, e) })

	for _, score := range []float64{50, 92, 96} {
		a.AddFactor("sess-1", factor(models.RiskSourceMouse, score))
	}

	var bucketTriggers []Escalation
	for _, e := range escalations {
		if e.Trigger == TriggerBucket {
			bucketTriggers = append(bucketTriggers, e)
		}
	}
	if len(bucketTriggers) != 2 {
		t.Fatalf("got %d bucket escalations, want 2 (critical, auto_suspend): %+v", len(bucketTriggers), bucketTriggers)
	}
	if bucketTriggers[0].Bucket != models.BucketCritical {
		t.Errorf("first escalation bucket = %s, want critical", bucketTriggers[0].Bucket)
	}
	if bucketTriggers[1].Bucket != models.BucketAutoSuspend {
		t.Errorf("second escalation bucket = %s, want auto_suspend", bucketTriggers[1].Bucket)
	}
}

func TestNoBucketEscalationWithoutEntering(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 1
	cfg.AlertFloor = 99 // keep the consecutive trigger out of this test
	a, _ := testAggregator(cfg)

	var escalations []Escalation
	a.OnEscalation(func(e Escalation) { escalations = append(escalations, e) })

	// Stays inside critical after entering once.
	for _, score := range []float64{92, 93, 91} {
		a.AddFactor("sess-1", factor(models.RiskSourceMouse, score))
	}

	if len(escalations) != 1 {
		t.Errorf("got %d escalations, want 1 for a single entry into critical", len(escalations))
	}
}

func TestConsecutiveAlertsCrossingEscalatesOnce(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 1
	a, now := testAggregator(cfg)

	var escalations []Escalation
	a.OnEscalation(func(e Escalation) { escalations = append(escalations, e) })

	// Four high factors inside the alert window. All stay in high_risk,
	// so only the consecutive trigger can fire.
	for i := 0; i < 4; i++ {
		a.AddFactor("sess-1", factor(models.RiskSourceKeyboard, 75))
		*now = now.Add(time.Minute)
	}

	var consecutive []Escalation
	for _, e := range escalations {
		if e.Trigger == TriggerConsecutiveAlerts {
			consecutive = append(consecutive, e)
		}
	}
	if len(consecutive) != 1 {
		t.Fatalf("got %d consecutive escalations, want 1 (crossing only): %+v", len(consecutive), consecutive)
	}
	if consecutive[0].ConsecutiveAlerts != 3 {
		t.Errorf("ConsecutiveAlerts = %d, want 3", consecutive[0].ConsecutiveAlerts)
	}

	snap, _ := a.Snapshot("sess-1")
	if snap.ConsecutiveAlerts != 4 {
		t.Errorf("counter = %d, want 4", snap.ConsecutiveAlerts)
	}
}

func TestConsecutiveAlertsResetOutsideWindow(t *testing.T) {
	cfg := testRiskConfig()
	cfg.WindowSize = 1
	a, now := testAggregator(cfg)

	a.AddFactor("sess-1", factor(models.RiskSourceKeyboard, 80))
	a.AddFactor("sess-1", factor(models.RiskSourceKeyboard, 80))

	snap, _ := a.Snapshot("sess-1")
	if snap.ConsecutiveAlerts != 2 {
		t.Fatalf("counter = %d, want 2", snap.ConsecutiveAlerts)
	}

	// The next high factor lands after the window lapses.
	*now = now.Add(6 * time.Minute)
	a.AddFactor("sess-1", factor(models.RiskSourceKeyboard, 80))

	snap, _ = a.Snapshot("sess-1")
	if snap.ConsecutiveAlerts != 1 {
		t.Errorf("counter = %d, want reset to 1", snap.ConsecutiveAlerts)
	}
}

func TestAddFactorDropsUnknownSession(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	if _, ok := a.AddFactor("ghost", factor(models.RiskSourceMouse, 50)); ok {
		t.Error("factor for unknown session must be dropped")
	}
}

func TestEndSessionDiscardsAssessment(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	a.AddFactor("sess-1", factor(models.RiskSourceMouse, 50))
	a.EndSession("sess-1")

	if _, ok := a.Snapshot("sess-1"); ok {
		t.Error("snapshot survived EndSession")
	}
	if _, ok := a.AddFactor("sess-1", factor(models.RiskSourceMouse, 50)); ok {
		t.Error("ended session still accepts factors")
	}
}

func TestSnapshotBeforeFirstFactor(t *testing.T) {
	a, _ := testAggregator(testRiskConfig())

	snap, ok := a.Snapshot("sess-1")
	if !ok {
		t.Fatal("Snapshot returned ok=false for started session")
	}
	if snap.Bucket != models.BucketNormal || snap.OverallRisk != 0 {
		t.Errorf("fresh session = %s/%.1f, want normal/0", snap.Bucket, snap.OverallRisk)
	}
}
