// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/models"
)

func TestPipelineRoutesByKind(t *testing.T) {
	pipeline := NewPipeline()
	pipeline.Register(NewMouseProcessor(testMouseConfig()))
	pipeline.Register(NewKeyboardProcessor(testKeyboardConfig()))
	pipeline.Register(NewAnswerProcessor(testAnswersConfig()))

	if got := len(pipeline.Kinds()); got != 3 {
		t.Fatalf("Kinds() returned %d entries, want 3", got)
	}

	payload := keyPayload(t, []models.KeyEvent{{Key: "c", Ctrl: true, TimestampMS: 1000}})
	result, ok := pipeline.Process(KindKeyboard, "sess-1", payload)
	if !ok {
		t.Fatal("keyboard processor not reached")
	}
	if result.RiskScore != 35 {
		t.Errorf("score = %.1f, want 35", result.RiskScore)
	}

	if _, ok := pipeline.Process(Kind("gaze"), "sess-1", payload); ok {
		t.Error("unknown kind must not route")
	}
}

func TestPipelineSkipsDisabledProcessor(t *testing.T) {
	pipeline := NewPipeline()
	mouse := NewMouseProcessor(testMouseConfig())
	pipeline.Register(mouse)

	mouse.SetEnabled(false)

	if _, ok := pipeline.Process(KindMouse, "sess-1", json.RawMessage(`[]`)); ok {
		t.Error("disabled processor must not process")
	}

	mouse.SetEnabled(true)
	if _, ok := pipeline.Process(KindMouse, "sess-1", json.RawMessage(`[]`)); !ok {
		t.Error("re-enabled processor must process")
	}
}

func TestPipelineEndSessionClearsEveryProcessor(t *testing.T) {
	pipeline := NewPipeline()
	mouse := NewMouseProcessor(testMouseConfig())
	pipeline.Register(mouse)

	line := make([]models.MouseEvent, 10)
	for i := range line {
		line[i] = models.MouseEvent{X: float64(i) * 10, Y: float64(i) * 10, TimestampMS: 1000 + float64(i)*20}
	}
	if r, _ := pipeline.Process(KindMouse, "sess-1", mousePayload(t, line)); r.RiskScore == 0 {
		t.Fatal("expected the line to flag")
	}

	pipeline.EndSession("sess-1")

	if r, _ := pipeline.Process(KindMouse, "sess-1", mousePayload(t, line[:3])); r.RiskScore != 0 {
		t.Errorf("window survived EndSession, scored %.1f", r.RiskScore)
	}
}

func TestKindRiskSource(t *testing.T) {
	tests := []struct {
		kind Kind
		want models.RiskSource
	}{
		{KindMouse, models.RiskSourceMouse},
		{KindKeyboard, models.RiskSourceKeyboard},
		{KindAnswers, models.RiskSourceAnswers},
	}
	for _, tt := range tests {
		if got := tt.kind.RiskSource(); got != tt.want {
			t.Errorf("%s.RiskSource() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestResultAddClampsAtHundred(t *testing.T) {
	var r Result
	r.add("a", 60, "")
	r.add("b", 70, "")
	if r.RiskScore != 100 {
		t.Errorf("RiskScore = %.1f, want clamped 100", r.RiskScore)
	}
	if len(r.Anomalies) != 2 || len(r.Patterns) != 2 {
		t.Errorf("anomalies/patterns = %d/%d, want 2/2", len(r.Anomalies), len(r.Patterns))
	}
	if !r.Suspicious() {
		t.Error("Suspicious() = false with two anomalies")
	}
}
