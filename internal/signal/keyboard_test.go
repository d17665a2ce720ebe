// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"slices"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/models"
)

func testKeyboardConfig() config.KeyboardConfig {
	return config.KeyboardConfig{
		WindowSize:      50,
		MinSamples:      8,
		CVFloor:         0.12,
		RapidCount:      8,
		RapidIntervalMS: 30,
		DeniedCombos: []config.KeyCombo{
			{Keys: "ctrl+c", Severity: 35, Label: "copy"},
			{Keys: "ctrl+shift+i", Severity: 70, Label: "devtools"},
			{Keys: "f12", Severity: 70, Label: "devtools"},
			{Keys: "alt+tab", Severity: 25, Label: "window-switch"},
		},
	}
}

func keyPayload(t *testing.T, events []models.KeyEvent) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

// typedKeys produces keystrokes at the given inter-key gaps.
func typedKeys(keys string, gaps []float64) []models.KeyEvent {
	events := make([]models.KeyEvent, 0, len(keys))
	ts := 1000.0
	for i, r := range keys {
		if i > 0 {
			ts += gaps[(i-1)%len(gaps)]
		}
		events = append(events, models.KeyEvent{Key: string(r), TimestampMS: ts})
	}
	return events
}

func TestKeyboardProcessorAcceptsHumanTyping(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	events := typedKeys("the quick brown fox", []float64{140, 95, 210, 88, 172, 110, 250, 94, 131, 180, 105, 91, 226, 148})
	result := p.Process("sess-1", keyPayload(t, events))
	if result.RiskScore != 0 {
		t.Errorf("human typing scored %.1f with patterns %v, want 0", result.RiskScore, result.Patterns)
	}
}

func TestKeyboardProcessorFlagsRoboticRhythm(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	// Every key exactly 100ms apart, the signature of a typing script.
	events := typedKeys("abcdefghijkl", []float64{100})
	result := p.Process("sess-1", keyPayload(t, events))
	if !slices.Contains(result.Patterns, "robotic_rhythm") {
		t.Errorf("patterns %v missing robotic_rhythm", result.Patterns)
	}
	if result.RiskScore < 70 {
		t.Errorf("constant-interval typing scored %.1f, want >= 70", result.RiskScore)
	}
	if slices.Contains(result.Patterns, "rapid_sequence") {
		t.Error("100ms spacing must not read as a rapid sequence")
	}
}

func TestKeyboardProcessorFlagsRapidSequence(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	events := typedKeys("abcdefghij", []float64{5})
	result := p.Process("sess-1", keyPayload(t, events))
	if !slices.Contains(result.Patterns, "rapid_sequence") {
		t.Errorf("patterns %v missing rapid_sequence", result.Patterns)
	}
}

func TestKeyboardProcessorDeniedCombos(t *testing.T) {
	tests := []struct {
		name      string
		event     models.KeyEvent
		wantScore float64
		wantHit   string
	}{
		{
			name:      "copy shortcut",
			event:     models.KeyEvent{Key: "c", Ctrl: true, TimestampMS: 1000},
			wantScore: 35,
			wantHit:   "denied_combo:copy",
		},
		{
			name:      "devtools chord",
			event:     models.KeyEvent{Key: "I", Ctrl: true, Shift: true, TimestampMS: 1000},
			wantScore: 70,
			wantHit:   "denied_combo:devtools",
		},
		{
			name:      "function key",
			event:     models.KeyEvent{Key: "F12", TimestampMS: 1000},
			wantScore: 70,
			wantHit:   "denied_combo:devtools",
		},
		{
			name:      "window switch",
			event:     models.KeyEvent{Key: "Tab", Alt: true, TimestampMS: 1000},
			wantScore: 25,
			wantHit:   "denied_combo:window-switch",
		},
		{
			name:      "plain letter",
			event:     models.KeyEvent{Key: "c", TimestampMS: 1000},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewKeyboardProcessor(testKeyboardConfig())
			result := p.Process("sess-1", keyPayload(t, []models.KeyEvent{tt.event}))
			if result.RiskScore != tt.wantScore {
				t.Errorf("score = %.1f, want %.1f", result.RiskScore, tt.wantScore)
			}
			if tt.wantHit != "" && !slices.Contains(result.Patterns, tt.wantHit) {
				t.Errorf("patterns %v missing %q", result.Patterns, tt.wantHit)
			}
		})
	}
}

func TestKeyboardProcessorCombosChargePerBatchOnly(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	combo := []models.KeyEvent{{Key: "c", Ctrl: true, TimestampMS: 1000}}
	first := p.Process("sess-1", keyPayload(t, combo))
	if first.RiskScore != 35 {
		t.Fatalf("first batch scored %.1f, want 35", first.RiskScore)
	}

	// A later benign batch must not re-charge the combo sitting in the
	// window.
	benign := []models.KeyEvent{{Key: "a", TimestampMS: 2000}}
	second := p.Process("sess-1", keyPayload(t, benign))
	if second.RiskScore != 0 {
		t.Errorf("benign batch scored %.1f, want 0", second.RiskScore)
	}
}

func TestKeyboardProcessorConfigureSwapsComboTable(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	err := p.Configure(json.RawMessage(`{
		"window_size": 50, "min_samples": 8, "cv_floor": 0.12,
		"rapid_count": 8, "rapid_interval_ms": 30,
		"denied_combos": [{"keys": "ctrl+v", "severity": 45, "label": "paste"}]
	}`))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	old := p.Process("sess-1", keyPayload(t, []models.KeyEvent{{Key: "c", Ctrl: true, TimestampMS: 1000}}))
	if old.RiskScore != 0 {
		t.Errorf("removed combo still scored %.1f", old.RiskScore)
	}
	swapped := p.Process("sess-1", keyPayload(t, []models.KeyEvent{{Key: "v", Ctrl: true, TimestampMS: 2000}}))
	if swapped.RiskScore != 45 {
		t.Errorf("new combo scored %.1f, want 45", swapped.RiskScore)
	}
}

func TestKeyboardProcessorMalformedPayloadScoresZero(t *testing.T) {
	p := NewKeyboardProcessor(testKeyboardConfig())

	for _, payload := range []json.RawMessage{nil, json.RawMessage(`"x"`), json.RawMessage(`[{"key": ""}]`)} {
		result := p.Process("sess-1", payload)
		if result.RiskScore != 0 {
			t.Errorf("payload %q scored %.1f, want 0", payload, result.RiskScore)
		}
	}
}
