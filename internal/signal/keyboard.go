// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

const (
	scoreKeyboardRhythm = 70.0
	scoreKeyboardRapid  = 45.0
)

// KeyboardProcessor scores keystroke telemetry for scripted input: inter-key
// rhythm too regular for a human, bursts faster than fingers move, and
// deny-listed key combinations.
type KeyboardProcessor struct {
	mu       sync.RWMutex
	cfg      config.KeyboardConfig
	combos   map[string]config.KeyCombo
	enabled  bool
	sessions sync.Map // sessionID -> *keyWindow
}

type keyWindow struct {
	mu     sync.Mutex
	events []models.KeyEvent
}

// NewKeyboardProcessor creates the keystroke processor.
func NewKeyboardProcessor(cfg config.KeyboardConfig) *KeyboardProcessor {
	return &KeyboardProcessor{
		cfg:     cfg,
		combos:  indexCombos(cfg.DeniedCombos),
		enabled: true,
	}
}

// indexCombos builds the chord lookup table.
func indexCombos(combos []config.KeyCombo) map[string]config.KeyCombo {
	idx := make(map[string]config.KeyCombo, len(combos))
	for _, c := range combos {
		idx[strings.ToLower(c.Keys)] = c
	}
	return idx
}

// Kind returns the processor kind.
func (p *KeyboardProcessor) Kind() Kind {
	return KindKeyboard
}

// Configure replaces the processor configuration and rebuilds the combo
// table.
func (p *KeyboardProcessor) Configure(raw json.RawMessage) error {
	var cfg config.KeyboardConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.WindowSize < 10 {
		return fmt.Errorf("window_size must be at least 10")
	}
	if cfg.RapidCount < 2 {
		return fmt.Errorf("rapid_count must be at least 2")
	}
	if cfg.RapidIntervalMS <= 0 {
		return fmt.Errorf("rapid_interval_ms must be positive")
	}

	p.mu.Lock()
	p.cfg = cfg
	p.combos = indexCombos(cfg.DeniedCombos)
	p.mu.Unlock()
	return nil
}

// Enabled reports whether the processor is active.
func (p *KeyboardProcessor) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles the processor.
func (p *KeyboardProcessor) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// EndSession drops the rolling window for a session.
func (p *KeyboardProcessor) EndSession(sessionID string) {
	p.sessions.Delete(sessionID)
}

// Config returns the current configuration.
func (p *KeyboardProcessor) Config() config.KeyboardConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Process appends the batch to the session window, matches deny-listed
// combos per batch and evaluates rhythm checks over the window.
func (p *KeyboardProcessor) Process(sessionID string, payload json.RawMessage) Result {
	start := time.Now()
	defer func() {
		metrics.SignalProcessingDuration.WithLabelValues(string(KindKeyboard)).Observe(time.Since(start).Seconds())
	}()
	metrics.SignalBatches.WithLabelValues(string(KindKeyboard)).Inc()

	p.mu.RLock()
	cfg := p.cfg
	combos := p.combos
	p.mu.RUnlock()

	var batch []models.KeyEvent
	if len(payload) == 0 || json.Unmarshal(payload, &batch) != nil {
		return Result{}
	}
	batch = sanitizeKeys(batch)
	if len(batch) == 0 {
		return Result{}
	}

	var result Result

	// Combo hits are per keystroke, not per window: replaying the window
	// would double-charge earlier hits.
	checkDeniedCombos(&result, batch, combos)

	wv, _ := p.sessions.LoadOrStore(sessionID, &keyWindow{})
	w := wv.(*keyWindow)

	w.mu.Lock()
	w.events = appendBounded(w.events, batch, cfg.WindowSize)
	window := make([]models.KeyEvent, len(w.events))
	copy(window, w.events)
	w.mu.Unlock()

	if len(window) >= cfg.MinSamples {
		checkTypingRhythm(&result, window, cfg)
		checkRapidSequence(&result, window, cfg)
	}
	return result
}

// sanitizeKeys drops events with empty keys or non-finite timestamps.
func sanitizeKeys(events []models.KeyEvent) []models.KeyEvent {
	out := events[:0]
	for _, e := range events {
		if e.Key != "" && finite(e.TimestampMS) {
			out = append(out, e)
		}
	}
	return out
}

// chord renders a key event as a normalized "+"-joined combination,
// modifiers in ctrl, alt, shift, meta order.
func chord(e models.KeyEvent) string {
	var parts []string
	if e.Ctrl {
		parts = append(parts, "ctrl")
	}
	if e.Alt {
		parts = append(parts, "alt")
	}
	if e.Shift {
		parts = append(parts, "shift")
	}
	if e.Meta {
		parts = append(parts, "meta")
	}
	parts = append(parts, strings.ToLower(e.Key))
	return strings.Join(parts, "+")
}

// checkDeniedCombos charges each deny-listed combination in the batch.
func checkDeniedCombos(result *Result, batch []models.KeyEvent, combos map[string]config.KeyCombo) {
	for _, e := range batch {
		if combo, ok := combos[chord(e)]; ok {
			result.add("denied_combo:"+combo.Label, combo.Severity, combo.Keys)
		}
	}
}

// checkTypingRhythm flags inter-key intervals too regular for a human.
func checkTypingRhythm(result *Result, window []models.KeyEvent, cfg config.KeyboardConfig) {
	if cfg.CVFloor <= 0 {
		return
	}
	var deltas []float64
	for i := 1; i < len(window); i++ {
		dt := window[i].TimestampMS - window[i-1].TimestampMS
		if dt > 0 {
			deltas = append(deltas, dt)
		}
	}
	if len(deltas) < cfg.MinSamples-1 {
		return
	}
	if cv := coefficientOfVariation(deltas); cv < cfg.CVFloor {
		result.add("robotic_rhythm", scoreKeyboardRhythm,
			fmt.Sprintf("inter-key CV %.4f over %d intervals", cv, len(deltas)))
	}
}

// checkRapidSequence flags a run of keystrokes each landing faster than
// the physical typing floor.
func checkRapidSequence(result *Result, window []models.KeyEvent, cfg config.KeyboardConfig) {
	run := 0
	longest := 0
	for i := 1; i < len(window); i++ {
		dt := window[i].TimestampMS - window[i-1].TimestampMS
		if dt >= 0 && dt < cfg.RapidIntervalMS {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	// longest counts intervals; RapidCount counts keys.
	if longest+1 >= cfg.RapidCount {
		result.add("rapid_sequence", scoreKeyboardRapid,
			fmt.Sprintf("%d keys under %.0fms apart", longest+1, cfg.RapidIntervalMS))
	}
}
