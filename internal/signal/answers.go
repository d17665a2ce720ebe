// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

const (
	scoreAnswerCycle      = 50.0
	scoreAnswerSequential = 50.0
	scoreAnswerFast       = 45.0
	scoreAnswerUniform    = 40.0
)

// AnswerProcessor scores answer telemetry for blind-submission patterns:
// repeating choice cycles, strictly sequential choices, latencies below
// any plausible reading speed and implausibly uniform pacing.
type AnswerProcessor struct {
	mu       sync.RWMutex
	cfg      config.AnswersConfig
	enabled  bool
	sessions sync.Map // sessionID -> *answerWindow
}

type answerWindow struct {
	mu     sync.Mutex
	events []models.AnswerEvent
}

// NewAnswerProcessor creates the answer-pattern processor.
func NewAnswerProcessor(cfg config.AnswersConfig) *AnswerProcessor {
	return &AnswerProcessor{cfg: cfg, enabled: true}
}

// Kind returns the processor kind.
func (p *AnswerProcessor) Kind() Kind {
	return KindAnswers
}

// Configure replaces the processor configuration.
func (p *AnswerProcessor) Configure(raw json.RawMessage) error {
	var cfg config.AnswersConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.WindowSize < 5 {
		return fmt.Errorf("window_size must be at least 5")
	}
	if cfg.ReadingFloorMS <= 0 {
		return fmt.Errorf("reading_floor_ms must be positive")
	}
	if cfg.CycleMaxPeriod < 2 {
		return fmt.Errorf("cycle_max_period must be at least 2")
	}
	if cfg.CycleCoverage <= 0 || cfg.CycleCoverage > 1 {
		return fmt.Errorf("cycle_coverage must be in (0,1]")
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Enabled reports whether the processor is active.
func (p *AnswerProcessor) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles the processor.
func (p *AnswerProcessor) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// EndSession drops the rolling window for a session.
func (p *AnswerProcessor) EndSession(sessionID string) {
	p.sessions.Delete(sessionID)
}

// Config returns the current configuration.
func (p *AnswerProcessor) Config() config.AnswersConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Process appends the batch to the session window. The latency-floor check
// runs on the batch alone; cycle, sequence and pacing checks run on the
// window.
func (p *AnswerProcessor) Process(sessionID string, payload json.RawMessage) Result {
	start := time.Now()
	defer func() {
		metrics.SignalProcessingDuration.WithLabelValues(string(KindAnswers)).Observe(time.Since(start).Seconds())
	}()
	metrics.SignalBatches.WithLabelValues(string(KindAnswers)).Inc()

	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	var batch []models.AnswerEvent
	if len(payload) == 0 || json.Unmarshal(payload, &batch) != nil {
		return Result{}
	}
	batch = sanitizeAnswers(batch)
	if len(batch) == 0 {
		return Result{}
	}

	var result Result
	checkFastAnswers(&result, batch, cfg)

	wv, _ := p.sessions.LoadOrStore(sessionID, &answerWindow{})
	w := wv.(*answerWindow)

	w.mu.Lock()
	w.events = appendBounded(w.events, batch, cfg.WindowSize)
	window := make([]models.AnswerEvent, len(w.events))
	copy(window, w.events)
	w.mu.Unlock()

	if len(window) >= cfg.MinSamples {
		checkChoiceCycle(&result, window, cfg)
		checkSequentialChoices(&result, window, cfg)
		checkUniformPacing(&result, window, cfg)
	}
	return result
}

// sanitizeAnswers drops events with negative choices or non-finite fields.
func sanitizeAnswers(events []models.AnswerEvent) []models.AnswerEvent {
	out := events[:0]
	for _, e := range events {
		if e.ChoiceIndex >= 0 && finite(e.ElapsedMS) && finite(e.TimestampMS) && e.ElapsedMS >= 0 {
			out = append(out, e)
		}
	}
	return out
}

// checkFastAnswers flags a batch where too many answers land below the
// reading floor.
func checkFastAnswers(result *Result, batch []models.AnswerEvent, cfg config.AnswersConfig) {
	fast := 0
	for _, e := range batch {
		if e.ElapsedMS < cfg.ReadingFloorMS {
			fast++
		}
	}
	share := float64(fast) / float64(len(batch))
	if share >= cfg.FastShare {
		result.add("rapid_answers", scoreAnswerFast,
			fmt.Sprintf("%d of %d answers under %.0fms", fast, len(batch), cfg.ReadingFloorMS))
	}
}

// checkChoiceCycle flags repeating choice cycles of period 2 up to the
// configured maximum covering most of the window. A constant choice
// registers through period 2.
func checkChoiceCycle(result *Result, window []models.AnswerEvent, cfg config.AnswersConfig) {
	n := len(window)
	for period := 2; period <= cfg.CycleMaxPeriod && period < n; period++ {
		matches := 0
		for i := period; i < n; i++ {
			if window[i].ChoiceIndex == window[i-period].ChoiceIndex {
				matches++
			}
		}
		coverage := float64(matches) / float64(n-period)
		if coverage >= cfg.CycleCoverage {
			result.add("answer_cycle", scoreAnswerCycle,
				fmt.Sprintf("period %d cycle covering %.0f%% of %d answers", period, coverage*100, n))
			return
		}
	}
}

// checkSequentialChoices flags a window dominated by choices incrementing
// by exactly one.
func checkSequentialChoices(result *Result, window []models.AnswerEvent, cfg config.AnswersConfig) {
	n := len(window)
	increments := 0
	for i := 1; i < n; i++ {
		if window[i].ChoiceIndex == window[i-1].ChoiceIndex+1 {
			increments++
		}
	}
	coverage := float64(increments) / float64(n-1)
	if coverage >= cfg.CycleCoverage {
		result.add("sequential_answers", scoreAnswerSequential,
			fmt.Sprintf("%.0f%% of %d transitions strictly sequential", coverage*100, n))
	}
}

// checkUniformPacing flags a session answering at machine-steady speed.
func checkUniformPacing(result *Result, window []models.AnswerEvent, cfg config.AnswersConfig) {
	if cfg.LatencyCVFloor <= 0 || len(window) < cfg.LatencyCVSamples {
		return
	}
	latencies := make([]float64, 0, len(window))
	for _, e := range window {
		if e.ElapsedMS > 0 {
			latencies = append(latencies, e.ElapsedMS)
		}
	}
	if len(latencies) < cfg.LatencyCVSamples {
		return
	}
	if cv := coefficientOfVariation(latencies); cv < cfg.LatencyCVFloor {
		result.add("uniform_pacing", scoreAnswerUniform,
			fmt.Sprintf("latency CV %.4f over %d answers", cv, len(latencies)))
	}
}
