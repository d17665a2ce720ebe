// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// Contribution per triggered pointer check. Severities are fixed; the
// thresholds that trigger them live in config.
const (
	scoreMouseVelocity  = 40.0
	scoreMouseCollinear = 45.0
	scoreMouseSlope     = 35.0
	scoreMouseTiming    = 30.0
	scoreMouseTeleport  = 45.0
)

// teleportSpanRatio and teleportMaxDeltaMS define a teleport jump: a
// single step covering most of the observed coordinate span in under the
// time a display frame takes.
const (
	teleportSpanRatio  = 0.8
	teleportMaxDeltaMS = 10.0
)

// MouseProcessor scores pointer telemetry for script-driven movement:
// impossible velocities, ruler-straight paths, machine-even pacing and
// position teleports.
type MouseProcessor struct {
	mu       sync.RWMutex
	cfg      config.MouseConfig
	enabled  bool
	sessions sync.Map // sessionID -> *mouseWindow
}

type mouseWindow struct {
	mu     sync.Mutex
	points []models.MouseEvent
}

// NewMouseProcessor creates the pointer processor.
func NewMouseProcessor(cfg config.MouseConfig) *MouseProcessor {
	return &MouseProcessor{cfg: cfg, enabled: true}
}

// Kind returns the processor kind.
func (p *MouseProcessor) Kind() Kind {
	return KindMouse
}

// Configure replaces the processor configuration.
func (p *MouseProcessor) Configure(raw json.RawMessage) error {
	var cfg config.MouseConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.WindowSize < 10 {
		return fmt.Errorf("window_size must be at least 10")
	}
	if cfg.MaxVelocity <= 0 {
		return fmt.Errorf("max_velocity must be positive")
	}
	if cfg.CollinearRatio <= 0 || cfg.CollinearRatio > 1 {
		return fmt.Errorf("collinear_ratio must be in (0,1]")
	}

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Enabled reports whether the processor is active.
func (p *MouseProcessor) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles the processor.
func (p *MouseProcessor) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// EndSession drops the rolling window for a session.
func (p *MouseProcessor) EndSession(sessionID string) {
	p.sessions.Delete(sessionID)
}

// Config returns the current configuration.
func (p *MouseProcessor) Config() config.MouseConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Process appends the batch to the session window and scores the window.
// Unparseable or empty payloads score zero.
func (p *MouseProcessor) Process(sessionID string, payload json.RawMessage) Result {
	start := time.Now()
	defer func() {
		metrics.SignalProcessingDuration.WithLabelValues(string(KindMouse)).Observe(time.Since(start).Seconds())
	}()
	metrics.SignalBatches.WithLabelValues(string(KindMouse)).Inc()

	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	var batch []models.MouseEvent
	if len(payload) == 0 || json.Unmarshal(payload, &batch) != nil {
		return Result{}
	}
	batch = sanitizeMouse(batch)
	if len(batch) == 0 {
		return Result{}
	}

	wv, _ := p.sessions.LoadOrStore(sessionID, &mouseWindow{})
	w := wv.(*mouseWindow)

	w.mu.Lock()
	w.points = appendBounded(w.points, batch, cfg.WindowSize)
	window := make([]models.MouseEvent, len(w.points))
	copy(window, w.points)
	w.mu.Unlock()

	if len(window) < cfg.MinSamples {
		return Result{}
	}

	var result Result
	checkVelocity(&result, window, cfg)
	checkCollinearity(&result, window, cfg)
	checkSlopeVariance(&result, window, cfg)
	checkMouseTiming(&result, window, cfg)
	checkTeleport(&result, window)
	return result
}

// sanitizeMouse drops events with non-finite coordinates or timestamps.
func sanitizeMouse(events []models.MouseEvent) []models.MouseEvent {
	out := events[:0]
	for _, e := range events {
		if finite(e.X) && finite(e.Y) && finite(e.TimestampMS) {
			out = append(out, e)
		}
	}
	return out
}

// checkVelocity flags any step exceeding the human velocity ceiling.
func checkVelocity(result *Result, window []models.MouseEvent, cfg config.MouseConfig) {
	var peak float64
	hits := 0
	for i := 1; i < len(window); i++ {
		dtMS := window[i].TimestampMS - window[i-1].TimestampMS
		if dtMS <= 0 {
			continue
		}
		dist := math.Hypot(window[i].X-window[i-1].X, window[i].Y-window[i-1].Y)
		v := dist / (dtMS / 1000)
		if v > cfg.MaxVelocity {
			hits++
			if v > peak {
				peak = v
			}
		}
	}
	if hits > 0 {
		result.add("velocity_ceiling", scoreMouseVelocity,
			fmt.Sprintf("%d steps above %.0f px/s, peak %.0f px/s", hits, cfg.MaxVelocity, peak))
	}
}

// checkCollinearity flags windows where most consecutive point triples lie
// on a line. The triangle-area test is scale dependent, so epsilon is in
// squared pixels.
func checkCollinearity(result *Result, window []models.MouseEvent, cfg config.MouseConfig) {
	triples := len(window) - 2
	if triples < 1 {
		return
	}
	collinear := 0
	for i := 2; i < len(window); i++ {
		a, b, c := window[i-2], window[i-1], window[i]
		area := math.Abs((b.X-a.X)*(c.Y-a.Y)-(c.X-a.X)*(b.Y-a.Y)) / 2
		if area <= cfg.CollinearEpsilon {
			collinear++
		}
	}
	ratio := float64(collinear) / float64(triples)
	if ratio >= cfg.CollinearRatio {
		result.add("linear_path", scoreMouseCollinear,
			fmt.Sprintf("%.0f%% of point triples collinear", ratio*100))
	}
}

// checkSlopeVariance flags movement whose segment slopes barely vary.
// Human hands wobble; interpolated playback does not.
func checkSlopeVariance(result *Result, window []models.MouseEvent, cfg config.MouseConfig) {
	if cfg.SlopeVarianceFloor <= 0 {
		return
	}
	var slopes []float64
	for i := 1; i < len(window); i++ {
		dx := window[i].X - window[i-1].X
		dy := window[i].Y - window[i-1].Y
		if math.Abs(dx) < 1e-9 {
			continue
		}
		slopes = append(slopes, dy/dx)
	}
	if len(slopes) < 3 {
		return
	}
	if v := variance(slopes); v < cfg.SlopeVarianceFloor {
		result.add("uniform_slope", scoreMouseSlope,
			fmt.Sprintf("slope variance %.6f over %d segments", v, len(slopes)))
	}
}

// checkMouseTiming flags machine-even spacing between samples.
func checkMouseTiming(result *Result, window []models.MouseEvent, cfg config.MouseConfig) {
	if cfg.TimingCVFloor <= 0 {
		return
	}
	var deltas []float64
	for i := 1; i < len(window); i++ {
		dt := window[i].TimestampMS - window[i-1].TimestampMS
		if dt > 0 {
			deltas = append(deltas, dt)
		}
	}
	if len(deltas) < 3 {
		return
	}
	if cv := coefficientOfVariation(deltas); cv < cfg.TimingCVFloor {
		result.add("uniform_timing", scoreMouseTiming,
			fmt.Sprintf("inter-event CV %.4f over %d intervals", cv, len(deltas)))
	}
}

// checkTeleport flags single steps spanning most of the window's bounding
// box faster than a frame could render.
func checkTeleport(result *Result, window []models.MouseEvent) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, e := range window {
		minX = math.Min(minX, e.X)
		minY = math.Min(minY, e.Y)
		maxX = math.Max(maxX, e.X)
		maxY = math.Max(maxY, e.Y)
	}
	diagonal := math.Hypot(maxX-minX, maxY-minY)
	if diagonal <= 0 {
		return
	}

	hits := 0
	for i := 1; i < len(window); i++ {
		dtMS := window[i].TimestampMS - window[i-1].TimestampMS
		if dtMS < 0 || dtMS >= teleportMaxDeltaMS {
			continue
		}
		dist := math.Hypot(window[i].X-window[i-1].X, window[i].Y-window[i-1].Y)
		if dist > teleportSpanRatio*diagonal {
			hits++
		}
	}
	if hits > 0 {
		result.add("teleport_jump", scoreMouseTeleport,
			fmt.Sprintf("%d jumps spanning over %.0f%% of the movement area under %.0fms", hits, teleportSpanRatio*100, teleportMaxDeltaMS))
	}
}
