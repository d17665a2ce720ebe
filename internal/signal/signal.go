// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package signal scores behavioral telemetry batches for automation
// patterns.
//
// Three processors cover the telemetry surface: pointer movement,
// keystroke dynamics and answer sequences. Each keeps a bounded rolling
// window per session and evaluates its checks over the window (or the
// batch, where the check is inherently per-batch). Telemetry is
// adversarial input; a batch that does not parse scores zero rather than
// erroring, so a client cannot learn anything from sending garbage.
//
// Processors register in a Pipeline keyed by kind. Configuration
// hot-swaps under lock without draining in-flight batches.
package signal

import (
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/models"
)

// Kind identifies a telemetry processor.
type Kind string

const (
	KindMouse    Kind = "mouse"
	KindKeyboard Kind = "keyboard"
	KindAnswers  Kind = "answers"
)

// RiskSource maps the processor kind to its risk-factor source label.
func (k Kind) RiskSource() models.RiskSource {
	switch k {
	case KindMouse:
		return models.RiskSourceMouse
	case KindKeyboard:
		return models.RiskSourceKeyboard
	case KindAnswers:
		return models.RiskSourceAnswers
	default:
		return models.RiskSource(string(k))
	}
}

// Anomaly is one triggered check with its contribution to the batch score.
type Anomaly struct {
	Pattern string  `json:"pattern"`
	Score   float64 `json:"score"`
	Detail  string  `json:"detail,omitempty"`
}

// Result is the outcome of scoring one telemetry batch. RiskScore is the
// clamped sum of anomaly contributions in [0,100]; the zero value means
// nothing noteworthy.
type Result struct {
	RiskScore float64   `json:"risk_score"`
	Patterns  []string  `json:"patterns,omitempty"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}

// add accumulates one triggered check into the result.
func (r *Result) add(pattern string, score float64, detail string) {
	r.Anomalies = append(r.Anomalies, Anomaly{Pattern: pattern, Score: score, Detail: detail})
	r.Patterns = append(r.Patterns, pattern)
	r.RiskScore += score
	if r.RiskScore > 100 {
		r.RiskScore = 100
	}
}

// Suspicious reports whether the batch triggered anything.
func (r Result) Suspicious() bool {
	return len(r.Anomalies) > 0
}

// Processor scores telemetry batches of one kind. Process never returns
// an error: malformed payloads yield the zero Result.
type Processor interface {
	Kind() Kind
	Process(sessionID string, payload json.RawMessage) Result
	Configure(cfg json.RawMessage) error
	Enabled() bool
	SetEnabled(enabled bool)
	// EndSession drops the rolling window kept for a session.
	EndSession(sessionID string)
}

// Pipeline routes telemetry batches to the processor for their kind.
type Pipeline struct {
	mu         sync.RWMutex
	processors map[Kind]Processor
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{processors: make(map[Kind]Processor)}
}

// Register adds a processor, replacing any previous one of the same kind.
func (p *Pipeline) Register(proc Processor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processors[proc.Kind()] = proc
}

// Process scores a batch with the processor for kind. The second return
// is false when no enabled processor handles the kind.
func (p *Pipeline) Process(kind Kind, sessionID string, payload json.RawMessage) (Result, bool) {
	p.mu.RLock()
	proc, ok := p.processors[kind]
	p.mu.RUnlock()

	if !ok || !proc.Enabled() {
		return Result{}, false
	}
	return proc.Process(sessionID, payload), true
}

// Get returns the processor for a kind.
func (p *Pipeline) Get(kind Kind) (Processor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proc, ok := p.processors[kind]
	return proc, ok
}

// Kinds returns the registered processor kinds.
func (p *Pipeline) Kinds() []Kind {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kinds := make([]Kind, 0, len(p.processors))
	for k := range p.processors {
		kinds = append(kinds, k)
	}
	return kinds
}

// EndSession drops per-session state in every processor.
func (p *Pipeline) EndSession(sessionID string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, proc := range p.processors {
		proc.EndSession(sessionID)
	}
}

// appendBounded appends src to dst keeping only the most recent max
// elements.
func appendBounded[T any](dst, src []T, max int) []T {
	dst = append(dst, src...)
	if max > 0 && len(dst) > max {
		keep := dst[len(dst)-max:]
		out := make([]T, max)
		copy(out, keep)
		return out
	}
	return dst
}
