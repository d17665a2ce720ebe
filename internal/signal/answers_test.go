// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import (
	"fmt"
	"slices"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/models"
)

func testAnswersConfig() config.AnswersConfig {
	return config.AnswersConfig{
		WindowSize:       40,
		MinSamples:       5,
		ReadingFloorMS:   1500,
		FastShare:        0.5,
		CycleMaxPeriod:   4,
		CycleCoverage:    0.8,
		LatencyCVFloor:   0.1,
		LatencyCVSamples: 10,
	}
}

func answerPayload(t *testing.T, choices []int, latencies []float64) json.RawMessage {
	t.Helper()
	events := make([]models.AnswerEvent, len(choices))
	ts := 1000.0
	for i, c := range choices {
		lat := latencies[i%len(latencies)]
		ts += lat
		events[i] = models.AnswerEvent{
			QuestionID:  fmt.Sprintf("q%d", i+1),
			ChoiceIndex: c,
			ElapsedMS:   lat,
			TimestampMS: ts,
		}
	}
	data, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

// variedChoices has no cycle of period 2-4 and no sequential run.
var variedChoices = []int{0, 2, 1, 3, 2, 0, 3, 1, 2, 3, 0, 1}

// humanLatencies are plausible read-and-answer times with real spread.
var humanLatencies = []float64{4200, 8100, 2600, 12400, 3900, 6800, 2100, 9500, 5300, 7200, 3100, 11000}

func TestAnswerProcessorAcceptsHumanAnswers(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	result := p.Process("sess-1", answerPayload(t, variedChoices, humanLatencies))
	if result.RiskScore != 0 {
		t.Errorf("human answers scored %.1f with patterns %v, want 0", result.RiskScore, result.Patterns)
	}
}

func TestAnswerProcessorFlagsChoiceCycle(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	// A and C alternating through the whole window.
	choices := []int{0, 2, 0, 2, 0, 2, 0, 2, 0, 2, 0, 2}
	result := p.Process("sess-1", answerPayload(t, choices, humanLatencies))
	if !slices.Contains(result.Patterns, "answer_cycle") {
		t.Errorf("patterns %v missing answer_cycle", result.Patterns)
	}
}

func TestAnswerProcessorFlagsConstantChoice(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	choices := []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	result := p.Process("sess-1", answerPayload(t, choices, humanLatencies))
	if !slices.Contains(result.Patterns, "answer_cycle") {
		t.Errorf("patterns %v missing answer_cycle for constant choice", result.Patterns)
	}
}

func TestAnswerProcessorFlagsSequentialChoices(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	choices := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	result := p.Process("sess-1", answerPayload(t, choices, humanLatencies))
	if !slices.Contains(result.Patterns, "sequential_answers") {
		t.Errorf("patterns %v missing sequential_answers", result.Patterns)
	}
}

func TestAnswerProcessorFlagsFastBatch(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	// Every answer lands in 300ms, far under any reading speed.
	fast := []float64{300, 280, 310, 290, 305, 295}
	result := p.Process("sess-1", answerPayload(t, variedChoices[:6], fast))
	if !slices.Contains(result.Patterns, "rapid_answers") {
		t.Errorf("patterns %v missing rapid_answers", result.Patterns)
	}
}

func TestAnswerProcessorFlagsUniformPacing(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	// Above the reading floor but machine steady.
	uniform := []float64{2100, 2100, 2100, 2100, 2100, 2100, 2100, 2100, 2100, 2100, 2100, 2100}
	result := p.Process("sess-1", answerPayload(t, variedChoices, uniform))
	if !slices.Contains(result.Patterns, "uniform_pacing") {
		t.Errorf("patterns %v missing uniform_pacing", result.Patterns)
	}
	if slices.Contains(result.Patterns, "rapid_answers") {
		t.Error("2100ms answers must not read as rapid")
	}
}

func TestAnswerProcessorFastCheckIsPerBatch(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	// A slow batch after a fast one must not inherit the fast flag.
	fast := []float64{300, 280, 310, 290, 305, 295}
	if r := p.Process("sess-1", answerPayload(t, variedChoices[:6], fast)); !slices.Contains(r.Patterns, "rapid_answers") {
		t.Fatal("fast batch did not flag")
	}

	slow := []float64{5200, 7400, 3800, 9100, 4600, 6300}
	r := p.Process("sess-1", answerPayload(t, variedChoices[6:], slow))
	if slices.Contains(r.Patterns, "rapid_answers") {
		t.Errorf("slow batch flagged rapid_answers: %v", r.Patterns)
	}
}

func TestAnswerProcessorMalformedPayloadScoresZero(t *testing.T) {
	p := NewAnswerProcessor(testAnswersConfig())

	payloads := []json.RawMessage{
		nil,
		json.RawMessage(`{broken`),
		json.RawMessage(`[]`),
		json.RawMessage(`[{"question_id": "q1", "choice_index": -3, "elapsed_ms": -50}]`),
	}
	for _, payload := range payloads {
		result := p.Process("sess-1", payload)
		if result.RiskScore != 0 {
			t.Errorf("payload %q scored %.1f, want 0", payload, result.RiskScore)
		}
	}
}
