// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

// Fingerprint is the browser environment snapshot submitted by the exam
// client during validation and re-challenges. All fields come from the
// client and are treated as adversarial input: absence, zero values and
// implausible values are themselves signals.
//
// Example payload:
//
//	{
//	  "user_agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) ...",
//	  "webdriver": false,
//	  "plugin_count": 5,
//	  "font_count": 41,
//	  "canvas_hash": "f3b2c1d4e5a6...",
//	  "webgl_renderer": "ANGLE (NVIDIA GeForce RTX 3060)",
//	  "webgl_vendor": "Google Inc. (NVIDIA)",
//	  "screen_width": 1920,
//	  "screen_height": 1080,
//	  "color_depth": 24,
//	  "timezone": "Europe/Berlin",
//	  "language": "de-DE",
//	  "touch_support": false,
//	  "handshake_ms": 112.4
//	}
type Fingerprint struct {
	UserAgent     string  `json:"user_agent"`
	Webdriver     bool    `json:"webdriver"`
	PluginCount   int     `json:"plugin_count"`
	FontCount     int     `json:"font_count"`
	CanvasHash    string  `json:"canvas_hash"`
	WebGLRenderer string  `json:"webgl_renderer"`
	WebGLVendor   string  `json:"webgl_vendor"`
	ScreenWidth   int     `json:"screen_width"`
	ScreenHeight  int     `json:"screen_height"`
	ColorDepth    int     `json:"color_depth"`
	Timezone      string  `json:"timezone"`
	Language      string  `json:"language"`
	TouchSupport  bool    `json:"touch_support"`
	HandshakeMS   float64 `json:"handshake_ms"`
}

// MouseEvent is one sampled pointer position. TimestampMS is the client's
// monotonic-ish event timestamp in milliseconds; processors only ever use
// deltas between consecutive events, so clock skew against the server is
// irrelevant.
type MouseEvent struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	TimestampMS float64 `json:"timestamp_ms"`
}

// KeyEvent is one keydown with its modifier state. Key carries the
// normalized KeyboardEvent.key value, lowercased by the processor.
type KeyEvent struct {
	Key         string  `json:"key"`
	Ctrl        bool    `json:"ctrl"`
	Alt         bool    `json:"alt"`
	Shift       bool    `json:"shift"`
	Meta        bool    `json:"meta"`
	TimestampMS float64 `json:"timestamp_ms"`
}

// AnswerEvent records one answered question. ElapsedMS measures from
// question display to answer selection as seen by the client.
type AnswerEvent struct {
	QuestionID  string  `json:"question_id"`
	ChoiceIndex int     `json:"choice_index"`
	ElapsedMS   float64 `json:"elapsed_ms"`
	TimestampMS float64 `json:"timestamp_ms"`
}
