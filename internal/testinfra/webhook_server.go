// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

//go:build integration

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// WebhookCapture represents a captured webhook request.
type WebhookCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockWebhookServer captures every request a notifier delivers so tests
// can assert on method, headers and payload. Response behavior is
// adjustable per test to drive retry and breaker paths.
type MockWebhookServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []WebhookCapture

	// ResponseStatus is the HTTP status code to return (default: 200).
	ResponseStatus int

	// ResponseBody is the response body to return.
	ResponseBody []byte

	// ResponseFunc overrides the canned response when set.
	ResponseFunc func(w http.ResponseWriter, r *http.Request)
}

// NewMockWebhookServer creates a capture server. The caller owns Close.
func NewMockWebhookServer(t *testing.T) *MockWebhookServer {
	t.Helper()

	mws := &MockWebhookServer{
		ResponseStatus: http.StatusOK,
	}

	mws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
		}

		mws.mu.Lock()
		mws.captures = append(mws.captures, WebhookCapture{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		responseFunc := mws.ResponseFunc
		status := mws.ResponseStatus
		respBody := mws.ResponseBody
		mws.mu.Unlock()

		if responseFunc != nil {
			responseFunc(w, r)
			return
		}

		w.WriteHeader(status)
		if respBody != nil {
			w.Write(respBody) //nolint:errcheck
		}
	}))

	return mws
}

// URL returns the server URL.
func (m *MockWebhookServer) URL() string {
	return m.Server.URL
}

// Close shuts down the server.
func (m *MockWebhookServer) Close() {
	m.Server.Close()
}

// SetResponse changes the canned response for subsequent requests.
func (m *MockWebhookServer) SetResponse(status int, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseStatus = status
	m.ResponseBody = body
}

// GetCaptures returns a copy of all captured requests.
func (m *MockWebhookServer) GetCaptures() []WebhookCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]WebhookCapture, len(m.captures))
	copy(result, m.captures)
	return result
}

// ClearCaptures discards all captured requests.
func (m *MockWebhookServer) ClearCaptures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures = nil
}

// WaitForCaptures blocks until at least n requests are captured or the
// timeout elapses. Returns whether the count was reached.
func (m *MockWebhookServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		count := len(m.captures)
		m.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
