// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package attendance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
)

// Client writes monitoring fields to the attendance service over HTTP.
// Each logical update retries transient failures a bounded number of
// times inside a circuit breaker, so a down backend degrades to fast
// failures instead of piling up blocked callers.
type Client struct {
	cfg     config.AttendanceConfig
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// NewClient builds an attendance client from config.
func NewClient(cfg config.AttendanceConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "attendance-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Attendance breaker state changed")
		},
	})

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// UpdateStatus sets the monitoring status of one attendee.
func (c *Client) UpdateStatus(ctx context.Context, examID, studentID string, status Status) error {
	err := c.put(ctx, c.attendeeURL(examID, studentID, "status"), map[string]any{
		"status": status,
	})
	c.count(err)
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	return nil
}

// UpdateRisk records the behavior risk score and contributing factors.
func (c *Client) UpdateRisk(ctx context.Context, examID, studentID string, score float64, factors []string) error {
	err := c.put(ctx, c.attendeeURL(examID, studentID, "risk"), map[string]any{
		"risk_score":   score,
		"risk_factors": factors,
	})
	c.count(err)
	if err != nil {
		return fmt.Errorf("update attendance risk: %w", err)
	}
	return nil
}

func (c *Client) count(err error) {
	if err != nil {
		metrics.AttendanceUpdates.WithLabelValues("failed").Inc()
		return
	}
	metrics.AttendanceUpdates.WithLabelValues("ok").Inc()
}

func (c *Client) attendeeURL(examID, studentID, field string) string {
	return c.baseURL + "/api/v1/exams/" + url.PathEscape(examID) +
		"/attendees/" + url.PathEscape(studentID) + "/" + field
}

// put sends one update through the breaker, retrying transient failures
// with linear backoff. 4xx responses are permanent and never retried.
func (c *Client) put(ctx context.Context, target string, payload map[string]any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
				}
			}

			lastErr = c.doPut(ctx, target, payload)
			if lastErr == nil {
				return nil, nil
			}
			var status *statusError
			if errors.As(lastErr, &status) && status.permanent() {
				return nil, lastErr
			}
		}
		return nil, lastErr
	})
	return err
}

func (c *Client) doPut(ctx context.Context, target string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// statusError distinguishes permanent HTTP rejections from transient
// server failures for the retry loop.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("attendance service returned status %d", e.code)
}

func (e *statusError) permanent() bool {
	return e.code >= 400 && e.code < 500
}
