// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/models"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not the standard envelope: %v", err)
	}
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Permissions-Policy":     "geolocation=(), microphone=(), camera=()",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy header missing")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on a plain HTTP request")
	}
}

func TestSecurityHeadersHSTSBehindTLSProxy(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing behind a TLS-terminating proxy")
	}
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	handler := AdminAuth("admin-secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminAuthRejectsBadToken(t *testing.T) {
	tests := []struct {
		name string
		auth string
	}{
		{"wrong token", "Bearer not-the-token"},
		{"missing header", ""},
		{"wrong scheme", "Basic YWJjOmRlZg=="},
		{"bare token", "admin-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuth("admin-secret")(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			resp := decodeEnvelope(t, rec)
			if resp.Status != "error" || resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
				t.Errorf("envelope = %+v, want UNAUTHORIZED error", resp)
			}
		})
	}
}

func TestAdminAuthDisabledWithoutToken(t *testing.T) {
	handler := AdminAuth("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when the admin surface is disabled", rec.Code)
	}
}

func TestRequireIdentityAcceptsSignedHeaders(t *testing.T) {
	const secret = "identity-shared-secret"

	var capturedStudent string
	handler := RequireIdentity(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedStudent = StudentID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitoring/start", nil)
	req.Header.Set("X-Student-ID", "student-42")
	req.Header.Set("X-Identity-Token", IdentityToken("student-42", secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if capturedStudent != "student-42" {
		t.Errorf("StudentID(ctx) = %q, want student-42", capturedStudent)
	}
}

func TestRequireIdentityRejectsForgedToken(t *testing.T) {
	tests := []struct {
		name    string
		student string
		token   string
	}{
		{"wrong token", "student-42", "deadbeef"},
		{"missing token", "student-42", ""},
		{"token for other student", "student-42", IdentityToken("student-7", "identity-shared-secret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireIdentity("identity-shared-secret")(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/monitoring/start", nil)
			req.Header.Set("X-Student-ID", tt.student)
			if tt.token != "" {
				req.Header.Set("X-Identity-Token", tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireIdentityRejectsMissingStudent(t *testing.T) {
	handler := RequireIdentity("secret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitoring/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireIdentityTrustsHeaderWithoutSecret(t *testing.T) {
	var capturedStudent string
	handler := RequireIdentity("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedStudent = StudentID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitoring/start", nil)
	req.Header.Set("X-Student-ID", "student-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if capturedStudent != "student-42" {
		t.Errorf("StudentID(ctx) = %q, want student-42", capturedStudent)
	}
}

func TestStudentIDWithoutIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	if id := StudentID(req.Context()); id != "" {
		t.Errorf("StudentID = %q, want empty without identity middleware", id)
	}
}

func TestIdentityTokenIsDeterministic(t *testing.T) {
	a := IdentityToken("student-42", "secret")
	b := IdentityToken("student-42", "secret")
	if a != b {
		t.Error("same inputs produced different tokens")
	}
	if a == IdentityToken("student-43", "secret") {
		t.Error("different students produced the same token")
	}
	if a == IdentityToken("student-42", "other") {
		t.Error("different secrets produced the same token")
	}
}
