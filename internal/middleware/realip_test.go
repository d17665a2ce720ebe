// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct client cannot spoof via XFF",
			trusted:    []string{"10.0.0.1"},
			remoteAddr: "198.51.100.7:52310",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:       "198.51.100.7",
		},
		{
			name:       "trusted proxy forwards client IP",
			trusted:    []string{"10.0.0.1"},
			remoteAddr: "10.0.0.1:40000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:       "203.0.113.50",
		},
		{
			name:       "first hop wins in XFF chain",
			trusted:    []string{"10.0.0.1"},
			remoteAddr: "10.0.0.1:40000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			want:       "203.0.113.50",
		},
		{
			name:       "garbage XFF falls back to X-Real-IP",
			trusted:    []string{"10.0.0.1"},
			remoteAddr: "10.0.0.1:40000",
			headers: map[string]string{
				"X-Forwarded-For": "not-an-address",
				"X-Real-IP":       "203.0.113.51",
			},
			want: "203.0.113.51",
		},
		{
			name:       "trusted proxy without headers keeps socket address",
			trusted:    []string{"10.0.0.1"},
			remoteAddr: "10.0.0.1:40000",
			want:       "10.0.0.1",
		},
		{
			name:       "no trusted proxies configured",
			trusted:    nil,
			remoteAddr: "198.51.100.7:52310",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:       "198.51.100.7",
		},
		{
			name:       "IPv6 peer with port",
			trusted:    []string{"2001:db8::1"},
			remoteAddr: "[2001:db8::1]:40000",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::99"},
			want:       "2001:db8::99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := RealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.50:1234"
	if got := ClientIP(req); got != "203.0.113.50" {
		t.Errorf("ClientIP() = %q, want 203.0.113.50", got)
	}

	req.RemoteAddr = "203.0.113.50"
	if got := ClientIP(req); got != "203.0.113.50" {
		t.Errorf("ClientIP() without port = %q, want 203.0.113.50", got)
	}
}
