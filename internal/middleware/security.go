// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/models"
)

// SecurityHeaders adds browser security headers to all responses. The
// CSP permits inline styles and scripts only because the swagger UI
// needs them; every API response is JSON and never interpreted.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self' wss: ws:; "+
				"frame-ancestors 'none'; "+
				"base-uri 'self'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if r.Header.Get("X-Forwarded-Proto") == "https" || r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// AdminAuth gates a route group with a static bearer token. An empty
// configured token disables the group: every request 404s rather than
// leaving an unprotected admin surface.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
				return
			}

			const prefix = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, prefix) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}
			presented := strings.TrimPrefix(header, prefix)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logging.Warn().
					Str("remote_addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("Admin request with invalid bearer token")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity verifies the upstream identity layer's headers and
// stores the student ID in the request context. The exam platform
// forwards X-Student-ID plus X-Identity-Token, an HMAC-SHA256 hex
// digest of the student ID under the shared secret. An empty secret
// skips signature verification and trusts the header, which is only
// sensible behind a proxy that strips client-supplied copies.
func RequireIdentity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			studentID := r.Header.Get("X-Student-ID")
			if studentID == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity headers")
				return
			}

			if secret != "" {
				token := r.Header.Get("X-Identity-Token")
				if !verifyIdentityToken(studentID, token, secret) {
					logging.Warn().
						Str("remote_addr", r.RemoteAddr).
						Str("student_id", studentID).
						Msg("Identity token rejected")
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Identity token rejected")
					return
				}
			}

			ctx := context.WithValue(r.Context(), StudentIDKey, studentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StudentID extracts the verified student identity from context.
func StudentID(ctx context.Context) string {
	if id, ok := ctx.Value(StudentIDKey).(string); ok {
		return id
	}
	return ""
}

// IdentityToken computes the identity header value for a student ID.
// The exam platform runs the same computation on its side.
func IdentityToken(studentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(studentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyIdentityToken(studentID, token, secret string) bool {
	if token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(IdentityToken(studentID, secret)))
}

// writeError emits the standard error envelope. Middleware rejections
// use the same response shape as handler errors.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.APIResponse{
		Status:   "error",
		Error:    &models.APIError{Code: code, Message: message},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode error response")
	}
}
