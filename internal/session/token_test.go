// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var tokenTestSecret = []byte("test-secret-0123456789abcdef0123")

func fixedClock() func() time.Time {
	at := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func testClaims(now time.Time) *Claims {
	return &Claims{
		SessionID: "sess-1",
		ExamID:    "exam-1",
		StudentID: "stu-1",
		Slot:      7,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "stu-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
		},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := fixedClock()
	minted := testClaims(now())

	token, err := mintToken(tokenTestSecret, minted)
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	parsed, err := parseToken(tokenTestSecret, token, now)
	if err != nil {
		t.Fatalf("parseToken() failed: %v", err)
	}

	if parsed.SessionID != minted.SessionID {
		t.Errorf("SessionID = %q, want %q", parsed.SessionID, minted.SessionID)
	}
	if parsed.ExamID != minted.ExamID {
		t.Errorf("ExamID = %q, want %q", parsed.ExamID, minted.ExamID)
	}
	if parsed.StudentID != minted.StudentID {
		t.Errorf("StudentID = %q, want %q", parsed.StudentID, minted.StudentID)
	}
	if parsed.Slot != minted.Slot {
		t.Errorf("Slot = %d, want %d", parsed.Slot, minted.Slot)
	}
	if parsed.ID != minted.ID {
		t.Errorf("jti = %q, want %q", parsed.ID, minted.ID)
	}
}

func TestParseRejectsTamperedPayload(t *testing.T) {
	now := fixedClock()

	token, err := mintToken(tokenTestSecret, testClaims(now()))
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := parseToken(tokenTestSecret, tampered, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("parseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	now := fixedClock()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims(now()))
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}

	if _, err := parseToken(tokenTestSecret, unsigned, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("parseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	now := fixedClock()

	claims := testClaims(now())
	claims.ExpiresAt = jwt.NewNumericDate(now().Add(-time.Minute))

	token, err := mintToken(tokenTestSecret, claims)
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	if _, err := parseToken(tokenTestSecret, token, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("parseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsMissingSessionID(t *testing.T) {
	now := fixedClock()

	claims := testClaims(now())
	claims.SessionID = ""

	token, err := mintToken(tokenTestSecret, claims)
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	if _, err := parseToken(tokenTestSecret, token, now); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("parseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestDeriveSigningKey(t *testing.T) {
	key1, err := deriveSigningKey(tokenTestSecret)
	if err != nil {
		t.Fatalf("deriveSigningKey() failed: %v", err)
	}
	if len(key1) != tokenKeySize {
		t.Errorf("key length = %d, want %d", len(key1), tokenKeySize)
	}

	// Derivation is deterministic for a given secret.
	key2, err := deriveSigningKey(tokenTestSecret)
	if err != nil {
		t.Fatalf("deriveSigningKey() failed: %v", err)
	}
	if string(key1) != string(key2) {
		t.Error("same secret derived different keys")
	}

	// The derived key is never the raw secret.
	if string(key1) == string(tokenTestSecret) {
		t.Error("derived key equals the raw secret")
	}

	other, err := deriveSigningKey([]byte("another-secret"))
	if err != nil {
		t.Fatalf("deriveSigningKey() failed: %v", err)
	}
	if string(key1) == string(other) {
		t.Error("different secrets derived the same key")
	}
}
