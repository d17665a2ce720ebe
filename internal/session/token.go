// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	// tokenKeySalt binds derived keys to endpoint token signing, so a
	// master secret shared with other subsystems never signs tokens
	// directly.
	tokenKeySalt = "invigilo-endpoint-tokens"

	// tokenKeyInfo is the HKDF info parameter for key derivation.
	tokenKeyInfo = "endpoint-token-signing-v1"

	// tokenKeySize is the size of the derived HMAC key in bytes.
	tokenKeySize = 32
)

// Errors returned by Resolve.
var (
	ErrTokenInvalid    = errors.New("endpoint token invalid")
	ErrTokenRevoked    = errors.New("endpoint token revoked")
	ErrSessionNotFound = errors.New("no active session for token")
)

// deriveSigningKey derives the HS256 signing key from the configured
// secret using HKDF-SHA256.
func deriveSigningKey(secret []byte) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		secret,
		[]byte(tokenKeySalt),
		[]byte(tokenKeyInfo),
	)

	key := make([]byte, tokenKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}

	return key, nil
}

// Claims binds an endpoint token to exactly one allocated monitoring
// session. The jti in RegisteredClaims lets the registry revoke the
// token the moment its session is released, before the expiry would
// retire it naturally.
type Claims struct {
	SessionID string `json:"sid"`
	ExamID    string `json:"eid"`
	StudentID string `json:"stu"`
	Slot      int    `json:"slot"`
	jwt.RegisteredClaims
}

// mintToken signs an HS256 endpoint token for an allocated session.
func mintToken(secret []byte, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign endpoint token: %w", err)
	}

	return signed, nil
}

// parseToken verifies the signature and expiry of an endpoint token
// and returns its claims. Expiry is judged against the supplied clock
// so the registry's time source governs token lifetime everywhere.
func parseToken(secret []byte, tokenString string, now func() time.Time) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !token.Valid || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
