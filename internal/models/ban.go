// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package models

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// BannedClient is an IP/device-keyed ban that applies before any identity is
// known. Ban duration escalates linearly with ViolationCount up to a cap;
// past the permanent threshold the ban stops expiring.
//
// DeviceKey is an opaque browser-profile digest (see the DeviceKey
// function) so a client rotating IPs behind the same browser stays
// recognizable.
type BannedClient struct {
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent,omitempty"`
	DeviceKey      string    `json:"device_key,omitempty"`
	BanReason      string    `json:"ban_reason"`
	ViolationCount int       `json:"violation_count"`
	BanUntil       time.Time `json:"ban_until"`
	IsPermanent    bool      `json:"is_permanent"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Banned reports whether the ban is in force at the given instant.
// Permanent bans ignore BanUntil.
func (b *BannedClient) Banned(now time.Time) bool {
	if b.IsPermanent {
		return true
	}
	return b.BanUntil.After(now)
}

// Remaining returns how long the ban has left to run, zero for lapsed bans.
// Permanent bans report a negative duration; check IsPermanent first.
func (b *BannedClient) Remaining(now time.Time) time.Duration {
	if b.IsPermanent {
		return -1
	}
	if d := b.BanUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}

// DeviceKey digests a client's browser identity into the opaque key
// device bans are stored under. BLAKE2b-128 over user_agent|canvas_hash;
// the IP stays out of the preimage so the key survives address rotation.
// An empty canvas hash yields no key; without fingerprint entropy the
// digest would add nothing over the IP ban.
func DeviceKey(userAgent, canvasHash string) string {
	if canvasHash == "" {
		return ""
	}

	digest, err := blake2b.New(16, nil)
	if err != nil {
		return ""
	}
	digest.Write([]byte(userAgent))
	digest.Write([]byte("|"))
	digest.Write([]byte(canvasHash))
	return hex.EncodeToString(digest.Sum(nil))
}
