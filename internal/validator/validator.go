// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package validator decides whether an exam client is a real browser
// driven by a human.
//
// The decision runs a weighted checklist over the submitted fingerprint.
// Checks marked strong reject on their own; weak signals reject once
// enough of them accumulate. The fingerprint is entirely
// client-controlled, so the checklist treats absence and implausibility
// as signals rather than trusting any field.
//
// The validator itself is stateless per call except for outstanding
// re-validation challenges. Feeding rejections into the ban registry and
// the policy engine is the caller's job.
package validator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// Challenge errors returned by VerifyChallenge.
var (
	ErrNoChallenge      = errors.New("no outstanding challenge")
	ErrNonceMismatch    = errors.New("challenge nonce mismatch")
	ErrChallengeExpired = errors.New("challenge deadline passed")
)

// NetworkIntel classifies source addresses. Lookup returns the network
// class ("vpn", "proxy", "hosting", "tor", "residential", "unknown") and
// whether the class is deny-flagged for exams.
type NetworkIntel interface {
	Lookup(ctx context.Context, ip string) (class string, flagged bool)
}

// Signal is one triggered checklist finding.
type Signal struct {
	Check  string  `json:"check"`
	Weight float64 `json:"weight"`
	Strong bool    `json:"strong"`
	Reason string  `json:"reason"`
}

// Verdict is the outcome of validating one fingerprint.
type Verdict struct {
	Authentic bool     `json:"authentic"`
	Score     float64  `json:"score"`
	Signals   []Signal `json:"signals,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Challenge is an outstanding re-validation demand. The client must echo
// the nonce with a fresh fingerprint before the deadline.
type Challenge struct {
	SessionID string    `json:"session_id"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
	Deadline  time.Time `json:"deadline"`
}

// check is one checklist entry. run returns whether the check triggered
// and the human-readable reason.
type check struct {
	name string
	run  func(v *Validator, ctx context.Context, fp models.Fingerprint, ip string) (bool, string)
}

// Validator runs the authenticity checklist and tracks re-validation
// challenges.
type Validator struct {
	cfg      config.ValidatorConfig
	netintel NetworkIntel
	checks   []check

	challenges sync.Map // sessionID -> Challenge

	// now is swappable for tests.
	now func() time.Time
}

// New creates a validator. netintel may be nil, which skips the network
// class check.
func New(cfg config.ValidatorConfig, netintel NetworkIntel) *Validator {
	if cfg.WeakSignalLimit <= 0 {
		cfg.WeakSignalLimit = 2
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = 15 * time.Second
	}
	v := &Validator{
		cfg:      cfg,
		netintel: netintel,
		now:      time.Now,
	}
	v.checks = []check{
		{"webdriver", (*Validator).checkWebdriver},
		{"user_agent", (*Validator).checkUserAgent},
		{"canvas", (*Validator).checkCanvas},
		{"webgl", (*Validator).checkWebGL},
		{"plugins", (*Validator).checkPlugins},
		{"fonts", (*Validator).checkFonts},
		{"timing", (*Validator).checkTiming},
		{"screen", (*Validator).checkScreen},
		{"network_class", (*Validator).checkNetworkClass},
	}
	return v
}

// Validate runs the checklist over a fingerprint. The verdict's score is
// the capped weighted sum of triggered signals, scaled to [0,100].
func (v *Validator) Validate(ctx context.Context, fp models.Fingerprint, ip string) Verdict {
	verdict := Verdict{Authentic: true}
	weak := 0

	for _, c := range v.checks {
		triggered, reason := c.run(v, ctx, fp, ip)
		if !triggered {
			continue
		}

		signal := Signal{
			Check:  c.name,
			Weight: v.weightFor(c.name),
			Strong: slices.Contains(v.cfg.StrongSignals, c.name),
			Reason: reason,
		}
		verdict.Signals = append(verdict.Signals, signal)
		verdict.Reasons = append(verdict.Reasons, reason)
		verdict.Score += signal.Weight * 100
		if !signal.Strong {
			weak++
		}
		metrics.ValidationSignals.WithLabelValues(c.name).Inc()
	}

	if verdict.Score > 100 {
		verdict.Score = 100
	}

	for _, s := range verdict.Signals {
		if s.Strong {
			verdict.Authentic = false
			break
		}
	}
	if weak >= v.cfg.WeakSignalLimit {
		verdict.Authentic = false
	}

	outcome := "accepted"
	if !verdict.Authentic {
		outcome = "rejected"
		logging.Warn().
			Str("ip", ip).
			Float64("score", verdict.Score).
			Strs("reasons", verdict.Reasons).
			Msg("Client failed authenticity validation")
	}
	metrics.Validations.WithLabelValues(outcome).Inc()

	return verdict
}

// weightFor returns the configured weight for a check, 0.5 when unset.
func (v *Validator) weightFor(name string) float64 {
	if w, ok := v.cfg.Weights[name]; ok && w > 0 {
		return w
	}
	return 0.5
}

func (v *Validator) checkWebdriver(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	if fp.Webdriver {
		return true, "navigator.webdriver flag set"
	}
	return false, ""
}

func (v *Validator) checkUserAgent(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	ua := strings.ToLower(fp.UserAgent)
	if ua == "" {
		return true, "empty user agent"
	}
	for _, deny := range v.cfg.UserAgentDenylist {
		if strings.Contains(ua, strings.ToLower(deny)) {
			return true, fmt.Sprintf("user agent contains %q", deny)
		}
	}
	return false, ""
}

func (v *Validator) checkCanvas(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	hash := strings.TrimSpace(fp.CanvasHash)
	if hash == "" {
		return true, "canvas fingerprint missing"
	}
	if len(hash) < 16 {
		return true, "canvas fingerprint too short"
	}
	if strings.Count(hash, string(hash[0])) == len(hash) {
		return true, "canvas fingerprint trivial"
	}
	return false, ""
}

func (v *Validator) checkWebGL(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	renderer := strings.ToLower(fp.WebGLRenderer)
	if renderer == "" {
		return true, "webgl renderer missing"
	}
	for _, soft := range v.cfg.SoftwareRenderers {
		if strings.Contains(renderer, strings.ToLower(soft)) {
			return true, fmt.Sprintf("software webgl renderer %q", fp.WebGLRenderer)
		}
	}
	return false, ""
}

func (v *Validator) checkPlugins(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	if fp.PluginCount < v.cfg.MinPlugins {
		return true, fmt.Sprintf("%d browser plugins reported", fp.PluginCount)
	}
	return false, ""
}

func (v *Validator) checkFonts(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	if fp.FontCount < v.cfg.MinFonts {
		return true, fmt.Sprintf("%d fonts reported, floor is %d", fp.FontCount, v.cfg.MinFonts)
	}
	return false, ""
}

func (v *Validator) checkTiming(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	if fp.HandshakeMS < v.cfg.MinHandshakeMS {
		return true, fmt.Sprintf("handshake %.1fms implausibly fast", fp.HandshakeMS)
	}
	if fp.HandshakeMS > v.cfg.MaxHandshakeMS {
		return true, fmt.Sprintf("handshake %.1fms implausibly slow", fp.HandshakeMS)
	}
	return false, ""
}

func (v *Validator) checkScreen(_ context.Context, fp models.Fingerprint, _ string) (bool, string) {
	if fp.ScreenWidth < v.cfg.MinScreenWidth || fp.ScreenHeight < v.cfg.MinScreenHeight {
		return true, fmt.Sprintf("screen %dx%d below exam floor", fp.ScreenWidth, fp.ScreenHeight)
	}
	return false, ""
}

func (v *Validator) checkNetworkClass(ctx context.Context, _ models.Fingerprint, ip string) (bool, string) {
	if v.netintel == nil || ip == "" {
		return false, ""
	}
	class, flagged := v.netintel.Lookup(ctx, ip)
	if flagged {
		return true, fmt.Sprintf("connection from %s network", class)
	}
	return false, ""
}

// IssueChallenge creates a re-validation demand for a session, replacing
// any outstanding one.
func (v *Validator) IssueChallenge(sessionID string) Challenge {
	now := v.now().UTC()
	c := Challenge{
		SessionID: sessionID,
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		Deadline:  now.Add(v.cfg.ChallengeTimeout),
	}
	v.challenges.Store(sessionID, c)

	logging.Info().
		Str("session_id", sessionID).
		Time("deadline", c.Deadline).
		Msg("Validation challenge issued")
	return c
}

// VerifyChallenge consumes the outstanding challenge for a session if the
// nonce matches and the deadline has not passed. The challenge is removed
// on success and on expiry, kept on a nonce mismatch.
func (v *Validator) VerifyChallenge(sessionID, nonce string) error {
	cv, ok := v.challenges.Load(sessionID)
	if !ok {
		return ErrNoChallenge
	}
	c := cv.(Challenge)

	if v.now().After(c.Deadline) {
		v.challenges.Delete(sessionID)
		metrics.Validations.WithLabelValues("challenge_timeout").Inc()
		return ErrChallengeExpired
	}
	if c.Nonce != nonce {
		return ErrNonceMismatch
	}

	v.challenges.Delete(sessionID)
	return nil
}

// PendingChallenge returns the outstanding challenge for a session.
func (v *Validator) PendingChallenge(sessionID string) (Challenge, bool) {
	cv, ok := v.challenges.Load(sessionID)
	if !ok {
		return Challenge{}, false
	}
	return cv.(Challenge), true
}

// CancelChallenge drops an outstanding challenge, if any.
func (v *Validator) CancelChallenge(sessionID string) {
	v.challenges.Delete(sessionID)
}

// ExpiredChallenges returns the sessions whose challenge deadline has
// passed, removing them. Callers terminate those sessions.
func (v *Validator) ExpiredChallenges() []string {
	now := v.now()
	var expired []string
	v.challenges.Range(func(key, value any) bool {
		c := value.(Challenge)
		if now.After(c.Deadline) {
			expired = append(expired, key.(string))
			v.challenges.Delete(key)
			metrics.Validations.WithLabelValues("challenge_timeout").Inc()
		}
		return true
	})
	return expired
}

// RejectGrace is how long the caller should keep the channel open after a
// rejection so the itemized reasons reach the client.
func (v *Validator) RejectGrace() time.Duration {
	if v.cfg.RejectGrace > 0 {
		return v.cfg.RejectGrace
	}
	return 3 * time.Second
}
