// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package session allocates monitoring sessions over a bounded pool of
// endpoint slots and resolves signed endpoint tokens back to their
// session. One student gets one live session per exam; starting again
// terminates and replaces the previous one. Idle sessions are swept on
// a fixed cadence so abandoned attempts cannot pin slots.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"golang.org/x/time/rate"
)

// ErrPoolExhausted is returned by Allocate when every endpoint slot is
// taken. The API layer maps it to 503 POOL_EXHAUSTED.
var ErrPoolExhausted = errors.New("endpoint pool exhausted")

// AllocateRequest carries the identity of the exam attempt requesting
// a monitoring endpoint.
type AllocateRequest struct {
	ExamID    string
	StudentID string
	SourceIP  string
	UserAgent string
}

// ReleaseListener observes session releases. Listeners run on the
// releasing goroutine after the registry lock is dropped, so they may
// call back into the registry.
type ReleaseListener func(s *Session, reason string)

// Registry owns the endpoint slot pool and every live session. All
// index mutations happen under one mutex; per-session hot-path state
// lives in atomics on the Session itself.
type Registry struct {
	cfg     config.SessionConfig
	secret  []byte
	revoked revocations

	mu        sync.Mutex
	sessions  map[string]*Session
	byAttempt map[string]string
	slots     []bool

	listenerMu       sync.RWMutex
	releaseListeners []ReleaseListener

	now func() time.Time
}

// NewRegistry builds a registry over db for token revocation
// persistence. A nil db keeps revocations in process memory. An empty
// configured token secret is replaced with a random ephemeral one.
func NewRegistry(db *badger.DB, cfg config.SessionConfig) (*Registry, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 64
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 7 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Minute
	}
	if cfg.MaxEventRate <= 0 {
		cfg.MaxEventRate = 50
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = 100
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate endpoint token secret: %w", err)
		}
		logging.Warn().Msg("No endpoint token secret configured, generated an ephemeral one; endpoints will not survive a restart")
	}

	// The configured secret never signs tokens directly; the signing
	// key is derived per purpose so the secret can be shared with other
	// subsystems without cross-protocol reuse.
	signingKey, err := deriveSigningKey(secret)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		cfg:       cfg,
		secret:    signingKey,
		sessions:  make(map[string]*Session),
		byAttempt: make(map[string]string),
		slots:     make([]bool, cfg.PoolSize),
		now:       time.Now,
	}

	if db != nil {
		r.revoked = newBadgerRevocations(db)
	} else {
		r.revoked = newMemoryRevocations(func() time.Time { return r.now() })
	}

	return r, nil
}

// OnRelease registers a listener for session releases. Register all
// listeners before traffic starts.
func (r *Registry) OnRelease(fn ReleaseListener) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.releaseListeners = append(r.releaseListeners, fn)
}

func (r *Registry) notifyRelease(s *Session, reason string) {
	r.listenerMu.RLock()
	listeners := r.releaseListeners
	r.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(s, reason)
	}
}

// Allocate reserves an endpoint slot for the attempt and mints its
// endpoint token. An existing session for the same (exam, student)
// pair is terminated and replaced, never duplicated.
func (r *Registry) Allocate(req AllocateRequest) (*Session, error) {
	if req.ExamID == "" || req.StudentID == "" {
		return nil, errors.New("exam and student IDs are required")
	}

	r.mu.Lock()
	s, replaced, err := r.allocateLocked(req)
	r.mu.Unlock()

	if replaced != nil {
		r.notifyRelease(replaced, ReasonReplaced)
	}
	return s, err
}

func (r *Registry) allocateLocked(req AllocateRequest) (*Session, *Session, error) {
	var replaced *Session
	attemptKey := attemptKey(req.ExamID, req.StudentID)
	if existingID, ok := r.byAttempt[attemptKey]; ok {
		if existing := r.sessions[existingID]; existing != nil {
			r.releaseLocked(existing, ReasonReplaced)
			replaced = existing
		}
	}

	slot := -1
	for i, used := range r.slots {
		if !used {
			slot = i
			break
		}
	}
	if slot == -1 {
		metrics.EndpointAllocationFailures.Inc()
		logging.Warn().
			Str("exam_id", req.ExamID).
			Str("student_id", req.StudentID).
			Int("pool_size", r.cfg.PoolSize).
			Msg("Endpoint pool exhausted")
		return nil, replaced, ErrPoolExhausted
	}

	now := r.now()
	sessionID := uuid.NewString()
	jti := uuid.NewString()
	expiresAt := now.Add(r.cfg.TokenTTL)

	claims := &Claims{
		SessionID: sessionID,
		ExamID:    req.ExamID,
		StudentID: req.StudentID,
		Slot:      slot,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   req.StudentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := mintToken(r.secret, claims)
	if err != nil {
		return nil, replaced, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		SessionID: sessionID,
		ExamID:    req.ExamID,
		StudentID: req.StudentID,
		Slot:      slot,
		Token:     token,
		TokenID:   jti,
		ExpiresAt: expiresAt,
		StartTime: now,
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(r.cfg.MaxEventRate), r.cfg.EventBurst),
		state:     StateActive,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.Touch(now)

	r.slots[slot] = true
	r.sessions[sessionID] = s
	r.byAttempt[attemptKey] = sessionID

	metrics.SessionsActive.Inc()
	metrics.EndpointsAllocated.Inc()

	logging.Info().
		Str("session_id", sessionID).
		Str("exam_id", req.ExamID).
		Str("student_id", req.StudentID).
		Int("slot", slot).
		Time("token_expires", expiresAt).
		Msg("Monitoring session allocated")

	return s, replaced, nil
}

// Release frees the session's slot, revokes its token and cancels its
// context. Releasing an unknown session is a no-op, so double stops
// and sweep races are harmless. Reports whether a session was found.
func (r *Registry) Release(sessionID, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		r.releaseLocked(s, reason)
	}
	r.mu.Unlock()

	if ok {
		r.notifyRelease(s, reason)
	}
	return ok
}

func (r *Registry) releaseLocked(s *Session, reason string) {
	delete(r.sessions, s.SessionID)
	delete(r.byAttempt, attemptKey(s.ExamID, s.StudentID))
	if s.Slot >= 0 && s.Slot < len(r.slots) {
		r.slots[s.Slot] = false
	}

	if remaining := s.ExpiresAt.Sub(r.now()); remaining > 0 {
		if err := r.revoked.revoke(s.TokenID, remaining); err != nil {
			logging.Warn().Err(err).
				Str("session_id", s.SessionID).
				Msg("Failed to revoke endpoint token")
		}
	}

	s.finish(reason)

	metrics.SessionsActive.Dec()
	metrics.EndpointsAllocated.Dec()
	metrics.SessionsReclaimed.WithLabelValues(reason).Inc()

	logging.Info().
		Str("session_id", s.SessionID).
		Str("exam_id", s.ExamID).
		Str("student_id", s.StudentID).
		Str("reason", reason).
		Int("slot", s.Slot).
		Msg("Monitoring session released")
}

// Resolve verifies an endpoint token and returns the live session it
// was minted for. Every websocket upgrade goes through here.
func (r *Registry) Resolve(tokenString string) (*Session, error) {
	claims, err := parseToken(r.secret, tokenString, r.now)
	if err != nil {
		return nil, err
	}

	revoked, err := r.revoked.isRevoked(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[claims.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.TokenID != claims.ID {
		return nil, ErrTokenInvalid
	}

	return s, nil
}

// Get returns the live session with the given ID.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	return s, ok
}

// List returns every live session ordered by start time.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})

	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run drives the idle sweep until ctx is cancelled, then releases
// every remaining session so connected clients get a shutdown frame
// before the process exits.
func (r *Registry) Run(ctx context.Context) error {
	logging.Info().
		Dur("sweep_interval", r.cfg.SweepInterval).
		Dur("idle_timeout", r.cfg.IdleTimeout).
		Int("pool_size", r.cfg.PoolSize).
		Msg("Session registry started")

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			logging.Info().Msg("Session registry stopped")
			return ctx.Err()
		case <-ticker.C:
			if n := r.sweepOnce(); n > 0 {
				logging.Info().Int("reclaimed", n).Msg("Idle sessions reclaimed")
			}
		}
	}
}

// sweepOnce releases sessions with zero connections and no activity
// inside the idle window. A freshly allocated session counts its start
// as activity, so a client that never connects still gets the full
// window before its slot is reclaimed.
func (r *Registry) sweepOnce() int {
	r.mu.Lock()
	var released []*Session
	now := r.now()
	for _, s := range r.sessions {
		if s.ConnectionCount() > 0 {
			continue
		}
		if now.Sub(s.LastActivity()) < r.cfg.IdleTimeout {
			continue
		}
		r.releaseLocked(s, ReasonIdle)
		released = append(released, s)
	}
	r.mu.Unlock()

	for _, s := range released {
		r.notifyRelease(s, ReasonIdle)
	}
	return len(released)
}

// Close releases every remaining session with the shutdown reason.
// Safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	released := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		r.releaseLocked(s, ReasonShutdown)
		released = append(released, s)
	}
	r.mu.Unlock()

	for _, s := range released {
		r.notifyRelease(s, ReasonShutdown)
	}
}

func attemptKey(examID, studentID string) string {
	return examID + "\x00" + studentID
}
