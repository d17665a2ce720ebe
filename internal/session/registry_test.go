// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		PoolSize:      4,
		IdleTimeout:   7 * time.Minute,
		SweepInterval: time.Minute,
		TokenSecret:   "test-secret-0123456789abcdef0123",
		TokenTTL:      2 * time.Minute,
		MaxEventRate:  50,
		EventBurst:    100,
	}
}

// testRegistry builds a registry over an in-memory badger instance
// with a fixed clock. Tests advance time through the returned pointer.
func testRegistry(t *testing.T, cfg config.SessionConfig) (*Registry, *time.Time) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})

	r, err := NewRegistry(db, cfg)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	current := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	return r, &current
}

func mustAllocate(t *testing.T, r *Registry, examID, studentID string) *Session {
	t.Helper()

	s, err := r.Allocate(AllocateRequest{
		ExamID:    examID,
		StudentID: studentID,
		SourceIP:  "198.51.100.10",
		UserAgent: "Mozilla/5.0",
	})
	if err != nil {
		t.Fatalf("Allocate(%s, %s) failed: %v", examID, studentID, err)
	}

	return s
}

func assertTerminated(t *testing.T, s *Session, reason string) {
	t.Helper()

	select {
	case <-s.Context().Done():
	default:
		t.Fatalf("session %s context still open", s.SessionID)
	}
	if got := s.TerminationReason(); got != reason {
		t.Errorf("TerminationReason() = %q, want %q", got, reason)
	}
}

func TestAllocateMintsResolvableToken(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")

	if s.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if s.Slot != 0 {
		t.Errorf("Slot = %d, want 0", s.Slot)
	}
	if s.Token == "" {
		t.Error("Token is empty")
	}
	if got := s.State(); got != StateActive {
		t.Errorf("State() = %q, want %q", got, StateActive)
	}
	if want := "/api/v1/monitor/ws?token=" + s.Token; s.Endpoint() != want {
		t.Errorf("Endpoint() = %q, want %q", s.Endpoint(), want)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	resolved, err := r.Resolve(s.Token)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if resolved != s {
		t.Error("Resolve() returned a different session")
	}
}

func TestAllocateAssignsDistinctSlots(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	for i, student := range []string{"stu-1", "stu-2", "stu-3"} {
		s := mustAllocate(t, r, "exam-1", student)
		if s.Slot != i {
			t.Errorf("session %d: Slot = %d, want %d", i, s.Slot, i)
		}
	}
}

func TestAllocatePoolExhausted(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	sessions := make([]*Session, 0, 4)
	for _, student := range []string{"stu-1", "stu-2", "stu-3", "stu-4"} {
		sessions = append(sessions, mustAllocate(t, r, "exam-1", student))
	}

	_, err := r.Allocate(AllocateRequest{ExamID: "exam-1", StudentID: "stu-5"})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Allocate() error = %v, want ErrPoolExhausted", err)
	}

	// Freeing any slot makes room again, and the freed slot is reused.
	freed := sessions[2]
	if !r.Release(freed.SessionID, ReasonCompleted) {
		t.Fatal("Release() found no session")
	}

	s := mustAllocate(t, r, "exam-1", "stu-5")
	if s.Slot != freed.Slot {
		t.Errorf("Slot = %d, want reused slot %d", s.Slot, freed.Slot)
	}
}

func TestAllocateReplacesExistingAttempt(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	first := mustAllocate(t, r, "exam-1", "stu-1")
	second := mustAllocate(t, r, "exam-1", "stu-1")

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if second.SessionID == first.SessionID {
		t.Error("replacement reused the session ID")
	}
	if second.Slot != first.Slot {
		t.Errorf("Slot = %d, want reclaimed slot %d", second.Slot, first.Slot)
	}
	assertTerminated(t, first, ReasonReplaced)

	if _, err := r.Resolve(first.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Resolve(old token) error = %v, want ErrTokenRevoked", err)
	}
	if _, err := r.Resolve(second.Token); err != nil {
		t.Errorf("Resolve(new token) failed: %v", err)
	}
}

func TestAllocateRequiresIdentity(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	if _, err := r.Allocate(AllocateRequest{ExamID: "exam-1"}); err == nil {
		t.Error("Allocate() without student ID succeeded")
	}
	if _, err := r.Allocate(AllocateRequest{StudentID: "stu-1"}); err == nil {
		t.Error("Allocate() without exam ID succeeded")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")

	if !r.Release(s.SessionID, ReasonCompleted) {
		t.Fatal("first Release() found no session")
	}
	if r.Release(s.SessionID, ReasonCompleted) {
		t.Error("second Release() reported a session")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if got := s.State(); got != StateCompleted {
		t.Errorf("State() = %q, want %q", got, StateCompleted)
	}
	assertTerminated(t, s, ReasonCompleted)
}

func TestReleaseRevokesToken(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")
	r.Release(s.SessionID, ReasonCompleted)

	if _, err := r.Resolve(s.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Resolve() error = %v, want ErrTokenRevoked", err)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	if _, err := r.Resolve("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve() error = %v, want ErrTokenInvalid", err)
	}
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	r, clock := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")

	*clock = clock.Add(3 * time.Minute)

	if _, err := r.Resolve(s.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve() error = %v, want ErrTokenInvalid", err)
	}
	// The session itself stays live; only the dial window has closed.
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestResolveRejectsForeignSecret(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	other := testSessionConfig()
	other.TokenSecret = "another-secret-entirely-32-bytes"
	r2, _ := testRegistry(t, other)

	s := mustAllocate(t, r2, "exam-1", "stu-1")

	if _, err := r.Resolve(s.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve() error = %v, want ErrTokenInvalid", err)
	}
}

func TestResolveUnknownSession(t *testing.T) {
	r, clock := testRegistry(t, testSessionConfig())

	// Valid signature, valid expiry, but no session behind it.
	claims := &Claims{
		SessionID: uuid.NewString(),
		ExamID:    "exam-9",
		StudentID: "stu-9",
		Slot:      1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(*clock),
			ExpiresAt: jwt.NewNumericDate(clock.Add(time.Minute)),
		},
	}
	token, err := mintToken(r.secret, claims)
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	if _, err := r.Resolve(token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Resolve() error = %v, want ErrSessionNotFound", err)
	}
}

func TestIdleSweepReclaimsAbandonedSessions(t *testing.T) {
	r, clock := testRegistry(t, testSessionConfig())

	abandoned := mustAllocate(t, r, "exam-1", "stu-1")
	active := mustAllocate(t, r, "exam-1", "stu-2")

	*clock = clock.Add(8 * time.Minute)
	active.Touch(*clock)

	if n := r.sweepOnce(); n != 1 {
		t.Fatalf("sweepOnce() = %d, want 1", n)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	assertTerminated(t, abandoned, ReasonIdle)

	if _, ok := r.Get(active.SessionID); !ok {
		t.Error("active session was swept")
	}
}

func TestIdleSweepSkipsConnectedSessions(t *testing.T) {
	r, clock := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")
	s.Attach()

	*clock = clock.Add(10 * time.Minute)

	if n := r.sweepOnce(); n != 0 {
		t.Fatalf("sweepOnce() with live connection = %d, want 0", n)
	}

	// Once the last connection drops the stale activity counts again.
	s.Detach()
	if n := r.sweepOnce(); n != 1 {
		t.Fatalf("sweepOnce() after disconnect = %d, want 1", n)
	}
	assertTerminated(t, s, ReasonIdle)
}

func TestCloseReleasesEverything(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	sessions := []*Session{
		mustAllocate(t, r, "exam-1", "stu-1"),
		mustAllocate(t, r, "exam-1", "stu-2"),
		mustAllocate(t, r, "exam-2", "stu-1"),
	}

	r.Close()
	r.Close()

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	for _, s := range sessions {
		assertTerminated(t, s, ReasonShutdown)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	s := mustAllocate(t, r, "exam-1", "stu-1")
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}

	assertTerminated(t, s, ReasonShutdown)
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestListOrdersByStartTime(t *testing.T) {
	r, clock := testRegistry(t, testSessionConfig())

	first := mustAllocate(t, r, "exam-1", "stu-1")
	*clock = clock.Add(time.Second)
	second := mustAllocate(t, r, "exam-1", "stu-2")
	*clock = clock.Add(time.Second)
	third := mustAllocate(t, r, "exam-2", "stu-1")

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(list))
	}
	for i, want := range []*Session{first, second, third} {
		if list[i] != want {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].SessionID, want.SessionID)
		}
	}
}

func TestSessionSnapshot(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	s := mustAllocate(t, r, "exam-1", "stu-1")
	s.Attach()

	snap := s.Snapshot()
	if snap.SessionID != s.SessionID {
		t.Errorf("SessionID = %q, want %q", snap.SessionID, s.SessionID)
	}
	if snap.State != StateActive {
		t.Errorf("State = %q, want %q", snap.State, StateActive)
	}
	if snap.EndpointSlot != s.Slot {
		t.Errorf("EndpointSlot = %d, want %d", snap.EndpointSlot, s.Slot)
	}
	if snap.ConnectionCount != 1 {
		t.Errorf("ConnectionCount = %d, want 1", snap.ConnectionCount)
	}
	if !snap.StartTime.Equal(s.StartTime) {
		t.Errorf("StartTime = %v, want %v", snap.StartTime, s.StartTime)
	}
	if snap.SourceIP != "198.51.100.10" {
		t.Errorf("SourceIP = %q, want 198.51.100.10", snap.SourceIP)
	}
}

func TestAllowEventBudget(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxEventRate = 0.0001
	cfg.EventBurst = 2
	r, _ := testRegistry(t, cfg)

	s := mustAllocate(t, r, "exam-1", "stu-1")

	for i := 0; i < 2; i++ {
		if !s.AllowEvent() {
			t.Fatalf("AllowEvent() call %d = false, want true", i+1)
		}
	}
	if s.AllowEvent() {
		t.Error("AllowEvent() beyond burst = true, want false")
	}
}

func TestNewRegistryGeneratesSecretWhenEmpty(t *testing.T) {
	cfg := testSessionConfig()
	cfg.TokenSecret = ""

	a, err := NewRegistry(nil, cfg)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	b, err := NewRegistry(nil, cfg)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	s := mustAllocate(t, a, "exam-1", "stu-1")
	if _, err := a.Resolve(s.Token); err != nil {
		t.Errorf("Resolve() with own generated secret failed: %v", err)
	}
	if _, err := b.Resolve(s.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Resolve() across registries error = %v, want ErrTokenInvalid", err)
	}
}

func TestOnReleaseListener(t *testing.T) {
	r, _ := testRegistry(t, testSessionConfig())

	type releaseCall struct {
		sessionID string
		reason    string
	}
	var calls []releaseCall
	r.OnRelease(func(s *Session, reason string) {
		// Listeners run outside the registry lock, so calling back in
		// must not deadlock.
		_ = r.Count()
		calls = append(calls, releaseCall{s.SessionID, reason})
	})

	first := mustAllocate(t, r, "exam-1", "stu-1")
	second := mustAllocate(t, r, "exam-1", "stu-1")
	r.Release(second.SessionID, ReasonCompleted)

	want := []releaseCall{
		{first.SessionID, ReasonReplaced},
		{second.SessionID, ReasonCompleted},
	}
	if len(calls) != len(want) {
		t.Fatalf("listener saw %d releases, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("release %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestMemoryRevocationsLapseAfterTTL(t *testing.T) {
	current := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	rev := newMemoryRevocations(func() time.Time { return current })

	if err := rev.revoke("jti-1", 2*time.Minute); err != nil {
		t.Fatalf("revoke() failed: %v", err)
	}

	revoked, err := rev.isRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("isRevoked() = %v, %v, want true, nil", revoked, err)
	}

	current = current.Add(3 * time.Minute)

	revoked, err = rev.isRevoked("jti-1")
	if err != nil || revoked {
		t.Errorf("isRevoked() after TTL = %v, %v, want false, nil", revoked, err)
	}
}
