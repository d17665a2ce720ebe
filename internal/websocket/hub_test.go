// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/session"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func newTestRegistry(t *testing.T) *session.Registry {
	t.Helper()
	reg, err := session.NewRegistry(nil, config.SessionConfig{
		PoolSize:      16,
		IdleTimeout:   time.Minute,
		SweepInterval: time.Minute,
		TokenTTL:      time.Minute,
		TokenSecret:   "websocket-test-secret-0123456789",
		MaxEventRate:  1000,
		EventBurst:    1000,
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return reg
}

func allocateSession(t *testing.T, reg *session.Registry, examID, studentID string) *session.Session {
	t.Helper()
	s, err := reg.Allocate(session.AllocateRequest{
		ExamID:    examID,
		StudentID: studentID,
		SourceIP:  "198.51.100.7",
		UserAgent: "Mozilla/5.0",
	})
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	return s
}

// newTestClient builds a client that is never started, so the nil conn
// is never touched.
func newTestClient(hub *Hub, sess *session.Session) *Client {
	return NewClient(hub, nil, sess, nil)
}

// setupHub starts a hub and stops it when the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.Register <- c
	waitForCount(t, hub, c.session.SessionID, 1)
}

// waitForCount polls until the session holds want connections.
func waitForCount(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SessionClientCount(sessionID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s client count never reached %d (now %d)",
		sessionID, want, hub.SessionClientCount(sessionID))
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.bySession == nil {
		t.Error("bySession map not initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel not initialized")
	}
	if hub.Register == nil || hub.Unregister == nil {
		t.Error("lifecycle channels not initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestHubRegistersAndUnregistersClient(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)
	sess := allocateSession(t, reg, "exam-1", "stu-1")
	client := newTestClient(hub, sess)

	registerAndWait(t, hub, client)

	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
	if sess.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount() = %d, want 1", sess.ConnectionCount())
	}

	hub.Unregister <- client
	waitForCount(t, hub, sess.SessionID, 0)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() after unregister = %d, want 0", hub.ClientCount())
	}
	if sess.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() after unregister = %d, want 0", sess.ConnectionCount())
	}
	select {
	case <-client.done:
	default:
		t.Error("done channel not closed on unregister")
	}
}

func TestHubUnregisterUnknownClientIsHarmless(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)
	client := newTestClient(hub, allocateSession(t, reg, "exam-1", "stu-1"))

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	select {
	case <-client.done:
		t.Error("done channel closed for a client that was never registered")
	default:
	}
}

func TestHubSendToSessionTargetsOneSession(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)

	sessA := allocateSession(t, reg, "exam-1", "stu-a")
	sessB := allocateSession(t, reg, "exam-1", "stu-b")

	a1 := newTestClient(hub, sessA)
	a2 := newTestClient(hub, sessA)
	b1 := newTestClient(hub, sessB)

	registerAndWait(t, hub, a1)
	hub.Register <- a2
	waitForCount(t, hub, sessA.SessionID, 2)
	registerAndWait(t, hub, b1)

	delivered := hub.SendToSession(sessA.SessionID, Message{Type: MessageTypeSecurityWarning})
	if delivered != 2 {
		t.Errorf("SendToSession() delivered = %d, want 2", delivered)
	}

	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeSecurityWarning {
				t.Errorf("received type %q, want %q", msg.Type, MessageTypeSecurityWarning)
			}
		default:
			t.Error("session A client did not receive the frame")
		}
	}
	select {
	case msg := <-b1.send:
		t.Errorf("session B client received %q, want nothing", msg.Type)
	default:
	}
}

func TestHubSendToSessionUnknownSession(t *testing.T) {
	hub := setupHub(t)

	if n := hub.SendToSession("ghost", Message{Type: MessageTypePong}); n != 0 {
		t.Errorf("SendToSession() = %d, want 0", n)
	}
}

func TestHubSendToSessionDropsSaturatedClient(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)
	sess := allocateSession(t, reg, "exam-1", "stu-1")

	slow := &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		session: sess,
		send:    make(chan Message, 1),
		done:    make(chan struct{}),
	}
	registerAndWait(t, hub, slow)

	slow.send <- Message{Type: MessageTypePong}

	delivered := hub.SendToSession(sess.SessionID, Message{Type: MessageTypeSecurityWarning})
	if delivered != 0 {
		t.Errorf("SendToSession() delivered = %d, want 0", delivered)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 after dropping the slow client", hub.ClientCount())
	}
	select {
	case <-slow.done:
	default:
		t.Error("saturated client was not signalled to stop")
	}
}

func TestHubBroadcastReachesEveryClient(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)

	const numClients = 3
	clients := make([]*Client, numClients)
	for i := 0; i < numClients; i++ {
		sess := allocateSession(t, reg, "exam-1", "stu-"+string(rune('a'+i)))
		clients[i] = newTestClient(hub, sess)
		registerAndWait(t, hub, clients[i])
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	received := make([]bool, numClients)
	for i := range clients {
		wg.Add(1)
		go func(idx int, c *Client) {
			defer wg.Done()
			select {
			case msg := <-c.send:
				if msg.Type == MessageTypeRiskUpdate {
					mu.Lock()
					received[idx] = true
					mu.Unlock()
				}
			case <-time.After(time.Second):
			}
		}(i, clients[i])
	}

	hub.BroadcastJSON(MessageTypeRiskUpdate, map[string]float64{"overall_risk": 42})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, ok := range received {
		if !ok {
			t.Errorf("client %d did not receive the broadcast", i)
		}
	}
}

func TestHubShutdownClosesEveryClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- hub.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	reg := newTestRegistry(t)
	sess := allocateSession(t, reg, "exam-1", "stu-1")
	c1 := newTestClient(hub, sess)
	c2 := newTestClient(hub, sess)
	hub.Register <- c1
	hub.Register <- c2
	waitForCount(t, hub, sess.SessionID, 2)

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if sess.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", sess.ConnectionCount())
	}
	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.done:
		default:
			t.Error("client not signalled during shutdown")
		}
	}
}

func TestHubConcurrentOperations(t *testing.T) {
	hub := setupHub(t)
	reg := newTestRegistry(t)

	clients := make([]*Client, 10)
	for i := range clients {
		sess := allocateSession(t, reg, "exam-load", "stu-"+string(rune('a'+i)))
		clients[i] = newTestClient(hub, sess)
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for _, c := range clients {
			hub.Register <- c
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			hub.BroadcastJSON(MessageTypeRiskUpdate, map[string]int{"i": i})
			time.Sleep(2 * time.Millisecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			hub.ClientCount()
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() != 10 {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 10 {
		t.Errorf("ClientCount() = %d, want 10", hub.ClientCount())
	}
}
