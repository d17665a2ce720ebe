// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package response

import (
	"sync"
	"time"
)

type cooldownKey struct {
	action    Action
	sessionID string
}

// cooldownGate suppresses repeats of an action against one session
// inside the configured window. Suppressed actions are dropped, never
// queued for later. An absent or zero window always passes.
type cooldownGate struct {
	windows map[string]time.Duration

	mu   sync.Mutex
	last map[cooldownKey]time.Time

	// now is swappable for tests.
	now func() time.Time
}

func newCooldownGate(windows map[string]time.Duration) *cooldownGate {
	return &cooldownGate{
		windows: windows,
		last:    make(map[cooldownKey]time.Time),
		now:     time.Now,
	}
}

// allow reports whether the action may run for the session now, and if
// so starts a new window.
func (g *cooldownGate) allow(action Action, sessionID string) bool {
	window := g.windows[string(action)]
	if window <= 0 {
		return true
	}

	key := cooldownKey{action: action, sessionID: sessionID}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[key]; ok && now.Sub(last) < window {
		return false
	}
	g.last[key] = now
	return true
}

// forget discards all windows held for a session.
func (g *cooldownGate) forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.last {
		if key.sessionID == sessionID {
			delete(g.last, key)
		}
	}
}
