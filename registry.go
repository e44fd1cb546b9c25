package main

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// sessionSummary is the lobby-facing view of a session. Full session detail
// is never exposed to non-participants.
type sessionSummary struct {
	SessionID string `json:"sessionId"`
	Players   int    `json:"players"`
	Phase     Phase  `json:"phase"`
}

// Registry owns the collection of sessions: it is the only component with
// creation and destruction authority. Different sessions are fully
// independent; the registry lock only guards the map itself.
type Registry struct {
	clock clockwork.Clock

	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration

	// reap is called outside the registry lock for each session removed
	// by the idle reaper, so the caller can cancel timers and close
	// subscribers.
	reap func(*Session)
}

func newRegistry(clock clockwork.Clock, idleTimeout time.Duration, reap func(*Session)) *Registry {
	rg := &Registry{
		clock:       clock,
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		reap:        reap,
	}
	if idleTimeout > 0 {
		go rg.reaperLoop()
	}
	return rg
}

func (rg *Registry) create() *Session {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	// holding the lock across generate-and-insert keeps the collision
	// check honest under concurrent creates
	id := rg.newSessionIDLocked()
	s := newSession(id, rg.clock)
	rg.sessions[id] = s

	return s
}

func (rg *Registry) get(id string) (*Session, bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	s, ok := rg.sessions[id]
	return s, ok
}

func (rg *Registry) list() []sessionSummary {
	rg.mu.Lock()
	sessions := lo.Values(rg.sessions)
	rg.mu.Unlock()

	return lo.Map(sessions, func(s *Session, _ int) sessionSummary {
		return s.summary()
	})
}

func (rg *Registry) remove(id string) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	delete(rg.sessions, id)
}

// newSessionIDLocked generates a crypto-random session ID and ensures it
// doesn't collide with existing sessions. Callers must hold rg.mu.
func (rg *Registry) newSessionIDLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := rg.sessions[id]; !exists {
			return id
		}
	}
}

// reaperLoop periodically removes sessions that have been idle longer than
// idleTimeout.
func (rg *Registry) reaperLoop() {
	ticker := rg.clock.NewTicker(rg.idleTimeout / 2)
	for range ticker.Chan() {
		cutoff := rg.clock.Now().Add(-rg.idleTimeout)

		rg.mu.Lock()
		var reaped []*Session
		for id, s := range rg.sessions {
			if s.idleSince().Before(cutoff) {
				delete(rg.sessions, id)
				reaped = append(reaped, s)
			}
		}
		rg.mu.Unlock()

		for _, s := range reaped {
			if rg.reap != nil {
				rg.reap(s)
			}
		}
	}
}
