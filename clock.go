package main

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// armedTimer pairs a one-shot timer with the turn generation it was armed
// for and the channel that tells its goroutine to stand down.
type armedTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
	gen   uint64
}

// turnClock owns one outstanding timer per session while a game is in
// progress. Arming replaces any previous timer; cancelling stops it. A
// fire that slips through anyway (timer expired concurrently with its
// replacement) is harmless: the callback carries the turn generation it
// was armed for, and Session.forceTimeout ignores stale generations.
type turnClock struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*armedTimer
}

func newTurnClock(clock clockwork.Clock) *turnClock {
	return &turnClock{
		clock:  clock,
		timers: make(map[string]*armedTimer),
	}
}

// arm schedules fire to run after d, replacing any existing timer for the
// session unless that timer belongs to a newer turn generation (a delayed
// arm request for an already-ended turn must not displace the live one).
// fire runs on its own goroutine and must re-enter the session through
// its normal lock.
func (tc *turnClock) arm(sessionID string, gen uint64, d time.Duration, fire func()) {
	tc.mu.Lock()
	if existing, ok := tc.timers[sessionID]; ok {
		if existing.gen >= gen {
			tc.mu.Unlock()
			return
		}
		close(existing.stop)
	}

	at := &armedTimer{
		timer: tc.clock.NewTimer(d),
		stop:  make(chan struct{}),
		gen:   gen,
	}
	tc.timers[sessionID] = at
	tc.mu.Unlock()

	go func() {
		select {
		case <-at.timer.Chan():
			// a replaced or cancelled timer may still expire before its
			// goroutine observes stop; only the timer still on record
			// for the session is allowed to fire
			tc.mu.Lock()
			current := tc.timers[sessionID] == at
			if current {
				delete(tc.timers, sessionID)
			}
			tc.mu.Unlock()

			if current {
				fire()
			}
		case <-at.stop:
			stopAndDrainTimer(at.timer)
		}
	}()
}

// cancel stops and discards the session's outstanding timer, if any.
func (tc *turnClock) cancel(sessionID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if at, ok := tc.timers[sessionID]; ok {
		close(at.stop)
		delete(tc.timers, sessionID)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
