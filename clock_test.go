package main

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnClockFires(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tc := newTurnClock(fc)

	var fired atomic.Int32
	tc.arm("sess", 1, time.Minute, func() {
		fired.Add(1)
	})

	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestTurnClockCancel(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tc := newTurnClock(fc)

	var fired atomic.Int32
	tc.arm("sess", 1, time.Minute, func() {
		fired.Add(1)
	})

	fc.BlockUntil(1)
	tc.cancel("sess")
	fc.Advance(time.Hour)

	assert.Never(t, func() bool {
		return fired.Load() != 0
	}, 50*time.Millisecond, 5*time.Millisecond, "cancelled timer must not fire")
}

func TestTurnClockRearmReplacesOlderGeneration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tc := newTurnClock(fc)

	var gen1, gen2 atomic.Int32
	tc.arm("sess", 1, time.Minute, func() { gen1.Add(1) })
	fc.BlockUntil(1)

	tc.arm("sess", 2, time.Minute, func() { gen2.Add(1) })
	fc.BlockUntil(1)

	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return gen2.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, gen1.Load(), "replaced timer must not fire")
}

func TestTurnClockIgnoresStaleArm(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tc := newTurnClock(fc)

	var gen2, gen1 atomic.Int32
	tc.arm("sess", 2, time.Minute, func() { gen2.Add(1) })
	fc.BlockUntil(1)

	// a delayed arm request for an already-ended turn must not displace
	// the live timer
	tc.arm("sess", 1, time.Hour, func() { gen1.Add(1) })

	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return gen2.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, gen1.Load())
}

func TestTurnClockIndependentSessions(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tc := newTurnClock(fc)

	var a, b atomic.Int32
	tc.arm("sess-a", 1, time.Minute, func() { a.Add(1) })
	tc.arm("sess-b", 1, 2*time.Minute, func() { b.Add(1) })

	fc.BlockUntil(2)
	fc.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return a.Load() == 1
	}, time.Second, time.Millisecond)
	assert.Zero(t, b.Load())

	fc.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return b.Load() == 1
	}, time.Second, time.Millisecond)
}
