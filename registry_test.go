package main

import (
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateGetRemove(t *testing.T) {
	rg := newRegistry(clockwork.NewRealClock(), 0, nil)

	s := rg.create()
	require.NotEmpty(t, s.id)
	assert.Equal(t, PhaseWaiting, s.snapshot().Phase)

	got, ok := rg.get(s.id)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = rg.get("nosuchid")
	assert.False(t, ok)

	rg.remove(s.id)
	_, ok = rg.get(s.id)
	assert.False(t, ok)
}

func TestRegistryUniqueIDs(t *testing.T) {
	rg := newRegistry(clockwork.NewRealClock(), 0, nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := rg.create()
		require.False(t, seen[s.id], "duplicate session id %q", s.id)
		require.Len(t, s.id, 8)
		seen[s.id] = true
	}
}

func TestRegistryList(t *testing.T) {
	rg := newRegistry(clockwork.NewRealClock(), 0, nil)

	waiting := rg.create()
	running := rg.create()
	_, _, err := running.join("alice", "cookie-alice", testTurnTimeout)
	require.NoError(t, err)
	_, _, err = running.join("bob", "cookie-bob", testTurnTimeout)
	require.NoError(t, err)

	summaries := rg.list()
	require.Len(t, summaries, 2)

	byID := lo.KeyBy(summaries, func(sum sessionSummary) string {
		return sum.SessionID
	})

	assert.Equal(t, sessionSummary{SessionID: waiting.id, Players: 0, Phase: PhaseWaiting}, byID[waiting.id])
	assert.Equal(t, sessionSummary{SessionID: running.id, Players: 2, Phase: PhaseInProgress}, byID[running.id])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	rg := newRegistry(clockwork.NewRealClock(), 0, nil)

	var (
		mu  sync.Mutex
		ids = make(map[string]bool)
	)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s := rg.create()
				_, ok := rg.get(s.id)
				assert.True(t, ok)
				_ = rg.list()

				mu.Lock()
				ids[s.id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// concurrent creates must never mint the same ID and silently
	// overwrite each other's session
	assert.Len(t, ids, 16*25)
	assert.Len(t, rg.list(), 16*25)
}
