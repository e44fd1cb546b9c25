package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(buffer int) *wsClient {
	return &wsClient{
		id:   "test-conn",
		send: make(chan any, buffer),
	}
}

func TestGatewayBroadcastDropsSlowClient(t *testing.T) {
	cfg := testConfig()
	g := newGateway()

	slow := testClient(1)
	g.subscribe("session1", slow)

	g.broadcast(cfg, "session1", "first")  // fills the buffer
	g.broadcast(cfg, "session1", "second") // no room left, client dropped

	assert.Empty(t, g.subs["session1"])

	// the send channel is closed so the write pump drains and exits
	msg, ok := <-slow.send
	assert.Equal(t, "first", msg)
	assert.True(t, ok)
	_, ok = <-slow.send
	assert.False(t, ok)
}

func TestGatewayAddressedAfterDrop(t *testing.T) {
	cfg := testConfig()
	g := newGateway()

	slow := testClient(1)
	g.subscribe("session1", slow)

	g.broadcast(cfg, "session1", "first")
	g.broadcast(cfg, "session1", "second")

	// the client's own read pump may be mid-submission when a broadcast
	// drops it; its rejection notice must be discarded, never sent on
	// the closed channel
	require.NotPanics(t, func() {
		g.addressed(cfg, slow, "late reply")
	})
}

func TestGatewayAddressedBeforeSubscribe(t *testing.T) {
	cfg := testConfig()
	g := newGateway()

	// error notices go out before a client has joined a session
	c := testClient(1)
	g.addressed(cfg, c, "hello")

	assert.Equal(t, "hello", <-c.send)
}

func TestGatewayUnsubscribeUnknownClient(t *testing.T) {
	cfg := testConfig()
	g := newGateway()

	c := testClient(1)
	g.subscribe("session1", c)
	g.unsubscribe(cfg, c)

	require.NotPanics(t, func() {
		g.unsubscribe(cfg, c)
	})
}
