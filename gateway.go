package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// wsClient is one subscribed socket. The gateway holds it only for
// delivery; game state never lives here.
type wsClient struct {
	id       string // connection id, logs only
	conn     *websocket.Conn
	send     chan any
	playerID string // cookie identity

	// set once the socket has joined a session
	sessionID string
	username  string

	// set under the gateway mutex when the gateway closes send, so an
	// addressed reply racing a drop from another goroutine's broadcast
	// never writes to the closed channel
	dropped bool
}

// Gateway fans state-change events out to every socket subscribed to a
// session. Delivery is fire-and-forget: a slow or dead subscriber is
// dropped and logged, never fatal to the broadcast as a whole, and never
// blocks the session state machine.
type Gateway struct {
	mu   sync.Mutex
	subs map[string]map[*wsClient]bool
}

func newGateway() *Gateway {
	return &Gateway{
		subs: make(map[string]map[*wsClient]bool),
	}
}

func (g *Gateway) subscribe(sessionID string, c *wsClient) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.subs[sessionID] == nil {
		g.subs[sessionID] = make(map[*wsClient]bool)
	}
	g.subs[sessionID][c] = true
	c.sessionID = sessionID
}

func (g *Gateway) unsubscribe(cfg *Config, c *wsClient) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropLocked(cfg, c)
}

// dropLocked removes a client from its session's subscriber set and closes
// its send channel, which ends the write pump.
func (g *Gateway) dropLocked(cfg *Config, c *wsClient) {
	clients, ok := g.subs[c.sessionID]
	if !ok || !clients[c] {
		return
	}

	delete(clients, c)
	c.dropped = true
	close(c.send)
	if len(clients) == 0 {
		delete(g.subs, c.sessionID)
	}

	logf(cfg, "GAMES: Connection %s left session %s", c.id, c.sessionID)
}

// broadcast delivers msg to every subscriber of the session. Subscribers
// whose send buffer is full are dropped rather than waited on.
func (g *Gateway) broadcast(cfg *Config, sessionID string, msg any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for c := range g.subs[sessionID] {
		select {
		case c.send <- msg:
		default:
			g.dropLocked(cfg, c)
		}
	}
}

// addressed delivers msg to exactly one client, used for rejection
// notices that must never reach the opponent. The client may have been
// dropped by a concurrent broadcast or session close; its message is
// then discarded rather than sent on the closed channel.
func (g *Gateway) addressed(cfg *Config, c *wsClient, msg any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c.dropped {
		return
	}

	select {
	case c.send <- msg:
	default:
		g.dropLocked(cfg, c)
	}
}

// closeSession disconnects every subscriber of a session (used by the
// idle reaper).
func (g *Gateway) closeSession(cfg *Config, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for c := range g.subs[sessionID] {
		delete(g.subs[sessionID], c)
		c.dropped = true
		close(c.send)
		_ = c.conn.Close()
	}
	delete(g.subs, sessionID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "shiritori_id"

// playerIdentity returns the request's player ID, minting a fresh one
// along with the cookie that persists it when the request carries none.
// The caller decides how the cookie reaches the client: http.SetCookie
// for plain responses, the upgrade response headers for websockets.
func playerIdentity(r *http.Request) (string, *http.Cookie) {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return "", nil
	}
	id := hex.EncodeToString(buf)

	return id, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	id, cookie := playerIdentity(r)
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return id
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
