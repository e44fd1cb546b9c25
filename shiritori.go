package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients over the event channel.
type ClientMessage struct {
	Type      string `json:"type"`                // "join-session", "submit-word", "leave-session"
	SessionID string `json:"sessionId,omitempty"` // redundant with the socket path, validated against it
	Word      string `json:"word,omitempty"`      // submit-word
}

// GameUpdateMessage is the only state-bearing broadcast. Clients render
// from it as a full authoritative snapshot, not a delta.
type GameUpdateMessage struct {
	Type    string          `json:"type"` // "game-update"
	Session sessionSnapshot `json:"session"`
}

// WordResultMessage is addressed only to the submitting client on
// rejection; accepted words are answered by the game-update broadcast.
type WordResultMessage struct {
	Type   string `json:"type"` // "word-result"
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SimpleMessage is for generic notifications addressed to one client.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type joinRequest struct {
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// gameServer wires the session registry, broadcast gateway, turn clock,
// and word validator together. Each session serializes its own mutations;
// the gameServer only orchestrates the side effects around them
// (arming timers, fanning out snapshots).
type gameServer struct {
	cfg      *Config
	registry *Registry
	gateway  *Gateway
	clock    *turnClock
	check    *validator
}

func newGameServer(cfg *Config, clock clockwork.Clock) *gameServer {
	gs := &gameServer{
		cfg:     cfg,
		gateway: newGateway(),
		clock:   newTurnClock(clock),
		check:   &validator{minLength: cfg.minWordLength},
	}

	if cfg.dictionaryURL != "" {
		gs.check.dict = newAPIDictionary(cfg.dictionaryURL)
	}

	gs.registry = newRegistry(clock, cfg.sessionTimeout, func(s *Session) {
		gs.clock.cancel(s.id)
		gs.gateway.closeSession(cfg, s.id)
		logf(cfg, "GAMES: Reaped idle session %s", s.id)
	})

	return gs
}

// armTurn starts the forfeit countdown for the given turn generation.
func (gs *gameServer) armTurn(s *Session, gen uint64) {
	gs.clock.arm(s.id, gen, gs.cfg.turnTimeout, func() {
		gs.fireTimeout(s, gen)
	})
}

func (gs *gameServer) fireTimeout(s *Session, gen uint64) {
	ended, loser := s.forceTimeout(gen)
	if !ended {
		return
	}

	logf(gs.cfg, "GAMES: Player %q forfeited session %s on timeout", loser, s.id)
	gs.broadcastState(s)
}

func (gs *gameServer) broadcastState(s *Session) {
	gs.gateway.broadcast(gs.cfg, s.id, GameUpdateMessage{
		Type:    "game-update",
		Session: s.snapshot(),
	})
}

// ---- REST handlers ----

func writeJSON(cfg *Config, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (gs *gameServer) handleCreateSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s := gs.registry.create()
		logf(gs.cfg, "GAMES: Created session %s for %s", s.id, realIP(r))

		writeJSON(gs.cfg, w, http.StatusOK, s.snapshot())
	}
}

func (gs *gameServer) handleListSessions() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		joinable := lo.Filter(gs.registry.list(), func(sum sessionSummary, _ int) bool {
			return sum.Phase == PhaseWaiting && sum.Players < maxPlayers
		})

		writeJSON(gs.cfg, w, http.StatusOK, joinable)
	}
}

func (gs *gameServer) handleJoinSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, ok := gs.registry.get(ps.ByName("sessionid"))
		if !ok {
			writeJSON(gs.cfg, w, http.StatusNotFound, errorResponse{Error: "session not found"})
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Username) == "" {
			writeJSON(gs.cfg, w, http.StatusBadRequest, errorResponse{Error: "username required"})
			return
		}
		username := strings.TrimSpace(req.Username)

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			writeJSON(gs.cfg, w, http.StatusInternalServerError, errorResponse{Error: "unable to assign player id"})
			return
		}

		started, gen, err := s.join(username, playerID, gs.cfg.turnTimeout)
		if err != nil {
			writeJSON(gs.cfg, w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}

		logf(gs.cfg, "GAMES: Player %q joined session %s", username, s.id)

		if started {
			gs.armTurn(s, gen)
			gs.broadcastState(s)
			logf(gs.cfg, "GAMES: Session %s started", s.id)
		}

		writeJSON(gs.cfg, w, http.StatusOK, s.snapshot())
	}
}

// ---- Event channel ----

func (gs *gameServer) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if _, ok := gs.registry.get(sessionID); !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		playerID, cookie := playerIdentity(r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		// the upgrade hijacks the connection, so the identity cookie has
		// to travel in the handshake response headers
		var respHeader http.Header
		if cookie != nil {
			respHeader = http.Header{"Set-Cookie": []string{cookie.String()}}
		}

		conn, err := upgrader.Upgrade(w, r, respHeader)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &wsClient{
			id:       uuid.New().String(),
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		go client.writePump()
		gs.readPump(client, sessionID)
	}
}

// readPump processes one socket's messages until it disconnects. All
// game-state changes it triggers go through the session's own lock; the
// pump itself holds nothing.
func (gs *gameServer) readPump(c *wsClient, sessionID string) {
	subscribed := false

	defer func() {
		if subscribed {
			gs.handleDisconnect(c)
		} else {
			close(c.send)
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			gs.gateway.addressed(gs.cfg, c, SimpleMessage{
				Type:    "error",
				Message: "session id does not match this connection",
			})
			continue
		}

		switch msg.Type {
		case "join-session":
			if !subscribed {
				gs.handleSubscribe(c, sessionID)
				subscribed = true
			}
		case "submit-word":
			if subscribed {
				gs.handleSubmitWord(context.Background(), c, msg.Word)
			}
		case "leave-session":
			if subscribed {
				gs.handleLeave(c)
			}
			return
		default:
			// ignore unknown types
		}
	}
}

// handleSubscribe attaches the socket to the session's broadcasts, binds
// it to the seat its cookie joined with (if any), and answers with a
// fresh snapshot so the client can render immediately.
func (gs *gameServer) handleSubscribe(c *wsClient, sessionID string) {
	s, ok := gs.registry.get(sessionID)
	if !ok {
		gs.gateway.addressed(gs.cfg, c, SimpleMessage{Type: "error", Message: "session not found"})
		return
	}

	gs.gateway.subscribe(sessionID, c)
	c.username = s.usernameForPlayerID(c.playerID)

	logf(gs.cfg, "GAMES: Connection %s subscribed to session %s as %q", c.id, sessionID, c.username)

	gs.gateway.addressed(gs.cfg, c, GameUpdateMessage{
		Type:    "game-update",
		Session: s.snapshot(),
	})
}

func (gs *gameServer) handleSubmitWord(ctx context.Context, c *wsClient, word string) {
	s, ok := gs.registry.get(c.sessionID)
	if !ok {
		gs.gateway.addressed(gs.cfg, c, SimpleMessage{Type: "error", Message: "session not found"})
		return
	}

	if c.username == "" {
		gs.gateway.addressed(gs.cfg, c, WordResultMessage{
			Type: "word-result", Valid: false, Reason: "not a player in this session",
		})
		return
	}

	res := s.submitWord(ctx, gs.check, c.username, word, gs.cfg.turnTimeout)

	if res.reject != nil {
		gs.gateway.addressed(gs.cfg, c, WordResultMessage{
			Type: "word-result", Valid: false, Reason: res.reject.Error(),
		})
		return
	}

	if res.degraded {
		logf(gs.cfg, "GAMES: Dictionary unreachable, accepted %q unchecked in session %s", word, s.id)
	}

	gs.armTurn(s, res.gen)
	gs.broadcastState(s)
}

// handleLeave processes an explicit leave-session message.
func (gs *gameServer) handleLeave(c *wsClient) {
	s, ok := gs.registry.get(c.sessionID)
	if ok && c.username != "" {
		gs.removePlayer(s, c.username)
	}
	gs.gateway.unsubscribe(gs.cfg, c)
}

// handleDisconnect runs when a socket drops without an explicit leave. A
// player who disconnects before the game starts gives up their seat; a
// mid-game disconnect keeps the seat so the player can reconnect before
// their turn clock runs out.
func (gs *gameServer) handleDisconnect(c *wsClient) {
	if s, ok := gs.registry.get(c.sessionID); ok && c.username != "" {
		if s.summary().Phase == PhaseWaiting {
			gs.removePlayer(s, c.username)
		}
	}
	gs.gateway.unsubscribe(gs.cfg, c)
}

func (gs *gameServer) removePlayer(s *Session, username string) {
	removed, ended, err := s.leave(username)
	if err != nil || !removed {
		return
	}

	logf(gs.cfg, "GAMES: Player %q left session %s", username, s.id)

	if ended {
		gs.clock.cancel(s.id)
	}

	if s.playerCount() == 0 {
		gs.clock.cancel(s.id)
		gs.registry.remove(s.id)
		logf(gs.cfg, "GAMES: Removed empty session %s", s.id)
		return
	}

	gs.broadcastState(s)
}

// ---- Static client and share link ----

//go:embed shiritori/index.html
var indexHTML []byte

//go:embed shiritori/app.css
var shiritoriCSS []byte

//go:embed shiritori/app.js
var shiritoriJS []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(shiritoriCSS)
	}
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(shiritoriJS)
	}
}

// qrHandler generates a PNG QR code for a session's join URL.
func qrHandler(path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + path + "/" + sessionID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerShiritoriGame sets up routes so that:
//   - $path                          → lobby / game client (HTML)
//   - $path/:sessionid               → same client, scoped to one session
//   - /api/sessions                  → create (POST) and list (GET)
//   - /api/sessions/:sessionid/join  → join (POST)
//   - /api/sessions/:sessionid/ws    → per-session event channel
//   - /api/sessions/:sessionid/qr    → PNG QR code for the session URL
func registerShiritoriGame(cfg *Config, path string, mux *httprouter.Router) *gameServer {
	gs := newGameServer(cfg, clockwork.NewRealClock())
	gs.registerRoutes(path, mux)
	return gs
}

func (gs *gameServer) registerRoutes(path string, mux *httprouter.Router) {
	cfg := gs.cfg

	mux.GET(cfg.prefix+path, getIndexHandler(cfg))
	mux.GET(cfg.prefix+path+"/:sessionid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+"/assets/shiritori/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/shiritori/app.js", getJsHandler(cfg))

	mux.POST(cfg.prefix+"/api/sessions", gs.handleCreateSession())
	mux.GET(cfg.prefix+"/api/sessions", gs.handleListSessions())
	mux.POST(cfg.prefix+"/api/sessions/:sessionid/join", gs.handleJoinSession())
	mux.GET(cfg.prefix+"/api/sessions/:sessionid/ws", gs.serveWS())
	mux.GET(cfg.prefix+"/api/sessions/:sessionid/qr", qrHandler(cfg.prefix+path))
}
