package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// Phase is a session's lifecycle stage. Transitions are one-way:
// waiting -> in_progress -> finished.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

const maxPlayers = 2

var (
	errSessionFull       = errors.New("session full")
	errUsernameTaken     = errors.New("username taken")
	errSessionFinished   = errors.New("game already finished")
	errNotYourTurn       = errors.New("not your turn")
	errGameNotInProgress = errors.New("game not in progress")
	errUnknownPlayer     = errors.New("player not in session")
)

// Player holds the data we store server-side for one seat in a session.
type Player struct {
	playerID string // cookie identity, never sent to other players
	Username string
	Score    int
}

// Session is the authoritative state of one game. All mutation goes through
// the methods below, each of which holds mu for its full read-modify-write,
// so no two operations against the same session ever interleave.
type Session struct {
	id string

	// the same clock the turn timers run on, so the advertised deadline
	// and the actual forfeit moment never diverge
	clock clockwork.Clock

	mu            sync.Mutex
	players       []Player
	currentPlayer int
	wordsUsed     []string
	phase         Phase
	turnDeadline  time.Time
	turnGen       uint64
	winner        string

	createdAt  time.Time
	lastActive time.Time
}

func newSession(id string, clock clockwork.Clock) *Session {
	now := clock.Now()
	return &Session{
		id:         id,
		clock:      clock,
		phase:      PhaseWaiting,
		createdAt:  now,
		lastActive: now,
	}
}

// playerSnapshot is the client-visible view of a player.
type playerSnapshot struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// sessionSnapshot is the full authoritative state a client renders from.
// Every broadcast carries one of these; clients treat it as a replacement,
// never a delta. TurnGen lets a client reset its advisory countdown only
// when the turn actually changed.
type sessionSnapshot struct {
	SessionID     string           `json:"sessionId"`
	Players       []playerSnapshot `json:"players"`
	CurrentPlayer int              `json:"currentPlayer"`
	WordsUsed     []string         `json:"wordsUsed"`
	LastWord      string           `json:"lastWord,omitempty"`
	Phase         Phase            `json:"phase"`
	Winner        string           `json:"winner,omitempty"`
	TurnGen       uint64           `json:"turnGeneration"`
	TurnDeadline  *time.Time       `json:"turnDeadline,omitempty"`
}

func (s *Session) snapshot() sessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() sessionSnapshot {
	snap := sessionSnapshot{
		SessionID: s.id,
		Players: lo.Map(s.players, func(p Player, _ int) playerSnapshot {
			return playerSnapshot{Username: p.Username, Score: p.Score}
		}),
		CurrentPlayer: s.currentPlayer,
		WordsUsed:     append([]string(nil), s.wordsUsed...),
		Phase:         s.phase,
		Winner:        s.winner,
		TurnGen:       s.turnGen,
	}

	if len(s.wordsUsed) > 0 {
		snap.LastWord = s.wordsUsed[len(s.wordsUsed)-1]
	}
	if s.phase == PhaseInProgress {
		deadline := s.turnDeadline
		snap.TurnDeadline = &deadline
	}

	return snap
}

func (s *Session) summary() sessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sessionSummary{
		SessionID: s.id,
		Players:   len(s.players),
		Phase:     s.phase,
	}
}

// join adds a player to the session. The second successful join atomically
// flips the session to in_progress with player 0 to move and a fresh turn
// deadline; started reports that transition so the caller can arm the clock.
func (s *Session) join(username, playerID string, turnTimeout time.Duration) (started bool, gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	switch s.phase {
	case PhaseFinished:
		return false, 0, errSessionFinished
	case PhaseInProgress:
		return false, 0, errSessionFull
	}

	if len(s.players) >= maxPlayers {
		return false, 0, errSessionFull
	}

	for _, p := range s.players {
		if strings.EqualFold(p.Username, username) {
			return false, 0, errUsernameTaken
		}
	}

	s.players = append(s.players, Player{playerID: playerID, Username: username})

	if len(s.players) == maxPlayers {
		s.phase = PhaseInProgress
		s.currentPlayer = 0
		s.turnGen++
		s.turnDeadline = s.clock.Now().Add(turnTimeout)
		return true, s.turnGen, nil
	}

	return false, 0, nil
}

// submitResult reports the outcome of one submitWord call.
type submitResult struct {
	accepted bool
	reject   error  // rule violation addressed only to the submitter
	gen      uint64 // turn generation after rotation, for re-arming the clock
	degraded bool   // dictionary was unreachable, word accepted unchecked
}

// submitWord validates a candidate word and, on acceptance, appends it to
// the history, scores the submitter, rotates the turn, and bumps the turn
// generation. Rejections leave the session untouched.
func (s *Session) submitWord(ctx context.Context, v *validator, username, word string, turnTimeout time.Duration) submitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.clock.Now()

	if s.phase != PhaseInProgress {
		return submitResult{reject: errGameNotInProgress}
	}

	current := s.players[s.currentPlayer]
	if !strings.EqualFold(current.Username, username) {
		return submitResult{reject: errNotYourTurn}
	}

	trimmed := strings.TrimSpace(word)

	reject, degraded := v.check(ctx, trimmed, s.wordsUsed)
	if reject != nil {
		return submitResult{reject: reject}
	}

	s.wordsUsed = append(s.wordsUsed, trimmed)
	s.players[s.currentPlayer].Score += wordScore(trimmed, v.minLength)
	s.currentPlayer = (s.currentPlayer + 1) % maxPlayers
	s.turnGen++
	s.turnDeadline = s.clock.Now().Add(turnTimeout)

	return submitResult{accepted: true, gen: s.turnGen, degraded: degraded}
}

// wordScore awards one point plus one per letter beyond the minimum length,
// so longer words always score at least as much as shorter ones.
func wordScore(word string, minLength int) int {
	return 1 + len([]rune(word)) - minLength
}

// forceTimeout is invoked only by the turn clock, never by a client message.
// The current player forfeits and the game ends in favor of the opponent.
// A fire whose generation no longer matches the session's current turn
// generation is stale and does nothing.
func (s *Session) forceTimeout(gen uint64) (ended bool, loser string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress || gen != s.turnGen {
		return false, ""
	}

	s.lastActive = s.clock.Now()

	loser = s.players[s.currentPlayer].Username
	s.winner = s.players[(s.currentPlayer+1)%maxPlayers].Username
	s.phase = PhaseFinished
	s.turnGen++
	s.turnDeadline = time.Time{}

	return true, loser
}

// leave removes a player by username. Dropping below two players while the
// game is running finishes it with the remaining player as winner.
func (s *Session) leave(username string) (removed bool, ended bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.players {
		if strings.EqualFold(p.Username, username) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false, errUnknownPlayer
	}

	s.lastActive = s.clock.Now()
	s.players = append(s.players[:idx], s.players[idx+1:]...)

	if s.phase == PhaseInProgress {
		s.phase = PhaseFinished
		s.winner = s.players[0].Username
		s.currentPlayer = 0
		s.turnGen++
		s.turnDeadline = time.Time{}
		return true, true, nil
	}

	return true, false, nil
}

// usernameForPlayerID maps a cookie identity back to the username that
// joined with it, used to bind a websocket to its seat.
func (s *Session) usernameForPlayerID(playerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if p.playerID == playerID {
			return p.Username
		}
	}
	return ""
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

func (s *Session) playerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.players)
}
