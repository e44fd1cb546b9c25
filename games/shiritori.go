package games

// Two players alternate submitting words; each word must begin with the final
// letter of the previous word, repeats are forbidden, and each turn is
// bounded by a countdown enforced server-side.

// How to play
// - A player creates a session and shares its ID (or QR code) with a friend
// - The second join starts the game; the creator moves first
// - Words must be at least four letters, chain off the previous word's last
//   letter, and must not repeat earlier words
// - Longer words score more points
// - Letting the countdown expire forfeits the game to the opponent

// Implementation details:
// - One websocket per session carries join-session/submit-word/leave-session
//   messages in, and game-update/word-result messages out
// - game-update is always a full snapshot; clients never apply deltas
// - The in-browser countdown is advisory display only; the server clock is
//   authoritative, guarded by a turn-generation counter against stale fires
// - Players identified by cookie (playerID), bound to a seat on join
