// internal/game/types.go
//
// Core type definitions for a guessing room.
// Defines:
//   - Member: one participant and their guess for the current round.
//   - ChatMessage: an immutable entry of the room history / event stream.
//   - Phase and RoundState: the round state machine snapshot.

package game

import "time"

const (
	// ServerAuthor signs every announcement the room publishes itself.
	ServerAuthor = "Server"

	MinTarget  = 0
	MaxTarget  = 100
	MinPlayers = 2

	historyCapacityHint = 100
)

// Phase is the round state of a room.
type Phase string

const (
	PhaseNotStarted      Phase = "not_started"
	PhaseAwaitingGuesses Phase = "awaiting_guesses"
	PhaseResolved        Phase = "resolved"
)

// Member is a participant of a room.
type Member struct {
	Nickname     string `json:"nickname"`
	CurrentGuess *int   `json:"currentGuess,omitempty"`
	HasGuessed   bool   `json:"hasGuessed"`
	Points       int    `json:"points"` // rounds won in this room
}

func (m *Member) clearGuess() {
	m.CurrentGuess = nil
	m.HasGuessed = false
}

// snapshot copies m so callers never alias room state.
func (m *Member) snapshot() Member {
	out := *m
	if m.CurrentGuess != nil {
		g := *m.CurrentGuess
		out.CurrentGuess = &g
	}
	return out
}

// ChatMessage is one history entry. Messages are ordered by append order, not by CreatedAt.
type ChatMessage struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoundState is a snapshot of the round state machine. Target is never sent to members.
type RoundState struct {
	Phase  Phase `json:"phase"`
	Number int   `json:"round"`
	Target int   `json:"-"`
}
