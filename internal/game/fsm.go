package game

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

type roundEvent string

const (
	eventStart      roundEvent = "start"
	eventAllGuessed roundEvent = "all_guessed"
	eventNextRound  roundEvent = "next_round"
)

// roundFSM is the round state machine:
// not_started --start--> awaiting_guesses --all_guessed--> resolved --next_round--> awaiting_guesses.
type roundFSM struct {
	room        string
	current     Phase
	transitions map[Phase]map[roundEvent]Phase
}

func newRoundFSM(room string) *roundFSM {
	return &roundFSM{
		room:    room,
		current: PhaseNotStarted,
		transitions: map[Phase]map[roundEvent]Phase{
			PhaseNotStarted: {
				eventStart: PhaseAwaitingGuesses,
			},
			PhaseAwaitingGuesses: {
				eventAllGuessed: PhaseResolved,
			},
			PhaseResolved: {
				eventNextRound: PhaseAwaitingGuesses,
			},
		},
	}
}

func (f *roundFSM) Current() Phase { return f.current }

func (f *roundFSM) Trigger(ev roundEvent) error {
	next, ok := f.transitions[f.current][ev]
	if !ok {
		return fmt.Errorf("invalid round transition: %s --(%s)--> ?", f.current, ev)
	}
	log.Debug().Str("module", "game.fsm").Str("room", f.room).
		Str("from", string(f.current)).Str("event", string(ev)).Str("to", string(next)).Msg("round transition")
	f.current = next
	return nil
}
