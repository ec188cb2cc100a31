// internal/game/room.go
//
// Room actor state for one guessing room.
// Responsibilities:
//   - Membership (insertion ordered), append-only chat history, round state machine.
//   - Treat chat messages containing a number as guesses and resolve the round once every
//     current member has guessed.
//   - Award the winner through the score ledger before the round is marked resolved.
//
// Notes:
//   - A Room is not safe for concurrent use. The activation manager runs every method on the
//     room's own goroutine, which is what makes resolution a single serialized step.
//   - Rounds are continuous: a resolved round immediately draws the next target.

package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guessroom/internal/metrics"
)

// Publisher fans room events out to subscribers.
type Publisher interface {
	Publish(msg ChatMessage) int
}

// Awarder durably records a round win for a player.
type Awarder interface {
	AddPoint(ctx context.Context, playerID string) (int, error)
}

// Room holds the mutable state of one room.
type Room struct {
	id      string
	members []*Member
	history []ChatMessage
	fsm     *roundFSM
	target  int
	round   int

	stream  Publisher
	ledger  Awarder
	draw    func() int
	now     func() time.Time
	metrics *metrics.Rounds
}

// RoomOption customizes a Room.
type RoomOption func(*Room)

// WithDraw replaces the target generator (must return values in [MinTarget, MaxTarget]).
func WithDraw(draw func() int) RoomOption {
	return func(r *Room) {
		if draw != nil {
			r.draw = draw
		}
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) RoomOption {
	return func(r *Room) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRoundMetrics records round transitions.
func WithRoundMetrics(m *metrics.Rounds) RoomOption {
	return func(r *Room) { r.metrics = m }
}

// NewRoom creates an empty room in PhaseNotStarted.
func NewRoom(id string, stream Publisher, ledger Awarder, opts ...RoomOption) *Room {
	r := &Room{
		id:      id,
		history: make([]ChatMessage, 0, historyCapacityHint),
		fsm:     newRoundFSM(id),
		stream:  stream,
		ledger:  ledger,
		draw:    randomTarget,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func randomTarget() int { return MinTarget + rand.IntN(MaxTarget-MinTarget+1) }

// ID returns the normalized room id.
func (r *Room) ID() string { return r.id }

// Join adds nickname as a member and announces it.
func (r *Room) Join(ctx context.Context, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return ErrInvalidNickname
	}
	if isReserved(nickname) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidNickname, nickname)
	}
	if r.member(nickname) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateMember, nickname)
	}
	r.members = append(r.members, &Member{Nickname: nickname})
	r.appendAndPublish(r.system(nickname + " joined"))
	log.Info().Str("module", "game.room").Str("room", r.id).Str("member", nickname).Int("members", len(r.members)).Msg("member joined")
	return nil
}

// Leave removes nickname from the room and announces it.
func (r *Room) Leave(ctx context.Context, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	idx := r.indexOf(nickname)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrMemberNotFound, nickname)
	}
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.appendAndPublish(r.system(nickname + " left"))
	log.Info().Str("module", "game.room").Str("room", r.id).Str("member", nickname).Int("members", len(r.members)).Msg("member left")
	return nil
}

// StartRound starts the first round once at least MinPlayers members are present.
// It reports true whenever a round is in progress; starting again is a no-op.
func (r *Room) StartRound(ctx context.Context) (bool, error) {
	if r.fsm.Current() != PhaseNotStarted {
		return true, nil
	}
	if len(r.members) < MinPlayers {
		return false, nil
	}
	if err := r.beginRound(eventStart); err != nil {
		return false, err
	}
	return true, nil
}

// PostMessage appends msg to the history and publishes it. When the text carries a number
// it also counts as the author's guess; the result then reflects the guess handling, while
// the message itself stays appended either way.
func (r *Room) PostMessage(ctx context.Context, msg ChatMessage) (bool, error) {
	msg.Author = strings.TrimSpace(msg.Author)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	r.appendAndPublish(msg)

	n, ok := parseGuess(msg.Text)
	if !ok {
		return true, nil
	}
	m := r.member(msg.Author)
	if m == nil {
		return true, fmt.Errorf("%w: %q", ErrMemberNotFound, msg.Author)
	}
	m.CurrentGuess = &n
	m.HasGuessed = true
	r.metrics.Guessed()
	r.stream.Publish(r.system(fmt.Sprintf("%s guessed %d", m.Nickname, n)))

	if err := r.tryResolveRound(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// GetMembers returns a copy of the membership in join order.
func (r *Room) GetMembers() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.snapshot())
	}
	return out
}

// ReadHistory returns at most maxCount of the most recent messages, oldest first.
func (r *Room) ReadHistory(maxCount int) []ChatMessage {
	if maxCount <= 0 {
		return []ChatMessage{}
	}
	start := len(r.history) - maxCount
	if start < 0 {
		start = 0
	}
	out := make([]ChatMessage, len(r.history)-start)
	copy(out, r.history[start:])
	return out
}

// Round returns the round state snapshot.
func (r *Room) Round() RoundState {
	return RoundState{Phase: r.fsm.Current(), Number: r.round, Target: r.target}
}

// tryResolveRound resolves the round when every current member has guessed. The closest
// guess wins; on equal distance the member who joined first wins. Guesses are only cleared
// after the ledger durably recorded the point.
func (r *Room) tryResolveRound(ctx context.Context) error {
	if r.fsm.Current() != PhaseAwaitingGuesses || len(r.members) == 0 {
		return nil
	}
	for _, m := range r.members {
		if !m.HasGuessed {
			return nil
		}
	}

	winner := r.members[0]
	best := distance(r.target, *winner.CurrentGuess)
	for _, m := range r.members[1:] {
		if d := distance(r.target, *m.CurrentGuess); d < best {
			winner, best = m, d
		}
	}

	if _, err := r.ledger.AddPoint(ctx, winner.Nickname); err != nil {
		log.Error().Str("module", "game.room").Str("room", r.id).Str("winner", winner.Nickname).Err(err).Msg("round left open: point not recorded")
		return fmt.Errorf("resolve round %d in room %q: %w", r.round, r.id, err)
	}
	if err := r.fsm.Trigger(eventAllGuessed); err != nil {
		return err
	}
	winner.Points++
	r.metrics.Resolved()
	r.stream.Publish(r.system(fmt.Sprintf("%s wins! the number was %d", winner.Nickname, r.target)))
	log.Info().Str("module", "game.room").Str("room", r.id).Int("round", r.round).
		Str("winner", winner.Nickname).Int("target", r.target).Msg("round resolved")

	for _, m := range r.members {
		m.clearGuess()
	}
	return r.beginRound(eventNextRound)
}

// beginRound clears stale guesses, draws a fresh target and announces the round.
func (r *Room) beginRound(ev roundEvent) error {
	if err := r.fsm.Trigger(ev); err != nil {
		return err
	}
	for _, m := range r.members {
		m.clearGuess()
	}
	r.target = r.draw()
	r.round++
	r.metrics.Started()
	r.stream.Publish(r.system(fmt.Sprintf("round started: a number between %d and %d has been drawn", MinTarget, MaxTarget)))
	log.Debug().Str("module", "game.room").Str("room", r.id).Int("round", r.round).Msg("round started")
	return nil
}

func (r *Room) appendAndPublish(msg ChatMessage) {
	r.history = append(r.history, msg)
	r.stream.Publish(msg)
}

func (r *Room) system(text string) ChatMessage {
	return ChatMessage{Author: ServerAuthor, Text: text, CreatedAt: r.now()}
}

func (r *Room) member(nickname string) *Member {
	if i := r.indexOf(nickname); i >= 0 {
		return r.members[i]
	}
	return nil
}

func (r *Room) indexOf(nickname string) int {
	for i, m := range r.members {
		if m.Nickname == nickname {
			return i
		}
	}
	return -1
}

// isReserved reports whether name would pass for the server's own announcements.
func isReserved(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), ServerAuthor)
}

func distance(target, guess int) int {
	if target > guess {
		return target - guess
	}
	return guess - target
}
