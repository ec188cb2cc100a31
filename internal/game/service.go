// internal/game/service.go
//
// Service is the entry point callers use to reach rooms.
// Responsibilities:
//   - Normalize room ids (trimmed, case folded) and route every operation to the room actor.
//   - Own the per-room broadcast streams, which outlive room activations.
//   - Expose player scores from the ledger.

package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/robalobadob/guessroom/internal/actor"
	"github.com/robalobadob/guessroom/internal/broadcast"
	"github.com/robalobadob/guessroom/internal/metrics"
)

// Scores is the part of the score ledger rooms and callers need.
type Scores interface {
	Awarder
	GetPoints(ctx context.Context, playerID string) (int, error)
}

// Subscription is a listener on a room's event stream.
type Subscription = broadcast.Subscription[ChatMessage]

// Options configure a Service.
type Options struct {
	IdleTimeout time.Duration // room eviction; rooms are not persisted
	MailboxSize int
	Metrics     *metrics.Registry
	Draw        func() int
	Now         func() time.Time
}

// Service routes calls to room actors.
type Service struct {
	rooms   *actor.Manager[*Room]
	streams *broadcast.Hub[ChatMessage]
	scores  Scores
	opts    Options
}

// NewService wires rooms to scores.
func NewService(scores Scores, opts Options) *Service {
	s := &Service{scores: scores, opts: opts}
	var (
		actors *metrics.Actors
		bcast  *metrics.Broadcast
	)
	if opts.Metrics != nil {
		actors, bcast = opts.Metrics.Actors, opts.Metrics.Broadcast
	}
	s.streams = broadcast.NewHub[ChatMessage](bcast)
	s.rooms = actor.NewManager[*Room](roomLifecycle{s}, actor.Options{
		Kind:        "room",
		IdleTimeout: opts.IdleTimeout,
		MailboxSize: opts.MailboxSize,
		Normalize:   RoomKey,
		Metrics:     actors,
	})
	return s
}

// RoomKey returns the canonical form of a room id. Ids differing only in case or
// surrounding whitespace address the same room.
func RoomKey(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}

// Join adds nickname to room and returns the room's stream key.
func (s *Service) Join(ctx context.Context, room, nickname string) (string, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return "", err
	}
	err = s.rooms.Invoke(ctx, h, func(ctx context.Context, r *Room) error {
		return r.Join(ctx, nickname)
	})
	return h.Key(), err
}

// Leave removes nickname from room and returns the room's stream key.
func (s *Service) Leave(ctx context.Context, room, nickname string) (string, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return "", err
	}
	err = s.rooms.Invoke(ctx, h, func(ctx context.Context, r *Room) error {
		return r.Leave(ctx, nickname)
	})
	return h.Key(), err
}

// StartRound reports whether a round is in progress after the call. Callers that want to wait
// for enough players poll it.
func (s *Service) StartRound(ctx context.Context, room string) (bool, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return false, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, r *Room) (bool, error) {
		return r.StartRound(ctx)
	})
}

// PostMessage appends a chat message to room; numeric messages count as guesses.
func (s *Service) PostMessage(ctx context.Context, room, author, text string) (bool, error) {
	if isReserved(author) {
		return false, fmt.Errorf("%w: %q is reserved", ErrInvalidNickname, strings.TrimSpace(author))
	}
	h, err := s.resolve(ctx, room)
	if err != nil {
		return false, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, r *Room) (bool, error) {
		return r.PostMessage(ctx, ChatMessage{Author: author, Text: text})
	})
}

// GetMembers returns a snapshot of room's members in join order.
func (s *Service) GetMembers(ctx context.Context, room string) ([]Member, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return nil, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, r *Room) ([]Member, error) {
		return r.GetMembers(), nil
	})
}

// ReadHistory returns up to maxCount of room's most recent messages, oldest first.
func (s *Service) ReadHistory(ctx context.Context, room string, maxCount int) ([]ChatMessage, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return nil, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, r *Room) ([]ChatMessage, error) {
		return r.ReadHistory(maxCount), nil
	})
}

// RoundState returns the round snapshot of room.
func (s *Service) RoundState(ctx context.Context, room string) (RoundState, error) {
	h, err := s.resolve(ctx, room)
	if err != nil {
		return RoundState{}, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, r *Room) (RoundState, error) {
		return r.Round(), nil
	})
}

// Subscribe attaches a listener to room's event stream. It does not activate the room.
func (s *Service) Subscribe(room string) (*Subscription, error) {
	key := RoomKey(room)
	if key == "" {
		return nil, ErrInvalidRoom
	}
	return s.streams.Subscribe(key), nil
}

// Unsubscribe detaches sub; repeating it is harmless. A room's stream is dropped with its
// last subscriber.
func (s *Service) Unsubscribe(room string, sub *Subscription) {
	key := RoomKey(room)
	if key == "" {
		return
	}
	s.streams.Unsubscribe(key, sub)
}

// GetPoints returns the player's durable score.
func (s *Service) GetPoints(ctx context.Context, playerID string) (int, error) {
	return s.scores.GetPoints(ctx, playerID)
}

// ActiveRooms reports how many rooms are live.
func (s *Service) ActiveRooms() int { return s.rooms.Active() }

// Close deactivates every room and closes all streams.
func (s *Service) Close(ctx context.Context) error {
	err := s.rooms.Close(ctx)
	s.streams.Close()
	return err
}

func (s *Service) resolve(ctx context.Context, room string) (actor.Handle[*Room], error) {
	if RoomKey(room) == "" {
		return actor.Handle[*Room]{}, ErrInvalidRoom
	}
	return s.rooms.Resolve(ctx, room)
}

type roomLifecycle struct{ s *Service }

func (l roomLifecycle) Activate(ctx context.Context, key string) (*Room, error) {
	opts := []RoomOption{WithDraw(l.s.opts.Draw), WithClock(l.s.opts.Now)}
	if l.s.opts.Metrics != nil {
		opts = append(opts, WithRoundMetrics(l.s.opts.Metrics.Rounds))
	}
	return NewRoom(key, roomStream{hub: l.s.streams, key: key}, l.s.scores, opts...), nil
}

// Deactivate drops the room; membership and history are not kept across activations.
func (l roomLifecycle) Deactivate(ctx context.Context, key string, r *Room) error {
	return nil
}

// roomStream publishes a room's events to whoever currently listens on its key.
type roomStream struct {
	hub *broadcast.Hub[ChatMessage]
	key string
}

func (p roomStream) Publish(msg ChatMessage) int { return p.hub.Publish(p.key, msg) }
