// internal/ledger/ledger.go
//
// Score ledger: one actor per player serializing point awards.
// Responsibilities:
//   - AddPoint: increment and durably save before reporting success.
//   - GetPoints: return the last durably written value.
//   - Restore a player's record on activation; re-save it on deactivation.
//
// Notes:
//   - A failed save rolls the in-memory increment back, so memory never runs ahead of storage.
//   - The ledger never calls into rooms; rooms may block on it without risking a cycle.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/guessroom/internal/actor"
	"github.com/robalobadob/guessroom/internal/metrics"
)

// ErrInvalidPlayer is returned for an empty player id.
var ErrInvalidPlayer = errors.New("invalid player id")

// UnavailableError reports that a point award could not be durably recorded.
type UnavailableError struct {
	PlayerID string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("score ledger unavailable for %q: %v", e.PlayerID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Options configure a Ledger.
type Options struct {
	IdleTimeout time.Duration
	MailboxSize int
	SaveTimeout time.Duration // bound on each Store.Save (default 5s)
	Metrics     *metrics.Actors
	Now         func() time.Time
}

// Ledger owns the player actors.
type Ledger struct {
	store       Store
	players     *actor.Manager[*Record]
	saveTimeout time.Duration
	now         func() time.Time
}

// New builds a Ledger over store.
func New(store Store, opts Options) *Ledger {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Ledger{store: store, saveTimeout: opts.SaveTimeout, now: opts.Now}
	l.players = actor.NewManager[*Record](playerLifecycle{l}, actor.Options{
		Kind:        "player",
		IdleTimeout: opts.IdleTimeout,
		MailboxSize: opts.MailboxSize,
		Normalize:   strings.TrimSpace,
		Metrics:     opts.Metrics,
	})
	return l
}

// AddPoint awards one point to playerID and returns the new total once it is durable.
func (l *Ledger) AddPoint(ctx context.Context, playerID string) (int, error) {
	if strings.TrimSpace(playerID) == "" {
		return 0, ErrInvalidPlayer
	}
	h, err := l.players.Resolve(ctx, playerID)
	if err != nil {
		return 0, &UnavailableError{PlayerID: playerID, Err: err}
	}
	return actor.Call(ctx, h, func(ctx context.Context, rec *Record) (int, error) {
		next := *rec
		next.Points++
		next.UpdatedAt = l.now().UTC()
		if err := l.save(ctx, next); err != nil {
			log.Error().Str("module", "ledger").Str("player", rec.PlayerID).Err(err).Msg("point award not recorded")
			return rec.Points, &UnavailableError{PlayerID: rec.PlayerID, Err: err}
		}
		*rec = next
		log.Info().Str("module", "ledger").Str("player", rec.PlayerID).Int("points", rec.Points).Msg("point awarded")
		return rec.Points, nil
	})
}

// GetPoints returns the player's durable score (0 for unknown players).
func (l *Ledger) GetPoints(ctx context.Context, playerID string) (int, error) {
	if strings.TrimSpace(playerID) == "" {
		return 0, ErrInvalidPlayer
	}
	h, err := l.players.Resolve(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return actor.Call(ctx, h, func(ctx context.Context, rec *Record) (int, error) {
		return rec.Points, nil
	})
}

// Active reports how many player actors are live.
func (l *Ledger) Active() int { return l.players.Active() }

// Close flushes every live player.
func (l *Ledger) Close(ctx context.Context) error { return l.players.Close(ctx) }

func (l *Ledger) save(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, l.saveTimeout)
	defer cancel()
	return l.store.Save(ctx, rec)
}

type playerLifecycle struct{ l *Ledger }

func (p playerLifecycle) Activate(ctx context.Context, playerID string) (*Record, error) {
	rec, err := p.l.store.Load(ctx, playerID)
	if errors.Is(err, ErrNotFound) {
		return &Record{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Deactivate re-saves records that were ever written; untouched players leave no row.
func (p playerLifecycle) Deactivate(ctx context.Context, playerID string, rec *Record) error {
	if rec == nil || rec.UpdatedAt.IsZero() {
		return nil
	}
	return p.l.save(ctx, *rec)
}
