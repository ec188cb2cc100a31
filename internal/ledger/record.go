// internal/ledger/record.go
//
// Durable per-player score records and the persistence contract behind them.
// Implementations in this package: memory (tests/dev), SQLite (default) and Redis.

package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Load for players that have never been saved.
var ErrNotFound = errors.New("player not found")

// Record is the durable score of one player.
type Record struct {
	PlayerID  string    `json:"playerId"`
	Points    int       `json:"points"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists score records. Save must be durable when it returns nil.
type Store interface {
	// Load returns the last saved record or ErrNotFound.
	Load(ctx context.Context, playerID string) (Record, error)

	// Save writes rec, replacing any previous record for rec.PlayerID.
	Save(ctx context.Context, rec Record) error
}
