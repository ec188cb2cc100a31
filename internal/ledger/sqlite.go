// internal/ledger/sqlite.go
//
// SQLite-backed ledger Store (schema: assets/sql/001_players.sql).
// Notes:
//   - Timestamps are stored as RFC3339 text, like the rest of the schema.
//   - The upsert never lowers a stored score.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists records in the players table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened and migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads one player row.
func (s *SQLiteStore) Load(ctx context.Context, playerID string) (Record, error) {
	var (
		rec     Record
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT player_id, points, updated_at FROM players WHERE player_id=?`, playerID,
	).Scan(&rec.PlayerID, &rec.Points, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load player %q: %w", playerID, err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

// Save upserts the row for rec.PlayerID.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO players (player_id, points, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(player_id) DO UPDATE
            SET points = excluded.points, updated_at = excluded.updated_at
            WHERE excluded.points >= players.points`,
		rec.PlayerID, rec.Points, rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save player %q: %w", rec.PlayerID, err)
	}
	return nil
}
