// internal/ledger/redis.go
//
// Redis-backed ledger Store: one hash per player at "<prefix>player:<id>" with fields
// "points" and "updated_at".

package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists records as Redis hashes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps a connected client. prefix namespaces every key (e.g. "guessroom:").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(playerID string) string {
	return s.prefix + "player:" + playerID
}

// Load reads the player hash.
func (s *RedisStore) Load(ctx context.Context, playerID string) (Record, error) {
	vals, err := s.client.HGetAll(ctx, s.key(playerID)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("load player %q: %w", playerID, err)
	}
	if len(vals) == 0 {
		return Record{}, ErrNotFound
	}
	points, err := strconv.Atoi(vals["points"])
	if err != nil {
		return Record{}, fmt.Errorf("load player %q: bad points field: %w", playerID, err)
	}
	rec := Record{PlayerID: playerID, Points: points}
	if ts, ok := vals["updated_at"]; ok {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return rec, nil
}

// Save overwrites the player hash.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	err := s.client.HSet(ctx, s.key(rec.PlayerID),
		"points", rec.Points,
		"updated_at", rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("save player %q: %w", rec.PlayerID, err)
	}
	return nil
}
