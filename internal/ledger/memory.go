// internal/ledger/memory.go
//
// In-memory implementation of the ledger Store.
// Characteristics:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts; used for tests and LEDGER_BACKEND=memory.

package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps records in a map keyed by player id.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save adds or replaces the record.
func (m *MemoryStore) Save(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PlayerID] = rec
	return nil
}

// Load looks up a record by player id.
func (m *MemoryStore) Load(ctx context.Context, playerID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[playerID]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}
