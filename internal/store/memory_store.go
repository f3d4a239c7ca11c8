package store

import (
	"context"
	"sort"
	"sync"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

// MemoryStore keeps records in process memory. Records live as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]chat.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]chat.Session)}
}

func (m *MemoryStore) SaveSession(_ context.Context, session chat.Session) error {
	m.mu.Lock()
	m.records[session.ID] = session.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, sessionID string) (chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[sessionID]
	if !ok {
		return chat.Session{}, ErrNotFound
	}
	return record.Clone(), nil
}

// ListSessions returns up to limit records, most recently updated first.
func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]chat.Summary, error) {
	m.mu.RLock()
	out := make([]chat.Summary, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
