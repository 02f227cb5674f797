package session

import (
	"context"
	"sync"
	"time"

	"github.com/expensetrack/expense-api/internal/models"
)

// MemoryStore is the single-process session table. It does not survive a
// restart and is not shared across instances; use RedisStore for that.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewMemoryStore returns an empty in-memory table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

// Put inserts or replaces the entry for the session's token.
func (m *MemoryStore) Put(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = *s
	return nil
}

// Get returns a copy of the entry for the token, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, token string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Touch refreshes the last-activity timestamp for the token.
func (m *MemoryStore) Touch(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.LastActivity = at
	m.sessions[token] = s
	return nil
}

// Delete removes the entry if present and reports whether one was removed.
func (m *MemoryStore) Delete(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok, nil
}

// ListByUser returns every live session owned by the user.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteByUser removes every session owned by the user.
func (m *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed, nil
}
