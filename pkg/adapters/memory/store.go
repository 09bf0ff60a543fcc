package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Session),
	}
}

// Save persists a copy of the session if its stored version equals expectedVersion.
func (s *Store) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.data[session.Key]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return domain.ErrConflict
	}

	// Deep copy to ensure isolation, similar to serialization
	stored := session.Clone()
	stored.Version = expectedVersion + 1
	s.data[session.Key] = stored
	session.Version = stored.Version
	return nil
}

// Load retrieves a copy of the session so callers can't mutate store state by pointer.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns all session keys in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDue returns sleeping sessions whose wake time has passed, earliest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*domain.Session
	for _, session := range s.data {
		if session.Status == domain.StatusSleeping && session.WakeAt != nil && !session.WakeAt.After(now) {
			due = append(due, session)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].WakeAt.Equal(*due[j].WakeAt) {
			return due[i].Key < due[j].Key
		}
		return due[i].WakeAt.Before(*due[j].WakeAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	keys := make([]string, len(due))
	for i, session := range due {
		keys[i] = session.Key
	}
	return keys, nil
}

// PurgeTerminal removes terminal sessions idle since before cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, session := range s.data {
		if session.Status.IsTerminal() && session.LastActivityAt.Before(cutoff) {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}
