package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

const ext = ".json"

// Store implements ports.SessionStore using the local filesystem.
// It stores sessions as JSON files in a configured directory.
// Version checks are serialized in-process; the directory must not be shared
// between processes that write concurrently.
type Store struct {
	BasePath string
	mu       sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".parley/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".parley", "sessions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.BasePath, url.QueryEscape(key)+ext)
}

// Save persists the session to a JSON file atomically when expectedVersion matches.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	if session.Key == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.read(session.Key)
	switch {
	case err == nil:
		current = existing.Version
	case err != domain.ErrSessionNotFound:
		return err
	}
	if current != expectedVersion {
		return domain.ErrConflict
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	stored := session.Clone()
	stored.Version = expectedVersion + 1
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := writeAtomic(s.BasePath, s.path(session.Key), data); err != nil {
		return err
	}
	session.Version = stored.Version
	return nil
}

// writeAtomic writes through a temp file in the same directory, which keeps the
// rename on one filesystem.
func writeAtomic(dir, destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to valid session: %w", err)
	}
	return nil
}

// Load retrieves the session from its JSON file.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key cannot be empty")
	}
	return s.read(key)
}

func (s *Store) read(key string) (*domain.Session, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", key, err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	return &session, nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns all session keys.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// scan loads every session, skipping files that vanish mid-scan.
func (s *Store) scan(ctx context.Context) ([]*domain.Session, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(keys))
	for _, key := range keys {
		session, err := s.read(key)
		if err == domain.ErrSessionNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// ListDue returns sleeping sessions whose wake time has passed, earliest first.
// It reads every session file, which is acceptable for the local single-node use this store targets.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	sessions, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	var due []*domain.Session
	for _, session := range sessions {
		if session.Status == domain.StatusSleeping && session.WakeAt != nil && !session.WakeAt.After(now) {
			due = append(due, session)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].WakeAt.Before(*due[j].WakeAt) })
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
	sessions, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, session := range sessions {
		if session.Status.IsTerminal() && session.LastActivityAt.Before(cutoff) {
			if err := s.Delete(ctx, session.Key); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
