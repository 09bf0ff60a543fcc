package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Defaults for the Manager.
const (
	DefaultLockTTL     = 30 * time.Second
	DefaultMaxAttempts = 5
)

// ErrTooManyConflicts is returned when Update keeps losing the optimistic race.
var ErrTooManyConflicts = errors.New("too many concurrent updates")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes load, step and save per session key.
// In-process callers share a reference-counted mutex per key; replicas
// coordinate through an optional DistributedLocker. Versioned saves remain
// the last line of defence, so Update retries on domain.ErrConflict.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker      ports.DistributedLocker
	lockTTL     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithMaxAttempts bounds the optimistic retries of Update.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		locks:       make(map[string]*lockEntry),
		lockTTL:     DefaultLockTTL,
		maxAttempts: DefaultMaxAttempts,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// activeLocks reports how many keys currently hold a lock entry.
func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Load retrieves a session under its lock.
func (m *Manager) Load(ctx context.Context, key string) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		s, err = m.store.Load(ctx, key)
		return err
	})
	return s, err
}

// Delete removes a session under its lock.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// UpdateFunc computes the next session from the current one.
// current is nil when no session is stored under the key.
// Returning a nil session skips the save.
type UpdateFunc func(ctx context.Context, current *domain.Session) (*domain.Session, error)

// Update runs a read-modify-write cycle under the session lock.
// fn is re-run on a fresh load whenever the save loses to a concurrent writer,
// up to the configured number of attempts. It returns the saved session, or
// nil when fn skipped the save.
func (m *Manager) Update(ctx context.Context, key string, fn UpdateFunc) (*domain.Session, error) {
	var saved *domain.Session
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		for attempt := 1; attempt <= m.maxAttempts; attempt++ {
			current, err := m.store.Load(ctx, key)
			if errors.Is(err, domain.ErrSessionNotFound) {
				current, err = nil, nil
			}
			if err != nil {
				return fmt.Errorf("failed to load session %s: %w", key, err)
			}

			var expected int64
			if current != nil {
				expected = current.Version
			}
			next, err := fn(ctx, current)
			if err != nil {
				return err
			}
			if next == nil {
				saved = nil
				return nil
			}

			err = m.store.Save(ctx, next, expected)
			if err == nil {
				saved = next
				return nil
			}
			if !errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("failed to save session %s: %w", key, err)
			}
			m.logger.Debug("session version conflict, retrying", "session_key", key, "attempt", attempt)
		}
		return fmt.Errorf("%w: %s after %d attempts", ErrTooManyConflicts, key, m.maxAttempts)
	})
	return saved, err
}

// WithLock executes fn while holding the lock for the session key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "session:"+key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if ctx was cancelled mid-step.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
