package ports

import (
	"context"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// SessionStore defines the interface for persisting sessions with optimistic versioning.
type SessionStore interface {
	// Load retrieves the session for a key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, key string) (*domain.Session, error)

	// Save persists the session if the stored version equals expectedVersion.
	// An expectedVersion of 0 means the session must not exist yet.
	// On success the stored version and session.Version become expectedVersion+1.
	// Returns domain.ErrConflict on a version mismatch.
	Save(ctx context.Context, session *domain.Session, expectedVersion int64) error

	// Delete removes the session for a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all session keys.
	List(ctx context.Context) ([]string, error)

	// ListDue returns the keys of sleeping sessions whose wake time is at or
	// before now, earliest first. A limit <= 0 means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// PurgeTerminal deletes terminal sessions whose last activity is before cutoff
	// and returns how many were removed.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}
