package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// farFuture scores index entries of sessions without TTL (2100-01-01).
const farFuture = 4102444800

// Store implements ports.SessionStore using Redis.
//
// Each session is a JSON string. Three sorted sets index it:
// "index" (score = expiry, pruned lazily by List), "wake" (score = wake time
// in ms, sleeping sessions only) and "terminal" (score = last activity in ms,
// terminal sessions only). Saves are optimistic transactions (WATCH/MULTI).
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "parley:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(sessionKey string) string { return s.prefix + sessionKey }
func (s *Store) indexKey() string             { return s.prefix + "index" }
func (s *Store) wakeKey() string              { return s.prefix + "wake" }
func (s *Store) terminalKey() string          { return s.prefix + "terminal" }

// Save persists the session if the stored version equals expectedVersion.
func (s *Store) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	stored := session.Clone()
	stored.Version = expectedVersion + 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	k := s.key(session.Key)
	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		current, err := storedVersion(ctx, tx, k)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return domain.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			// Use 0 for no expiration if ttl is not set.
			pipe.Set(ctx, k, data, s.ttl)

			score := float64(time.Now().Add(s.ttl).Unix())
			if s.ttl == 0 {
				score = farFuture
			}
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.Key})

			if stored.Status == domain.StatusSleeping && stored.WakeAt != nil {
				pipe.ZAdd(ctx, s.wakeKey(), backend.Z{Score: float64(stored.WakeAt.UnixMilli()), Member: session.Key})
			} else {
				pipe.ZRem(ctx, s.wakeKey(), session.Key)
			}
			if stored.Status.IsTerminal() {
				pipe.ZAdd(ctx, s.terminalKey(), backend.Z{Score: float64(stored.LastActivityAt.UnixMilli()), Member: session.Key})
			} else {
				pipe.ZRem(ctx, s.terminalKey(), session.Key)
			}
			return nil
		})
		return err
	}, k)

	switch {
	case errors.Is(err, backend.TxFailedErr):
		return domain.ErrConflict
	case errors.Is(err, domain.ErrConflict):
		return err
	case err != nil:
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	session.Version = stored.Version
	return nil
}

// storedVersion reads the version of the stored session, 0 if absent.
func storedVersion(ctx context.Context, tx *backend.Tx, k string) (int64, error) {
	raw, err := tx.Get(ctx, k).Bytes()
	if err == backend.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get from redis: %w", err)
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("failed to unmarshal session version: %w", err)
	}
	return head.Version, nil
}

// Load retrieves the session from Redis.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	return &session, nil
}

// Delete removes the session and its index entries.
func (s *Store) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key)
	pipe.ZRem(ctx, s.wakeKey(), key)
	pipe.ZRem(ctx, s.terminalKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live session keys, pruning index entries whose TTL has passed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListDue returns sleeping sessions whose wake time has passed, earliest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	by := &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	keys, err := s.client.ZRangeByScore(ctx, s.wakeKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due sessions: %w", err)
	}
	return keys, nil
}

// PurgeTerminal removes terminal sessions idle since before cutoff.
// Each removal re-checks the session inside a transaction, so a key re-used by
// a fresh session in the meantime survives.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.client.ZRangeByScore(ctx, s.terminalKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list terminal sessions: %w", err)
	}

	n := 0
	for _, key := range keys {
		purged, err := s.purgeOne(ctx, key, cutoff)
		if err != nil {
			return n, err
		}
		if purged {
			n++
		}
	}
	return n, nil
}

func (s *Store) purgeOne(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	purged := false
	k := s.key(key)
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err != nil && err != backend.Nil {
			return err
		}
		if err == nil {
			var session domain.Session
			if err := json.Unmarshal(raw, &session); err != nil {
				return err
			}
			if !session.Status.IsTerminal() || !session.LastActivityAt.Before(cutoff) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Del(ctx, k)
			pipe.ZRem(ctx, s.indexKey(), key)
			pipe.ZRem(ctx, s.wakeKey(), key)
			pipe.ZRem(ctx, s.terminalKey(), key)
			return nil
		})
		purged = err == nil && raw != nil
		return err
	}, k)
	if errors.Is(err, backend.TxFailedErr) {
		return false, nil
	}
	return purged, err
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
