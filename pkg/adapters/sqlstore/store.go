// Package sqlstore implements ports.SessionStore on database/sql.
//
// The same store serves SQLite (modernc.org/sqlite, driver "sqlite") and
// PostgreSQL (pgx stdlib, driver "pgx"); a Dialect adapts placeholders.
// The caller is responsible for importing the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//	import _ "github.com/jackc/pgx/v5/stdlib"
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Store persists sessions as JSON documents next to the columns the
// scheduler and the retention sweep query on.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

var _ ports.SessionStore = (*Store)(nil)

type Option func(*Store)

// WithTable overrides the table name (default "parley_sessions").
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = name
	}
}

// New initializes the schema in db and returns a Store.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, dialect: dialect, table: "parley_sessions"}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init %s schema: %w", dialect, err)
	}
	return s, nil
}

// Open opens a database for the dialect's registered driver and initializes the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	driver := "sqlite"
	if dialect == Postgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer at a time; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	s, err := New(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			session_key TEXT PRIMARY KEY,
			version BIGINT NOT NULL,
			status TEXT NOT NULL,
			wake_at BIGINT,
			last_activity_at BIGINT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_wake_idx ON ` + s.table + ` (wake_at)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_activity_idx ON ` + s.table + ` (status, last_activity_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to the dialect's style.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save persists the session if the stored version equals expectedVersion.
func (s *Store) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	stored := session.Clone()
	stored.Version = expectedVersion + 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var wakeAt sql.NullInt64
	if stored.Status == domain.StatusSleeping && stored.WakeAt != nil {
		wakeAt = sql.NullInt64{Int64: stored.WakeAt.UnixMilli(), Valid: true}
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO `+s.table+` (session_key, version, status, wake_at, last_activity_at, data)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_key) DO NOTHING`),
			stored.Key, stored.Version, string(stored.Status), wakeAt, stored.LastActivityAt.UnixMilli(), string(data),
		)
	} else {
		res, err = s.db.ExecContext(ctx, s.rebind(`
			UPDATE `+s.table+`
			SET version = ?, status = ?, wake_at = ?, last_activity_at = ?, data = ?
			WHERE session_key = ? AND version = ?`),
			stored.Version, string(stored.Status), wakeAt, stored.LastActivityAt.UnixMilli(), string(data),
			stored.Key, expectedVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.Key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.Key, err)
	}
	if affected == 0 {
		return domain.ErrConflict
	}
	session.Version = stored.Version
	return nil
}

// Load retrieves the session for a key.
func (s *Store) Load(ctx context.Context, key string) (*domain.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM `+s.table+` WHERE session_key = ?`), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", key, err)
	}
	return &sess, nil
}

// Delete removes the session for a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM `+s.table+` WHERE session_key = ?`), key); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

// List returns all session keys in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.keys(ctx, `SELECT session_key FROM `+s.table+` ORDER BY session_key`)
}

// ListDue returns sleeping sessions whose wake time has passed, earliest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `SELECT session_key FROM ` + s.table + `
		WHERE status = ? AND wake_at IS NOT NULL AND wake_at <= ?
		ORDER BY wake_at, session_key`
	args := []any{string(domain.StatusSleeping), now.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.keys(ctx, s.rebind(query), args...)
}

// PurgeTerminal deletes terminal sessions idle since before cutoff.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM `+s.table+`
		WHERE status IN (?, ?, ?) AND last_activity_at < ?`),
		string(domain.StatusEnded), string(domain.StatusHandedOff), string(domain.StatusErrored), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return int(n), nil
}

func (s *Store) keys(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan session key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
