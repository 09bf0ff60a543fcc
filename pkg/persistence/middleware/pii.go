package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Mask replaces the value of a masked variable at rest.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks the values of variables whose names match any pattern.
// Masked values are not recoverable: flows that interpolate them later see Mask.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	// The engine keeps using the caller's session; mask a copy.
	masked := session.Clone()
	for k := range masked.Variables {
		if m.sensitive(k) {
			masked.Variables[k] = Mask
		}
	}
	if err := m.next.Save(ctx, masked, expectedVersion); err != nil {
		return err
	}
	session.Version = masked.Version
	return nil
}

func (m *piiMiddleware) sensitive(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *piiMiddleware) Load(ctx context.Context, key string) (*domain.Session, error) {
	return m.next.Load(ctx, key)
}

func (m *piiMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return m.next.ListDue(ctx, now, limit)
}

func (m *piiMiddleware) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	return m.next.PurgeTerminal(ctx, cutoff)
}
