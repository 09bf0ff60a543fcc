// Package loam serves published flows from a directory of flow documents
// (YAML, JSON or Markdown front matter) through the Loam library.
//
// The directory is the source of truth: one document per flow version,
// edited and reviewed like code. The repository is read-only; Publish fails.
package loam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/schema"
)

// ErrReadOnly is returned by Publish.
var ErrReadOnly = domain.ErrReadOnly

// watchPattern selects the documents that may hold flows.
const watchPattern = "**/*.{md,json,yaml,yml}"

// FlowRepository implements ports.FlowRepository over a Loam repository.
type FlowRepository struct {
	repo   *loam.TypedRepository[schema.Document]
	logger *slog.Logger

	mu    sync.RWMutex
	flows map[string]map[int]*domain.FlowGraph
}

var (
	_ ports.FlowRepository = (*FlowRepository)(nil)
	_ ports.Watchable      = (*FlowRepository)(nil)
)

type Option func(*FlowRepository)

func WithLogger(logger *slog.Logger) Option {
	return func(r *FlowRepository) {
		r.logger = logger
	}
}

// Open initializes a strict, read-only Loam repository at dir and loads its flows.
func Open(ctx context.Context, dir string, opts ...Option) (*FlowRepository, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("flows directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("flows directory: %s is not a directory", absPath)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	r := New(loam.NewTypedRepository[schema.Document](repo), opts...)
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// New wraps a typed Loam repository. Call Reload before use.
func New(repo *loam.TypedRepository[schema.Document], opts ...Option) *FlowRepository {
	r := &FlowRepository{
		repo:   repo,
		logger: logging.NewNop(),
		flows:  make(map[string]map[int]*domain.FlowGraph),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload reads every document and swaps the flow index.
// Any invalid document fails the reload and keeps the previous index, so a bad
// edit never takes published flows offline.
func (r *FlowRepository) Reload(ctx context.Context) error {
	docs, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loam list failed: %w", err)
	}

	next := make(map[string]map[int]*domain.FlowGraph)
	seen := make(map[string]string)
	var errs []error
	for _, doc := range docs {
		if doc.Data.FlowID == "" {
			// Not a flow document (README, notes).
			continue
		}
		g, err := schema.Decode(&doc.Data)
		if err == nil {
			err = domain.Validate(g)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", doc.ID, err))
			continue
		}
		ref := fmt.Sprintf("%s v%d", g.FlowID, g.Version)
		if prev, ok := seen[ref]; ok {
			errs = append(errs, fmt.Errorf("collision detected: %s is defined in both '%s' and '%s'", ref, prev, doc.ID))
			continue
		}
		seen[ref] = doc.ID
		if next[g.FlowID] == nil {
			next[g.FlowID] = make(map[int]*domain.FlowGraph)
		}
		next[g.FlowID][g.Version] = g
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid flow documents: %w", errors.Join(errs...))
	}

	r.mu.Lock()
	r.flows = next
	r.mu.Unlock()
	r.logger.Info("flows loaded", "documents", len(docs), "flows", len(next))
	return nil
}

// Publish always fails: flows are published by committing documents.
func (r *FlowRepository) Publish(ctx context.Context, g *domain.FlowGraph) (*domain.FlowGraph, error) {
	return nil, fmt.Errorf("%w: publish %s by committing a document", ErrReadOnly, g.FlowID)
}

func (r *FlowRepository) Get(ctx context.Context, flowID string, version int) (*domain.FlowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.flows[flowID][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", domain.ErrFlowNotFound, flowID, version)
	}
	return g, nil
}

func (r *FlowRepository) Latest(ctx context.Context, flowID string) (*domain.FlowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.flows[flowID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return versions[latest], nil
}

func (r *FlowRepository) List(ctx context.Context) ([]ports.FlowSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.FlowSummary, 0, len(r.flows))
	for id, versions := range r.flows {
		s := ports.FlowSummary{FlowID: id}
		for v := range versions {
			s.Versions = append(s.Versions, v)
		}
		sort.Ints(s.Versions)
		s.Latest = s.Versions[len(s.Versions)-1]
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlowID < out[j].FlowID })
	return out, nil
}

// Watch reloads the index whenever a document changes and signals after each
// successful reload. A failed reload is logged and the previous index stays.
func (r *FlowRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := r.repo.Watch(ctx, watchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := r.Reload(ctx); err != nil {
					r.logger.Error("flow reload failed", "document", evt.ID, "err", err)
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}
