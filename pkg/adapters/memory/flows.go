package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// FlowRepository implements ports.FlowRepository in memory.
// Safe for concurrent use.
type FlowRepository struct {
	mu    sync.RWMutex
	flows map[string]map[int]*domain.FlowGraph
}

// NewFlowRepository creates an empty repository, optionally seeded with graphs.
func NewFlowRepository(seed ...*domain.FlowGraph) (*FlowRepository, error) {
	r := &FlowRepository{flows: make(map[string]map[int]*domain.FlowGraph)}
	for _, g := range seed {
		if _, err := r.Publish(context.Background(), g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Publish validates and stores a copy of the graph.
func (r *FlowRepository) Publish(ctx context.Context, g *domain.FlowGraph) (*domain.FlowGraph, error) {
	if err := domain.Validate(g); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.flows[g.FlowID]
	if versions == nil {
		versions = make(map[int]*domain.FlowGraph)
		r.flows[g.FlowID] = versions
	}

	stored := cloneGraph(g)
	if stored.Version == 0 {
		stored.Version = latestVersion(versions) + 1
	}
	if _, exists := versions[stored.Version]; exists {
		return nil, fmt.Errorf("%w: %s v%d", domain.ErrFlowVersionExists, g.FlowID, stored.Version)
	}
	versions[stored.Version] = stored
	return cloneGraph(stored), nil
}

// Get returns one version of a flow.
func (r *FlowRepository) Get(ctx context.Context, flowID string, version int) (*domain.FlowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.flows[flowID][version]
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", domain.ErrFlowNotFound, flowID, version)
	}
	return g, nil
}

// Latest returns the highest version of a flow.
func (r *FlowRepository) Latest(ctx context.Context, flowID string) (*domain.FlowGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.flows[flowID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return versions[latestVersion(versions)], nil
}

// List describes every flow in lexical order.
func (r *FlowRepository) List(ctx context.Context) ([]ports.FlowSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ports.FlowSummary, 0, len(r.flows))
	for id, versions := range r.flows {
		sum := ports.FlowSummary{FlowID: id}
		for v := range versions {
			sum.Versions = append(sum.Versions, v)
		}
		sort.Ints(sum.Versions)
		sum.Latest = sum.Versions[len(sum.Versions)-1]
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlowID < out[j].FlowID })
	return out, nil
}

func latestVersion(versions map[int]*domain.FlowGraph) int {
	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return latest
}

// cloneGraph copies the containers of a graph; node bodies are values.
func cloneGraph(g *domain.FlowGraph) *domain.FlowGraph {
	c := *g
	c.Nodes = make(map[string]domain.Node, len(g.Nodes))
	for id, n := range g.Nodes {
		c.Nodes[id] = n
	}
	c.Edges = append([]domain.Edge(nil), g.Edges...)
	return &c
}
