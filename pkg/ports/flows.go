package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// FlowSummary describes a published flow.
type FlowSummary struct {
	FlowID   string `json:"flow_id"`
	Latest   int    `json:"latest"`
	Versions []int  `json:"versions"`
}

// FlowRepository stores immutable, versioned flow graphs.
// Sessions pin the version they started with, so old versions stay retrievable.
type FlowRepository interface {
	// Publish validates and stores a graph. A zero Version is assigned the next free one.
	// Returns domain.ErrFlowVersionExists when the version was already published.
	Publish(ctx context.Context, g *domain.FlowGraph) (*domain.FlowGraph, error)

	// Get returns one version of a flow, or domain.ErrFlowNotFound.
	Get(ctx context.Context, flowID string, version int) (*domain.FlowGraph, error)

	// Latest returns the highest published version of a flow, or domain.ErrFlowNotFound.
	Latest(ctx context.Context, flowID string) (*domain.FlowGraph, error)

	// List describes every published flow.
	List(ctx context.Context) ([]FlowSummary, error)
}

// Watchable defines an interface for repositories that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying flows change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
