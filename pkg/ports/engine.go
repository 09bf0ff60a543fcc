package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Stepper is the pure flow stepper driven by the runner.
type Stepper interface {
	// Step applies one event to a session and returns the updated copy plus the
	// actions to perform once the copy is persisted. The input session is not mutated.
	Step(ctx context.Context, g *domain.FlowGraph, s *domain.Session, ev domain.Event) (*domain.Session, []domain.Action, error)
}
