package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// ActionDispatcher defines how engine actions are performed.
// The engine emits actions, and the host implements this interface to carry them out.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, sessionKey string, action domain.Action) error
}
