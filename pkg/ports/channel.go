package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Channel delivers outbound content to the end-user behind a session.
// Inbound messages reach the runner through the transport (HTTP webhook, console).
type Channel interface {
	Send(ctx context.Context, sessionKey string, content domain.Content) (domain.Receipt, error)
}

// HandoffGateway receives control of a conversation when a Transfer node fires.
type HandoffGateway interface {
	Transfer(ctx context.Context, sessionKey string, handoff domain.Handoff) error
}

// OperatorQueue collects sessions that need manual intervention.
type OperatorQueue interface {
	Report(ctx context.Context, incident domain.Incident) error
}
