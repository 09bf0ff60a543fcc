package domain

import (
	"context"
	"time"
)

// NodeEvent reports a node transition inside a step.
type NodeEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionKey string    `json:"session_key"`
	NodeID     string    `json:"node_id"`
	NodeKind   NodeKind  `json:"node_kind"`
	Status     Status    `json:"status,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously inside a step and must not block.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnSuspend   func(context.Context, *NodeEvent)
	OnTerminal  func(context.Context, *NodeEvent)
}
