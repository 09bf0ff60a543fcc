package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphMismatch is returned when the graph is not the version the session is pinned to.
	ErrGraphMismatch = errors.New("graph does not match session flow version")
	// ErrInvalidEvent is returned for an event the engine cannot interpret.
	ErrInvalidEvent = errors.New("invalid event")
)

// IntegrityError describes a run-time data-integrity failure: a validated graph
// that nonetheless misses a node or edge, or a traversal that exceeded the step cap.
// The session is moved to errored and the error text becomes its Reason.
type IntegrityError struct {
	NodeID string
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity failure at node %q: %s", e.NodeID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// stepCapError builds the IntegrityError raised when one step enters more nodes than allowed.
func stepCapError(nodeID string, steps int) *IntegrityError {
	return &IntegrityError{
		NodeID: nodeID,
		Reason: fmt.Sprintf("step cap exceeded: possible cycle without suspend point (%d nodes entered in one step)", steps),
	}
}
