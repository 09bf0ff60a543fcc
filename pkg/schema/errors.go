package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNodeType is returned for a node whose type names no known variant.
var ErrUnknownNodeType = errors.New("unknown node type")

// NodeError reports a node that could not be decoded.
type NodeError struct {
	NodeID string
	Type   string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q (%s): %v", e.NodeID, e.Type, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// AggregateError represents multiple decoding failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d decoding errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// DecodeErrors returns all decoding errors if err is an AggregateError.
// Otherwise returns nil.
func DecodeErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
