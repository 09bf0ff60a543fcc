package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Handle names.
const (
	HandleDefault = "default"
	OptionPrefix  = "option-"
	ReplyPrefix   = "reply-"
)

// OptionHandle returns the handle for the i-th (0-based) menu option or button.
func OptionHandle(i int) string { return OptionPrefix + strconv.Itoa(i) }

// ReplyHandle returns the handle for the i-th (0-based) quick reply.
func ReplyHandle(i int) string { return ReplyPrefix + strconv.Itoa(i) }

// ParseHandle splits a choice handle into prefix and index.
func ParseHandle(handle string) (prefix string, index int, ok bool) {
	for _, p := range []string{OptionPrefix, ReplyPrefix} {
		if rest, found := strings.CutPrefix(handle, p); found {
			i, err := strconv.Atoi(rest)
			if err != nil || i < 0 {
				return "", 0, false
			}
			return p, i, true
		}
	}
	return "", 0, false
}

// Edge links a node exit to a target node.
type Edge struct {
	Source       string `json:"source" yaml:"source" mapstructure:"source"`
	SourceHandle string `json:"source_handle" yaml:"source_handle" mapstructure:"source_handle"`
	Target       string `json:"target" yaml:"target" mapstructure:"target"`
}

// FlowGraph is an immutable, versioned flow definition.
// Sessions pin the (FlowID, Version) they started with; edits publish a new version.
type FlowGraph struct {
	FlowID  string
	Version int
	// Entry is the node a fresh session enters first.
	Entry string
	Nodes map[string]Node
	// Edges is ordered; on duplicate (Source, SourceHandle) pairs the first wins.
	Edges []Edge
}

// Node returns the node with the given ID.
func (g *FlowGraph) Node(id string) (Node, error) {
	n, ok := g.Nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q in flow %s v%d", ErrNodeNotFound, id, g.FlowID, g.Version)
	}
	return n, nil
}

// OutgoingEdge returns the first edge leaving nodeID through handle.
func (g *FlowGraph) OutgoingEdge(nodeID, handle string) (Edge, error) {
	for _, e := range g.Edges {
		if e.Source == nodeID && e.SourceHandle == handle {
			return e, nil
		}
	}
	return Edge{}, fmt.Errorf("%w: %s[%s]", ErrEdgeNotFound, nodeID, handle)
}

// Route resolves the edge for handle, accepting the option/reply aliasing the
// editor produces for quick replies (a "reply-1" exit may be authored as "option-1").
func (g *FlowGraph) Route(nodeID, handle string) (Edge, error) {
	e, err := g.OutgoingEdge(nodeID, handle)
	if err == nil {
		return e, nil
	}
	if alias, ok := aliasHandle(handle); ok {
		if e, aliasErr := g.OutgoingEdge(nodeID, alias); aliasErr == nil {
			return e, nil
		}
	}
	return Edge{}, err
}

func aliasHandle(handle string) (string, bool) {
	prefix, i, ok := ParseHandle(handle)
	if !ok {
		return "", false
	}
	if prefix == ReplyPrefix {
		return OptionHandle(i), true
	}
	return ReplyHandle(i), true
}

// Handles returns the exits a node can emit, in authoring order.
// End and Transfer emit none.
func Handles(n Node) []string {
	if labels, prefix, ok := n.Choices(); ok {
		out := make([]string, len(labels))
		for i := range labels {
			out[i] = prefix + strconv.Itoa(i)
		}
		return out
	}
	switch n.Kind() {
	case KindMessage, KindMedia, KindQuestion, KindDelay:
		return []string{HandleDefault}
	}
	return nil
}

// NodeIDs returns node IDs in lexical order.
func (g *FlowGraph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Successors returns the distinct targets reachable in one hop from nodeID.
func (g *FlowGraph) Successors(nodeID string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Source == nodeID && !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	return out
}

// Reachable returns the set of node IDs reachable from the entry node.
func (g *FlowGraph) Reachable() map[string]bool {
	visited := make(map[string]bool)
	if _, ok := g.Nodes[g.Entry]; !ok {
		return visited
	}
	queue := []string{g.Entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, next := range g.Successors(id) {
			if _, exists := g.Nodes[next]; exists && !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// Unreachable lists nodes that cannot be reached from the entry node.
func (g *FlowGraph) Unreachable() []string {
	reach := g.Reachable()
	var out []string
	for _, id := range g.NodeIDs() {
		if !reach[id] {
			out = append(out, id)
		}
	}
	return out
}
