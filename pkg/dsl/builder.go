package dsl

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	flowID  string
	version int
	entry   string
	order   []string
	nodes   map[string]*NodeBuilder
}

// New creates a new graph builder for flowID.
func New(flowID string) *Builder {
	return &Builder{
		flowID: flowID,
		nodes:  make(map[string]*NodeBuilder),
	}
}

// Version pins the version of the built graph. Zero lets the repository assign one.
func (b *Builder) Version(v int) *Builder {
	b.version = v
	return b
}

// Entry sets the entry node. By default it is the first node added.
func (b *Builder) Entry(id string) *Builder {
	b.entry = id
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{id: id, builder: b}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build compiles and validates the graph.
// Edges are emitted in the order nodes were added, then in the order they were declared.
func (b *Builder) Build() (*domain.FlowGraph, error) {
	g := &domain.FlowGraph{
		FlowID:  b.flowID,
		Version: b.version,
		Entry:   b.entry,
		Nodes:   make(map[string]domain.Node, len(b.nodes)),
	}
	if g.Entry == "" && len(b.order) > 0 {
		g.Entry = b.order[0]
	}

	for _, id := range b.order {
		nb := b.nodes[id]
		node := domain.Node{ID: id, Body: nb.body}
		g.Nodes[id] = node
		for _, e := range nb.exits {
			handle, err := resolve(node, e)
			if err != nil {
				return nil, err
			}
			g.Edges = append(g.Edges, domain.Edge{Source: id, SourceHandle: handle, Target: e.target})
		}
	}

	if err := domain.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// resolve turns a labelled exit into the handle of the matching choice.
func resolve(n domain.Node, e exit) (string, error) {
	if e.label == "" {
		return e.handle, nil
	}
	labels, prefix, ok := n.Choices()
	if !ok {
		return "", fmt.Errorf("node %q: %s node has no choices to match %q", n.ID, n.Kind(), e.label)
	}
	for i, l := range labels {
		if strings.EqualFold(strings.TrimSpace(l), strings.TrimSpace(e.label)) {
			return prefix + fmt.Sprint(i), nil
		}
	}
	return "", fmt.Errorf("node %q: no choice labelled %q", n.ID, e.label)
}
