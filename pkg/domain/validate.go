package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var variableNamePattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_.-]*$`)

// Problem is a single authoring defect found by Validate.
type Problem struct {
	NodeID string `json:"node_id,omitempty"`
	Handle string `json:"handle,omitempty"`
	Reason string `json:"reason"`
}

func (p Problem) String() string {
	switch {
	case p.NodeID != "" && p.Handle != "":
		return fmt.Sprintf("node %q [%s]: %s", p.NodeID, p.Handle, p.Reason)
	case p.NodeID != "":
		return fmt.Sprintf("node %q: %s", p.NodeID, p.Reason)
	}
	return p.Reason
}

// ValidationError aggregates every problem found in a graph.
type ValidationError struct {
	FlowID   string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("flow %s is invalid: %s", e.FlowID, e.Problems[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "flow %s is invalid: %d problems:\n", e.FlowID, len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p)
	}
	return b.String()
}

// Validate checks a graph before it is published.
// It returns nil or a *ValidationError listing every problem found.
func Validate(g *FlowGraph) error {
	if g == nil {
		return &ValidationError{Problems: []Problem{{Reason: "graph is nil"}}}
	}
	v := &validator{graph: g}
	v.checkHeader()
	for _, id := range g.NodeIDs() {
		v.checkNode(id, g.Nodes[id])
	}
	v.checkEdges()
	v.checkCoverage()
	v.checkTerminalReachable()
	v.checkSynchronousCycles()

	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{FlowID: g.FlowID, Problems: v.problems}
}

type validator struct {
	graph    *FlowGraph
	problems []Problem
}

func (v *validator) add(nodeID, handle, format string, args ...any) {
	v.problems = append(v.problems, Problem{NodeID: nodeID, Handle: handle, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) checkHeader() {
	g := v.graph
	if g.FlowID == "" {
		v.add("", "", "flow id is required")
	}
	if g.Version < 0 {
		v.add("", "", "version must not be negative")
	}
	if len(g.Nodes) == 0 {
		v.add("", "", "flow has no nodes")
		return
	}
	if g.Entry == "" {
		v.add("", "", "entry node is required")
	} else if _, ok := g.Nodes[g.Entry]; !ok {
		v.add(g.Entry, "", "entry node does not exist")
	}
}

func (v *validator) checkNode(id string, n Node) {
	if n.ID != id {
		v.add(id, "", "node id %q does not match its key", n.ID)
	}
	switch b := n.Body.(type) {
	case nil:
		v.add(id, "", "node has no body")
	case Message:
		if strings.TrimSpace(b.Text) == "" {
			v.add(id, "", "message text is empty")
		}
	case Question:
		if strings.TrimSpace(b.Prompt) == "" {
			v.add(id, "", "question prompt is empty")
		}
		if !variableNamePattern.MatchString(b.VariableName) {
			v.add(id, "", "invalid variable name %q", b.VariableName)
		}
	case Menu:
		v.checkLabels(id, "menu option", b.Options)
	case InteractiveButtons:
		v.checkLabels(id, "button", b.Buttons)
	case QuickReplies:
		v.checkLabels(id, "quick reply", b.Replies)
		if len(b.Replies) > MaxQuickReplies {
			v.add(id, "", "at most %d quick replies are allowed, got %d", MaxQuickReplies, len(b.Replies))
		}
	case Media:
		switch b.MediaType {
		case MediaImage, MediaAudio, MediaVideo, MediaDocument:
		default:
			v.add(id, "", "unknown media type %q", b.MediaType)
		}
		if b.URL == "" {
			v.add(id, "", "media url is empty")
		}
	case Delay:
		if b.Duration <= 0 {
			v.add(id, "", "delay duration must be positive")
		}
	case Transfer:
		if !b.Target.Kind.Valid() {
			v.add(id, "", "unknown transfer target kind %q", b.Target.Kind)
		}
		if b.Target.ID == "" {
			v.add(id, "", "transfer target id is empty")
		}
	case End:
	}
}

func (v *validator) checkLabels(id, what string, labels []string) {
	if len(labels) == 0 {
		v.add(id, "", "no %ss defined", what)
		return
	}
	seen := make(map[string]bool, len(labels))
	for i, l := range labels {
		key := strings.ToLower(strings.TrimSpace(l))
		if key == "" {
			v.add(id, "", "%s %d is empty", what, i+1)
			continue
		}
		if seen[key] {
			v.add(id, "", "duplicate %s %q", what, l)
		}
		seen[key] = true
	}
}

func (v *validator) checkEdges() {
	g := v.graph
	type pair struct{ source, handle string }
	seen := make(map[pair]bool)
	for _, e := range g.Edges {
		src, ok := g.Nodes[e.Source]
		if !ok {
			v.add(e.Source, e.SourceHandle, "edge source does not exist")
			continue
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			v.add(e.Source, e.SourceHandle, "edge target %q does not exist", e.Target)
		}
		if !emits(src, e.SourceHandle) {
			v.add(e.Source, e.SourceHandle, "%s node cannot emit this handle", src.Kind())
		}
		p := pair{e.Source, e.SourceHandle}
		if seen[p] {
			v.add(e.Source, e.SourceHandle, "duplicate edge for handle")
		}
		seen[p] = true
	}
}

// emits reports whether handle (or its option/reply alias) is a valid exit of n.
func emits(n Node, handle string) bool {
	for _, h := range Handles(n) {
		if h == handle {
			return true
		}
	}
	if _, _, ok := n.Choices(); ok {
		if alias, ok := aliasHandle(handle); ok {
			for _, h := range Handles(n) {
				if h == alias {
					return true
				}
			}
		}
	}
	return false
}

func (v *validator) checkCoverage() {
	g := v.graph
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.Body == nil {
			continue
		}
		handles := Handles(n)
		if len(handles) == 0 {
			continue
		}
		if len(g.Successors(id)) == 0 {
			v.add(id, "", "%s node has no outgoing edges", n.Kind())
			continue
		}
		for _, h := range handles {
			if _, err := g.Route(id, h); err != nil {
				v.add(id, h, "no edge for handle")
			}
		}
	}
}

func (v *validator) checkTerminalReachable() {
	g := v.graph
	if _, ok := g.Nodes[g.Entry]; !ok {
		return
	}
	for id := range g.Reachable() {
		if g.Nodes[id].Kind().IsTerminal() {
			return
		}
	}
	v.add("", "", "no End or Transfer node is reachable from entry %q", g.Entry)
}

// checkSynchronousCycles rejects cycles made only of auto-advancing nodes,
// which would spin until the engine's step cap trips.
func (v *validator) checkSynchronousCycles() {
	g := v.graph
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		for _, next := range g.Successors(id) {
			n, ok := g.Nodes[next]
			if !ok || n.Kind().Suspends() {
				continue
			}
			switch color[next] {
			case grey:
				v.add(next, "", "cycle through %q has no suspend point", id)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.Body == nil || n.Kind().Suspends() || color[id] != white {
			continue
		}
		if visit(id) {
			return
		}
	}
}
