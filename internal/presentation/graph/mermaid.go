package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// GraphOverlay contains session state to highlight on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// SessionOverlay builds an overlay from a session's trail.
func SessionOverlay(s *domain.Session) *GraphOverlay {
	if s == nil {
		return nil
	}
	return &GraphOverlay{VisitedNodes: s.History, CurrentNode: s.CurrentNodeID}
}

// GenerateMermaid produces a Mermaid flowchart for a flow graph.
// Shapes follow the node kind:
//   - Entry: ((Circle))
//   - Prompts (question, menu, replies, buttons): [/Parallelogram/]
//   - Delay: {{Hexagon}}
//   - Transfer: [[Subroutine]]
//   - End: ([Stadium])
//   - Message and media: [Rectangle]
//
// Choice exits are labelled with the option they stand for.
func GenerateMermaid(g *domain.FlowGraph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		opener, closer := shape(node)
		if id == g.Entry {
			opener, closer = "((", "))"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(id), opener, label(node), closer)
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if text := handleLabel(g, e); text != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escape(text))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			if _, ok := g.Nodes[id]; !ok || seen[id] || id == overlay.CurrentNode {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", sanitizeMermaidID(id))
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func shape(n domain.Node) (string, string) {
	switch n.Kind() {
	case domain.KindQuestion, domain.KindMenu, domain.KindQuickReplies, domain.KindInteractiveButtons:
		return "[/", "/]"
	case domain.KindDelay:
		return "{{", "}}"
	case domain.KindTransfer:
		return "[[", "]]"
	case domain.KindEnd:
		return "([", "])"
	}
	return "[", "]"
}

func label(n domain.Node) string {
	switch b := n.Body.(type) {
	case domain.Delay:
		return fmt.Sprintf("%s <br/> ⏱️ %s", n.ID, b.Duration)
	case domain.Transfer:
		return fmt.Sprintf("%s <br/> → %s", n.ID, b.Target)
	case domain.Question:
		return fmt.Sprintf("%s <br/> → {%s}", n.ID, b.VariableName)
	}
	return n.ID
}

// handleLabel names the option behind a choice handle.
func handleLabel(g *domain.FlowGraph, e domain.Edge) string {
	if e.SourceHandle == domain.HandleDefault || e.SourceHandle == "" {
		return ""
	}
	n, ok := g.Nodes[e.Source]
	if !ok {
		return e.SourceHandle
	}
	labels, _, ok := n.Choices()
	_, i, parsed := domain.ParseHandle(e.SourceHandle)
	if !ok || !parsed || i >= len(labels) {
		return e.SourceHandle
	}
	return labels[i]
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
