package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func problems(t *testing.T, err error) []domain.Problem {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Problems
}

func hasProblem(ps []domain.Problem, nodeID, substr string) bool {
	for _, p := range ps {
		if p.NodeID == nodeID && strings.Contains(p.Reason, substr) {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	t.Run("Valid Graph", func(t *testing.T) {
		assert.NoError(t, domain.Validate(greetingGraph()))
	})

	t.Run("Nil Graph", func(t *testing.T) {
		assert.Error(t, domain.Validate(nil))
	})

	t.Run("Missing Entry", func(t *testing.T) {
		g := greetingGraph()
		g.Entry = "ghost"
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "ghost", "entry node does not exist"))
	})

	t.Run("Dangling Edge Target", func(t *testing.T) {
		g := greetingGraph()
		g.Edges[0].Target = "ghost"
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "hello", "does not exist"))
	})

	t.Run("Uncovered Choice", func(t *testing.T) {
		g := greetingGraph()
		g.Edges = g.Edges[:3] // drop confirm option-1
		g.Edges = append(g.Edges, domain.Edge{Source: "wait", SourceHandle: domain.HandleDefault, Target: "agent"})
		ps := problems(t, domain.Validate(g))
		assert.True(t, hasProblem(ps, "confirm", "no edge for handle"))
	})

	t.Run("Handle Not Emitted", func(t *testing.T) {
		g := greetingGraph()
		g.Edges = append(g.Edges, domain.Edge{Source: "ask", SourceHandle: "option-0", Target: "bye"})
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "ask", "cannot emit"))
	})

	t.Run("Too Many Quick Replies", func(t *testing.T) {
		g := greetingGraph()
		g.Nodes["confirm"] = domain.Node{ID: "confirm", Body: domain.QuickReplies{Text: "?", Replies: []string{"a", "b", "c", "d"}}}
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "confirm", "at most 3"))
	})

	t.Run("Duplicate Labels", func(t *testing.T) {
		g := greetingGraph()
		g.Nodes["confirm"] = domain.Node{ID: "confirm", Body: domain.QuickReplies{Text: "?", Replies: []string{"Sim", " sim "}}}
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "confirm", "duplicate"))
	})

	t.Run("Invalid Variable Name", func(t *testing.T) {
		g := greetingGraph()
		g.Nodes["ask"] = domain.Node{ID: "ask", Body: domain.Question{Prompt: "?", VariableName: "1bad name"}}
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "ask", "invalid variable name"))
	})

	t.Run("No Terminal Reachable", func(t *testing.T) {
		g := &domain.FlowGraph{
			FlowID: "loop", Entry: "q",
			Nodes: map[string]domain.Node{
				"q": {ID: "q", Body: domain.Question{Prompt: "?", VariableName: "x"}},
			},
			Edges: []domain.Edge{{Source: "q", SourceHandle: domain.HandleDefault, Target: "q"}},
		}
		assert.True(t, hasProblem(problems(t, domain.Validate(g)), "", "no End or Transfer"))
	})

	t.Run("Cycle Without Suspend Point", func(t *testing.T) {
		g := &domain.FlowGraph{
			FlowID: "spin", Entry: "a",
			Nodes: map[string]domain.Node{
				"a":   {ID: "a", Body: domain.Message{Text: "a"}},
				"b":   {ID: "b", Body: domain.Message{Text: "b"}},
				"end": {ID: "end", Body: domain.End{}},
			},
			Edges: []domain.Edge{
				{Source: "a", SourceHandle: domain.HandleDefault, Target: "b"},
				{Source: "b", SourceHandle: domain.HandleDefault, Target: "a"},
			},
		}
		ps := problems(t, domain.Validate(g))
		found := false
		for _, p := range ps {
			if strings.Contains(p.Reason, "no suspend point") {
				found = true
			}
		}
		assert.True(t, found, "expected cycle problem, got %v", ps)
	})

	t.Run("Cycle Through Question Is Fine", func(t *testing.T) {
		g := greetingGraph()
		g.Edges[2].Target = "hello" // confirm "Sim" loops back through the question
		assert.NoError(t, domain.Validate(g))
	})

	t.Run("Error Aggregates", func(t *testing.T) {
		g := greetingGraph()
		g.FlowID = ""
		g.Nodes["wait"] = domain.Node{ID: "wait", Body: domain.Delay{}}
		err := domain.Validate(g)
		require.Error(t, err)
		assert.GreaterOrEqual(t, len(problems(t, err)), 2)
		assert.Contains(t, err.Error(), "problems")
	})
}
