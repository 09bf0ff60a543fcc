package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func greetingGraph() *domain.FlowGraph {
	return &domain.FlowGraph{
		FlowID:  "greeting",
		Version: 1,
		Entry:   "hello",
		Nodes: map[string]domain.Node{
			"hello":   {ID: "hello", Body: domain.Message{Text: "Olá!"}},
			"ask":     {ID: "ask", Body: domain.Question{Prompt: "Qual é o seu nome?", VariableName: "nome"}},
			"confirm": {ID: "confirm", Body: domain.QuickReplies{Text: "Prazer, {nome}. Continuar?", Replies: []string{"Sim", "Não"}}},
			"wait":    {ID: "wait", Body: domain.Delay{Duration: 10 * time.Second}},
			"agent":   {ID: "agent", Body: domain.Transfer{Target: domain.Target{Kind: domain.TargetSector, ID: "suporte"}, HandoffMessage: "Cliente {nome}"}},
			"bye":     {ID: "bye", Body: domain.End{FinalMessage: "Tchau, {nome}!"}},
		},
		Edges: []domain.Edge{
			{Source: "hello", SourceHandle: domain.HandleDefault, Target: "ask"},
			{Source: "ask", SourceHandle: domain.HandleDefault, Target: "confirm"},
			{Source: "confirm", SourceHandle: "reply-0", Target: "wait"},
			{Source: "confirm", SourceHandle: "reply-1", Target: "bye"},
			{Source: "wait", SourceHandle: domain.HandleDefault, Target: "agent"},
		},
	}
}

func newSession(g *domain.FlowGraph) *domain.Session {
	return domain.NewSession(g.FlowID, g.Version, "5511999", t0)
}

func step(t *testing.T, e *runtime.Engine, g *domain.FlowGraph, s *domain.Session, ev domain.Event) (*domain.Session, []domain.Action) {
	t.Helper()
	next, actions, err := e.Step(context.Background(), g, s, ev)
	require.NoError(t, err)
	require.NoError(t, next.CheckInvariants(g), "status %s", next.Status)
	return next, actions
}

func texts(actions []domain.Action) []string {
	var out []string
	for _, a := range actions {
		if a.Content != nil {
			out = append(out, a.Content.Text)
		}
	}
	return out
}

// waitingOnConfirm drives a fresh session through greeting and name capture.
func waitingOnConfirm(t *testing.T, e *runtime.Engine, g *domain.FlowGraph) *domain.Session {
	t.Helper()
	s, _ := step(t, e, g, newSession(g), domain.UserReply("oi", t0))
	s, _ = step(t, e, g, s, domain.UserReply("Maria", t0.Add(time.Second)))
	require.Equal(t, "confirm", s.CurrentNodeID)
	return s
}

func TestEngine_Step(t *testing.T) {
	g := greetingGraph()
	e := runtime.NewEngine()

	t.Run("First Event Enters Entry", func(t *testing.T) {
		s, actions := step(t, e, g, newSession(g), domain.UserReply("oi", t0))

		assert.Equal(t, []string{"Olá!", "Qual é o seu nome?"}, texts(actions))
		assert.Equal(t, domain.StatusWaitingForInput, s.Status)
		assert.Equal(t, "ask", s.CurrentNodeID)
		require.NotNil(t, s.ExpectedInput)
		assert.Equal(t, domain.InputFreeText, s.ExpectedInput.Kind)
		assert.Equal(t, "nome", s.ExpectedInput.VariableName)
		assert.Empty(t, s.Variables, "triggering text is not bound")
		assert.Equal(t, []string{"hello", "ask"}, s.History)
	})

	t.Run("Free Text Binds Variable", func(t *testing.T) {
		s, _ := step(t, e, g, newSession(g), domain.UserReply("oi", t0))
		s, actions := step(t, e, g, s, domain.UserReply("  Maria ", t0.Add(time.Second)))

		assert.Equal(t, "Maria", s.Variables["nome"])
		require.Len(t, actions, 1)
		assert.Equal(t, domain.ActionSend, actions[0].Type)
		assert.Equal(t, "Prazer, Maria. Continuar?", actions[0].Content.Text)
		assert.Equal(t, []string{"Sim", "Não"}, actions[0].Content.Options)
		assert.Equal(t, domain.InputChoice, s.ExpectedInput.Kind)
		assert.Equal(t, domain.ReplyPrefix, s.ExpectedInput.HandlePrefix)
		assert.Equal(t, t0.Add(time.Second), s.LastActivityAt)
	})

	t.Run("Empty Answer Re-Prompts", func(t *testing.T) {
		s, _ := step(t, e, g, newSession(g), domain.UserReply("oi", t0))
		next, actions := step(t, e, g, s, domain.UserReply("   ", t0.Add(time.Second)))

		require.Len(t, actions, 1)
		assert.Equal(t, domain.ActionRepeat, actions[0].Type)
		assert.Equal(t, "Qual é o seu nome?", actions[0].Content.Text)
		assert.Equal(t, "ask", next.CurrentNodeID)
		assert.Equal(t, domain.StatusWaitingForInput, next.Status)
	})

	t.Run("Input Session Not Mutated", func(t *testing.T) {
		s := newSession(g)
		_, _ = step(t, e, g, s, domain.UserReply("oi", t0))
		assert.False(t, s.Started())
		assert.Empty(t, s.History)
	})
}

func TestEngine_MenuConversation(t *testing.T) {
	g := &domain.FlowGraph{
		FlowID: "cadastro", Version: 1, Entry: "hello",
		Nodes: map[string]domain.Node{
			"hello": {ID: "hello", Body: domain.Message{Text: "Olá"}},
			"ask":   {ID: "ask", Body: domain.Question{Prompt: "Como você se chama?", VariableName: "nome"}},
			"menu":  {ID: "menu", Body: domain.Menu{Title: "Tudo certo?", Options: []string{"Sim", "Não"}}},
			"bye":   {ID: "bye", Body: domain.End{FinalMessage: "Tchau {nome}"}},
			"retry": {ID: "retry", Body: domain.End{FinalMessage: "Até logo"}},
		},
		Edges: []domain.Edge{
			{Source: "hello", SourceHandle: domain.HandleDefault, Target: "ask"},
			{Source: "ask", SourceHandle: domain.HandleDefault, Target: "menu"},
			{Source: "menu", SourceHandle: domain.OptionHandle(0), Target: "bye"},
			{Source: "menu", SourceHandle: domain.OptionHandle(1), Target: "retry"},
		},
	}
	e := runtime.NewEngine()

	turns := []struct {
		reply     string
		wantTexts []string
		wantNode  string
		wantState domain.Status
	}{
		{reply: "oi", wantTexts: []string{"Olá", "Como você se chama?"}, wantNode: "ask", wantState: domain.StatusWaitingForInput},
		{reply: "Ana", wantTexts: []string{"Tudo certo?"}, wantNode: "menu", wantState: domain.StatusWaitingForInput},
		{reply: "Sim", wantTexts: []string{"Tchau Ana"}, wantNode: "bye", wantState: domain.StatusEnded},
	}

	s := newSession(g)
	for i, tt := range turns {
		next, actions := step(t, e, g, s, domain.UserReply(tt.reply, t0.Add(time.Duration(i)*time.Second)))
		assert.Equal(t, tt.wantTexts, texts(actions), "reply %q", tt.reply)
		assert.Equal(t, tt.wantNode, next.CurrentNodeID, "reply %q", tt.reply)
		assert.Equal(t, tt.wantState, next.Status, "reply %q", tt.reply)
		s = next
	}
	assert.Equal(t, map[string]string{"nome": "Ana"}, s.Variables)
	assert.Equal(t, []string{"hello", "ask", "menu", "bye"}, s.History)
	assert.Nil(t, s.ExpectedInput)
}

func TestEngine_ChoiceRouting(t *testing.T) {
	g := greetingGraph()
	e := runtime.NewEngine()
	s := waitingOnConfirm(t, e, g)

	for _, reply := range []string{"Sim", "sim", " SIM ", "1"} {
		t.Run("Yes "+reply, func(t *testing.T) {
			next, actions := step(t, e, g, s, domain.UserReply(reply, t0.Add(time.Minute)))
			assert.Equal(t, "wait", next.CurrentNodeID)
			assert.Equal(t, domain.StatusSleeping, next.Status)
			assert.Empty(t, actions)
		})
	}

	for _, reply := range []string{"Não", "não", "NÃO", "2"} {
		t.Run("No "+reply, func(t *testing.T) {
			next, actions := step(t, e, g, s, domain.UserReply(reply, t0.Add(time.Minute)))
			assert.Equal(t, "bye", next.CurrentNodeID)
			assert.Equal(t, domain.StatusEnded, next.Status)
			assert.Equal(t, []string{"Tchau, Maria!"}, texts(actions))
			assert.Nil(t, next.ExpectedInput)
		})
	}

	for _, reply := range []string{"talvez", "3", "0", ""} {
		t.Run("Unmatched "+reply, func(t *testing.T) {
			next, actions := step(t, e, g, s, domain.UserReply(reply, t0.Add(time.Minute)))
			require.Len(t, actions, 1)
			assert.Equal(t, domain.ActionRepeat, actions[0].Type)
			assert.Equal(t, "Prazer, Maria. Continuar?", actions[0].Content.Text)
			assert.Equal(t, "confirm", next.CurrentNodeID)
			assert.Equal(t, domain.StatusWaitingForInput, next.Status)
			assert.Equal(t, s.Variables, next.Variables)
		})
	}
}

func TestEngine_QuickReplyOptionAlias(t *testing.T) {
	g := greetingGraph()
	g.Edges[3] = domain.Edge{Source: "confirm", SourceHandle: "option-1", Target: "bye"}
	e := runtime.NewEngine()
	s := waitingOnConfirm(t, e, g)

	next, _ := step(t, e, g, s, domain.UserReply("Não", t0.Add(time.Minute)))
	assert.Equal(t, "bye", next.CurrentNodeID)
}

func TestEngine_Menu(t *testing.T) {
	g := &domain.FlowGraph{
		FlowID: "menu", Version: 1, Entry: "m",
		Nodes: map[string]domain.Node{
			"m": {ID: "m", Body: domain.Menu{Title: "Escolha:", Options: []string{"Vendas", "Suporte", "Financeiro"}}},
			"a": {ID: "a", Body: domain.End{FinalMessage: "vendas"}},
			"b": {ID: "b", Body: domain.End{FinalMessage: "suporte"}},
			"c": {ID: "c", Body: domain.Transfer{Target: domain.Target{Kind: domain.TargetUser, ID: "ana"}}},
		},
		Edges: []domain.Edge{
			{Source: "m", SourceHandle: "option-0", Target: "a"},
			{Source: "m", SourceHandle: "option-1", Target: "b"},
			{Source: "m", SourceHandle: "option-2", Target: "c"},
		},
	}
	e := runtime.NewEngine()
	s, actions := step(t, e, g, newSession(g), domain.UserReply("oi", t0))
	require.Len(t, actions, 1)
	assert.Equal(t, []string{"Vendas", "Suporte", "Financeiro"}, actions[0].Content.Options)
	assert.Equal(t, domain.OptionPrefix, s.ExpectedInput.HandlePrefix)

	next, actions := step(t, e, g, s, domain.UserReply("financeiro", t0.Add(time.Second)))
	assert.Equal(t, domain.StatusHandedOff, next.Status)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionHandoff, actions[0].Type)
	assert.Equal(t, domain.Target{Kind: domain.TargetUser, ID: "ana"}, actions[0].Handoff.Target)
}

func TestEngine_MediaAutoAdvances(t *testing.T) {
	g := &domain.FlowGraph{
		FlowID: "media", Version: 1, Entry: "pic",
		Nodes: map[string]domain.Node{
			"pic": {ID: "pic", Body: domain.Media{MediaType: domain.MediaImage, URL: "https://cdn.example/x.png", Caption: "Oi {nome}"}},
			"end": {ID: "end", Body: domain.End{}},
		},
		Edges: []domain.Edge{{Source: "pic", SourceHandle: domain.HandleDefault, Target: "end"}},
	}
	s, actions := step(t, runtime.NewEngine(), g, newSession(g), domain.UserReply("oi", t0))

	assert.Equal(t, domain.StatusEnded, s.Status)
	require.Len(t, actions, 1, "End without final message sends nothing")
	c := actions[0].Content
	assert.Equal(t, domain.MediaImage, c.MediaType)
	assert.Equal(t, "https://cdn.example/x.png", c.URL)
	assert.Equal(t, "Oi {nome}", c.Caption)
	assert.Equal(t, []string{"nome"}, actions[0].Warnings)
}
