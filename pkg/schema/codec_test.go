package schema_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingYAML = `
flow_id: greeting
version: 2
entry: hello
nodes:
  - id: hello
    type: message
    data: {text: "Olá!"}
  - id: ask
    type: question
    data: {prompt: "Qual é o seu nome?", variable_name: nome}
  - id: confirm
    type: quick_replies
    data:
      text: "Prazer, {nome}. Continuar?"
      replies: ["Sim", "Não"]
  - id: wait
    type: delay
    data: {duration: 30}
  - id: agent
    type: transfer
    data:
      target: {kind: sector, id: suporte}
      handoff_message: "Transferindo..."
  - id: bye
    type: end
    data: {final_message: "Tchau!"}
edges:
  - {source: hello, target: ask}
  - {source: ask, source_handle: default, target: confirm}
  - {source: confirm, source_handle: reply-0, target: wait}
  - {source: confirm, source_handle: reply-1, target: bye}
  - {source: wait, source_handle: default, target: agent}
`

func TestParseYAML(t *testing.T) {
	g, err := schema.ParseYAML([]byte(greetingYAML))
	require.NoError(t, err)

	assert.Equal(t, "greeting", g.FlowID)
	assert.Equal(t, 2, g.Version)
	assert.Equal(t, "hello", g.Entry)
	assert.Len(t, g.Nodes, 6)

	assert.Equal(t, domain.Question{Prompt: "Qual é o seu nome?", VariableName: "nome"}, g.Nodes["ask"].Body)
	assert.Equal(t, domain.Delay{Duration: 30 * time.Second}, g.Nodes["wait"].Body)
	assert.Equal(t, domain.Target{Kind: domain.TargetSector, ID: "suporte"}, g.Nodes["agent"].Body.(domain.Transfer).Target)
	assert.Equal(t, domain.HandleDefault, g.Edges[0].SourceHandle, "missing handle defaults")

	assert.NoError(t, domain.Validate(g))
}

func TestDurationForms(t *testing.T) {
	for _, tc := range []struct {
		raw  any
		want time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2h", 2 * time.Hour},
		{5, 5 * time.Second},
		{1.5, 1500 * time.Millisecond},
	} {
		doc := &schema.Document{
			FlowID: "d",
			Nodes:  []schema.NodeDocument{{ID: "w", Type: "delay", Data: map[string]any{"duration": tc.raw}}},
		}
		g, err := schema.Decode(doc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, g.Nodes["w"].Body.(domain.Delay).Duration, "%v", tc.raw)
	}
}

func TestDecodeErrors(t *testing.T) {
	doc := &schema.Document{
		FlowID: "bad",
		Nodes: []schema.NodeDocument{
			{ID: "a", Type: "carousel"},
			{ID: "b", Type: "message", Data: map[string]any{"txt": "typo"}},
			{ID: "b", Type: "end"},
			{Type: "end"},
		},
	}
	_, err := schema.Decode(doc)
	require.Error(t, err)

	errs := schema.DecodeErrors(err)
	assert.Len(t, errs, 4)
	assert.True(t, errors.Is(err, schema.ErrUnknownNodeType))

	var nodeErr *schema.NodeError
	require.True(t, errors.As(errs[1], &nodeErr))
	assert.Equal(t, "b", nodeErr.NodeID)
}

func TestRoundTrip(t *testing.T) {
	original, err := schema.ParseYAML([]byte(greetingYAML))
	require.NoError(t, err)

	t.Run("JSON", func(t *testing.T) {
		data, err := schema.MarshalJSON(original)
		require.NoError(t, err)
		back, err := schema.Parse("greeting.json", data)
		require.NoError(t, err)
		assert.Equal(t, original, back)
		assert.NoError(t, domain.Validate(back))
	})

	t.Run("YAML", func(t *testing.T) {
		data, err := schema.MarshalYAML(original)
		require.NoError(t, err)
		back, err := schema.Parse("greeting.yaml", data)
		require.NoError(t, err)
		assert.Equal(t, original, back)
	})
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := schema.ParseJSON([]byte("{nope"))
	assert.Error(t, err)
}
