package tests

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SampleFlow returns a small valid flow used by repository contract tests.
func SampleFlow(flowID string, version int) *domain.FlowGraph {
	return &domain.FlowGraph{
		FlowID:  flowID,
		Version: version,
		Entry:   "hello",
		Nodes: map[string]domain.Node{
			"hello": {ID: "hello", Body: domain.Message{Text: "Olá!"}},
			"bye":   {ID: "bye", Body: domain.End{FinalMessage: "Tchau!"}},
		},
		Edges: []domain.Edge{{Source: "hello", SourceHandle: domain.HandleDefault, Target: "bye"}},
	}
}

// FlowRepositoryContractTest is a reusable test suite for writable ports.FlowRepository adapters.
func FlowRepositoryContractTest(t *testing.T, repo ports.FlowRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("Publish Assigns Versions", func(t *testing.T) {
		g1, err := repo.Publish(ctx, SampleFlow("welcome", 0))
		require.NoError(t, err)
		assert.Equal(t, 1, g1.Version)

		g2, err := repo.Publish(ctx, SampleFlow("welcome", 0))
		require.NoError(t, err)
		assert.Equal(t, 2, g2.Version)
	})

	t.Run("Publish Rejects Duplicate Version", func(t *testing.T) {
		_, err := repo.Publish(ctx, SampleFlow("welcome", 2))
		assert.ErrorIs(t, err, domain.ErrFlowVersionExists)
	})

	t.Run("Publish Rejects Invalid Graph", func(t *testing.T) {
		bad := SampleFlow("broken", 0)
		bad.Edges = nil
		_, err := repo.Publish(ctx, bad)
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("Get And Latest", func(t *testing.T) {
		g, err := repo.Get(ctx, "welcome", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, g.Version)

		latest, err := repo.Latest(ctx, "welcome")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)

		_, err = repo.Get(ctx, "welcome", 9)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
		_, err = repo.Latest(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("List", func(t *testing.T) {
		flows, err := repo.List(ctx)
		require.NoError(t, err)
		var found bool
		for _, f := range flows {
			if f.FlowID == "welcome" {
				found = true
				assert.Equal(t, 2, f.Latest)
				assert.Equal(t, []int{1, 2}, f.Versions)
			}
			assert.NotEqual(t, "broken", f.FlowID)
		}
		assert.True(t, found)
	})
}
