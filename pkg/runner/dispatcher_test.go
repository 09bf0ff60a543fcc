package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastDispatcher(rec *memory.Recorder, m *metrics.Metrics) *runner.Dispatcher {
	return runner.NewDispatcher(rec, rec,
		runner.WithRetryPolicy(runner.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 1}),
		runner.WithDispatcherMetrics(m),
	)
}

func TestDispatcher_Handoff(t *testing.T) {
	rec := memory.NewRecorder()
	m := metrics.New(nil)
	d := fastDispatcher(rec, m)

	err := d.Dispatch(context.Background(), "f:u", domain.Action{
		Type:    domain.ActionHandoff,
		NodeID:  "agent",
		Handoff: &domain.Handoff{Target: domain.Target{Kind: domain.TargetUser, ID: "ana"}, Message: "oi"},
	})
	require.NoError(t, err)
	require.Len(t, rec.Handoffs(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("HANDOFF", metrics.ResultDelivered)))
}

func TestDispatcher_Exhaustion(t *testing.T) {
	rec := memory.NewRecorder()
	m := metrics.New(nil)
	d := fastDispatcher(rec, m)
	rec.FailNext(5)

	err := d.Dispatch(context.Background(), "f:u", domain.Action{
		Type: domain.ActionSend, NodeID: "hello", Content: &domain.Content{Text: "Olá!"},
	})
	assert.ErrorIs(t, err, runner.ErrUndelivered)
	assert.ErrorIs(t, err, memory.ErrInjected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("SEND", metrics.ResultRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("SEND", metrics.ResultUndelivered)))
	assert.Empty(t, rec.Sent())
}

func TestDispatcher_MalformedActions(t *testing.T) {
	d := fastDispatcher(memory.NewRecorder(), nil)
	ctx := context.Background()

	assert.Error(t, d.Dispatch(ctx, "f:u", domain.Action{Type: domain.ActionSend}))
	assert.Error(t, d.Dispatch(ctx, "f:u", domain.Action{Type: domain.ActionHandoff}))
	assert.Error(t, d.Dispatch(ctx, "f:u", domain.Action{Type: "BOGUS"}))
}
