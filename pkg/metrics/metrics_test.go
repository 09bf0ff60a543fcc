package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHooksFeedCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeKind: domain.KindMessage})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeKind: domain.KindMessage})
	hooks.OnSuspend(ctx, &domain.NodeEvent{Status: domain.StatusSleeping})
	hooks.OnTerminal(ctx, &domain.NodeEvent{Status: domain.StatusEnded})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues(string(domain.KindMessage))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Suspends.WithLabelValues(string(domain.StatusSleeping))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Terminals.WithLabelValues(string(domain.StatusEnded))))
}

func TestRecorders(t *testing.T) {
	m := metrics.New(nil)
	m.Delivery(domain.ActionSend, metrics.ResultUndelivered)
	m.Sweep(3, 1, time.Second)
	m.Purge(2)
	m.Conflict()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("SEND", metrics.ResultUndelivered)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepWoken))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Purged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Step(domain.EventUserReply)
		m.Delivery(domain.ActionSend, metrics.ResultDelivered)
		m.Sweep(1, 0, time.Millisecond)
		m.Purge(1)
		m.Conflict()
		_ = m.Hooks()
	})
}

func TestCombine(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "b") }}

	h := metrics.Combine(a, b, domain.LifecycleHooks{})
	h.OnNodeEnter(context.Background(), &domain.NodeEvent{})
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Nil(t, h.OnSuspend)
}
