// Package metrics exposes Prometheus collectors for the flow runtime.
package metrics

import (
	"context"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes.
const (
	ResultDelivered   = "delivered"
	ResultRetried     = "retried"
	ResultUndelivered = "undelivered"
)

// Metrics groups the collectors recorded by the runner and the scheduler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	NodeVisits    *prometheus.CounterVec
	Suspends      *prometheus.CounterVec
	Terminals     *prometheus.CounterVec
	Steps         *prometheus.CounterVec
	Conflicts     prometheus.Counter
	Deliveries    *prometheus.CounterVec
	SweepWoken    prometheus.Counter
	SweepFailed   prometheus.Counter
	SweepDuration prometheus.Histogram
	Purged        prometheus.Counter
}

// New creates the collectors and registers them with reg (when non-nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_node_visits_total",
			Help: "Nodes entered by the engine, by node kind.",
		}, []string{"kind"}),
		Suspends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_suspends_total",
			Help: "Sessions suspended, by status.",
		}, []string{"status"}),
		Terminals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_terminal_sessions_total",
			Help: "Sessions that reached a terminal status.",
		}, []string{"status"}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_steps_total",
			Help: "Events applied to sessions, by event kind.",
		}, []string{"event"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_save_conflicts_total",
			Help: "Optimistic save conflicts that forced a retry.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_deliveries_total",
			Help: "Outbound actions by type and result.",
		}, []string{"action", "result"}),
		SweepWoken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_sweep_woken_total",
			Help: "Sleeping sessions ticked by the scheduler.",
		}),
		SweepFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_sweep_failed_total",
			Help: "Scheduler ticks that failed to apply.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_sweep_duration_seconds",
			Help:    "Duration of scheduler sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_purged_sessions_total",
			Help: "Terminal sessions removed by retention.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.NodeVisits, m.Suspends, m.Terminals, m.Steps, m.Conflicts,
			m.Deliveries, m.SweepWoken, m.SweepFailed, m.SweepDuration, m.Purged,
		)
	}
	return m
}

// Hooks returns engine lifecycle hooks that feed the node counters.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	if m == nil {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeKind)).Inc()
		},
		OnSuspend: func(_ context.Context, e *domain.NodeEvent) {
			m.Suspends.WithLabelValues(string(e.Status)).Inc()
		},
		OnTerminal: func(_ context.Context, e *domain.NodeEvent) {
			m.Terminals.WithLabelValues(string(e.Status)).Inc()
		},
	}
}

func (m *Metrics) Step(kind domain.EventKind) {
	if m != nil {
		m.Steps.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) Delivery(action domain.ActionType, result string) {
	if m != nil {
		m.Deliveries.WithLabelValues(string(action), result).Inc()
	}
}

// Sweep records one scheduler pass.
func (m *Metrics) Sweep(woken, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepWoken.Add(float64(woken))
	m.SweepFailed.Add(float64(failed))
	m.SweepDuration.Observe(took.Seconds())
}

func (m *Metrics) Purge(n int) {
	if m != nil {
		m.Purged.Add(float64(n))
	}
}

// Combine chains lifecycle hooks so several observers can share one engine.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	chain := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.NodeEvent)) func(context.Context, *domain.NodeEvent) {
		var fns []func(context.Context, *domain.NodeEvent)
		for _, h := range hooks {
			if fn := pick(h); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil
		}
		return func(ctx context.Context, e *domain.NodeEvent) {
			for _, fn := range fns {
				fn(ctx, e)
			}
		}
	}
	return domain.LifecycleHooks{
		OnNodeEnter: chain(func(h domain.LifecycleHooks) func(context.Context, *domain.NodeEvent) { return h.OnNodeEnter }),
		OnSuspend:   chain(func(h domain.LifecycleHooks) func(context.Context, *domain.NodeEvent) { return h.OnSuspend }),
		OnTerminal:  chain(func(h domain.LifecycleHooks) func(context.Context, *domain.NodeEvent) { return h.OnTerminal }),
	}
}
