package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/ports"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics records steps and conflicts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithOperatorQueue receives an incident whenever a session becomes errored.
func WithOperatorQueue(q ports.OperatorQueue) Option {
	return func(r *Runner) {
		r.operators = q
	}
}

// WithClock replaces time.Now as the source of event times.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithMaxInputSize bounds inbound replies in bytes.
func WithMaxInputSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxInputSize = n
		}
	}
}

// WithDiffListener registers a listener called after each save that changed the session.
func WithDiffListener(l DiffListener) Option {
	return func(r *Runner) {
		r.listeners = append(r.listeners, l)
	}
}
