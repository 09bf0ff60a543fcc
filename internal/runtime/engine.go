package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/interpolate"
)

// DefaultMaxSteps bounds the nodes entered by a single Step.
const DefaultMaxSteps = 100

// Interpolator renders placeholders in outgoing text and reports unresolved names.
type Interpolator func(text string, vars map[string]string) (string, []string)

// Engine is the flow stepper. It holds no per-session state and performs no I/O:
// Step is a pure function of (graph, session, event) apart from logging and hooks.
type Engine struct {
	maxSteps     int
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	interpolator Interpolator
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxSteps overrides the per-step traversal cap.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithInterpolator replaces the default {name} placeholder renderer.
func WithInterpolator(interp Interpolator) Option {
	return func(e *Engine) {
		if interp != nil {
			e.interpolator = interp
		}
	}
}

// NewEngine creates a new engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxSteps:     DefaultMaxSteps,
		logger:       logging.NewNop(),
		interpolator: interpolate.Render,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step applies one event to a session and returns the updated copy plus the
// actions the caller must perform after persisting it. The input session is
// never mutated.
//
// Events that do not apply to the session's status (a tick on a waiting
// session, anything on a terminal one) are no-ops: the returned session equals
// the input and no actions are produced. Integrity failures are not returned as
// errors; they move the session to errored. The error return is reserved for
// caller mistakes such as a graph of the wrong version.
func (e *Engine) Step(ctx context.Context, g *domain.FlowGraph, s *domain.Session, ev domain.Event) (*domain.Session, []domain.Action, error) {
	if g == nil || s == nil {
		return nil, nil, fmt.Errorf("%w: nil graph or session", ErrInvalidEvent)
	}
	if g.FlowID != s.FlowID || g.Version != s.FlowVersion {
		return nil, nil, fmt.Errorf("%w: session %s wants %s v%d, got %s v%d",
			ErrGraphMismatch, s.Key, s.FlowID, s.FlowVersion, g.FlowID, g.Version)
	}
	if ev.At.IsZero() {
		return nil, nil, fmt.Errorf("%w: event %q has no time", ErrInvalidEvent, ev.Kind)
	}

	st := &stepper{
		engine:  e,
		ctx:     ctx,
		graph:   g,
		session: s.Clone(),
		now:     ev.At,
		logger:  e.logger.With("session_key", s.Key, "flow_id", s.FlowID, "event", ev.Kind),
	}

	if s.Status.IsTerminal() {
		st.logger.Debug("event ignored by terminal session", "status", s.Status)
		return st.session, nil, nil
	}

	switch ev.Kind {
	case domain.EventCancel:
		st.cancel(ev.Reason)
	case domain.EventUserReply:
		st.onReply(ev.Text)
	case domain.EventSchedulerTick:
		st.onTick()
	case domain.EventExternalResume:
		st.onResume()
	default:
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	return st.session, st.actions, nil
}

func (e *Engine) emit(ctx context.Context, fn func(context.Context, *domain.NodeEvent), ev *domain.NodeEvent) {
	if fn != nil {
		fn(ctx, ev)
	}
}
