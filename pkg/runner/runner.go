package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

// Result describes the outcome of delivering one event.
type Result struct {
	// Session is the persisted session, or the unchanged one when the event was a no-op.
	Session *domain.Session `json:"session"`
	// Actions were requested by the step and dispatched after the save.
	Actions []domain.Action `json:"actions,omitempty"`
	// Diff is nil when the event changed nothing.
	Diff *domain.SessionDiff `json:"diff,omitempty"`
	// Undelivered counts actions that exhausted their retries.
	Undelivered int `json:"undelivered,omitempty"`
}

// Runner is the engine's caller: it resolves flows, serializes access to
// sessions, persists every step and only then performs the requested actions.
type Runner struct {
	flows      ports.FlowRepository
	sessions   *session.Manager
	engine     ports.Stepper
	dispatcher ports.ActionDispatcher
	operators  ports.OperatorQueue

	clock        func() time.Time
	maxInputSize int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	listeners    []DiffListener
}

// DiffListener observes every persisted change to a session.
type DiffListener func(diff *domain.SessionDiff)

// New creates a Runner. The dispatcher performs actions after each save.
func New(flows ports.FlowRepository, sessions *session.Manager, engine ports.Stepper, dispatcher ports.ActionDispatcher, opts ...Option) *Runner {
	r := &Runner{
		flows:        flows,
		sessions:     sessions,
		engine:       engine,
		dispatcher:   dispatcher,
		clock:        time.Now,
		maxInputSize: DefaultMaxInputSize,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sessions exposes the session manager.
func (r *Runner) Sessions() *session.Manager { return r.sessions }

// Flows exposes the flow repository.
func (r *Runner) Flows() ports.FlowRepository { return r.flows }

// HandleInbound applies a user's message to their session on a flow.
// A missing or terminal session is replaced by a fresh one pinned to the
// latest published version, so a user re-enters the flow after an end or handoff.
func (r *Runner) HandleInbound(ctx context.Context, flowID, userID, text string) (*Result, error) {
	clean, err := SanitizeInput(text, r.maxInputSize)
	if err != nil {
		return nil, err
	}
	ev := domain.UserReply(clean, r.clock())
	key := domain.SessionKey(flowID, userID)

	return r.apply(ctx, key, ev, func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		if current != nil && !current.Status.IsTerminal() {
			return current, nil
		}
		g, err := r.flows.Latest(ctx, flowID)
		if err != nil {
			return nil, err
		}
		fresh := domain.NewSession(flowID, g.Version, userID, ev.At)
		if current != nil {
			r.logger.Info("replacing terminal session", "session_key", key, "status", current.Status)
		}
		return fresh, nil
	})
}

// Deliver applies an event to an existing session.
func (r *Runner) Deliver(ctx context.Context, key string, ev domain.Event) (*Result, error) {
	if ev.At.IsZero() {
		ev.At = r.clock()
	}
	return r.apply(ctx, key, ev, func(_ context.Context, current *domain.Session) (*domain.Session, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, key)
		}
		return current, nil
	})
}

// Cancel ends a session from outside the flow.
func (r *Runner) Cancel(ctx context.Context, key, reason string) (*Result, error) {
	return r.Deliver(ctx, key, domain.Cancel(reason, r.clock()))
}

// Resume wakes a sleeping session ahead of its timer.
func (r *Runner) Resume(ctx context.Context, key string) (*Result, error) {
	return r.Deliver(ctx, key, domain.ExternalResume(r.clock()))
}

// Tick delivers a scheduler tick stamped with now.
func (r *Runner) Tick(ctx context.Context, key string, now time.Time) (*Result, error) {
	return r.Deliver(ctx, key, domain.SchedulerTick(now))
}

// resolveFunc picks the session an event applies to.
type resolveFunc func(ctx context.Context, current *domain.Session) (*domain.Session, error)

func (r *Runner) apply(ctx context.Context, key string, ev domain.Event, resolve resolveFunc) (*Result, error) {
	logger := r.logger.With("session_key", key, "event", ev.Kind)
	res := &Result{}
	var before *domain.Session

	attempt := 0
	saved, err := r.sessions.Update(ctx, key, func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		if attempt++; attempt > 1 {
			r.metrics.Conflict()
		}
		base, err := resolve(ctx, current)
		if err != nil {
			return nil, err
		}
		before = base

		next, actions, err := r.step(ctx, base, ev)
		if err != nil {
			return nil, err
		}
		res.Session, res.Actions = next, actions
		res.Diff = domain.Diff(base, next)

		// A stored session that did not change needs no write.
		if current != nil && current == base && res.Diff == nil && len(actions) == 0 {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if saved == nil {
		logger.Debug("event had no effect", "status", res.Session.Status)
		return res, nil
	}
	r.metrics.Step(ev.Kind)
	logger.Debug("session saved", "status", saved.Status, "node_id", saved.CurrentNodeID, "version", saved.Version)
	if res.Diff != nil {
		for _, l := range r.listeners {
			l(res.Diff)
		}
	}

	for _, action := range res.Actions {
		if err := r.dispatcher.Dispatch(ctx, key, action); err != nil {
			res.Undelivered++
			logger.Error("failed to perform action", "node_id", action.NodeID, "type", action.Type, "err", err)
		}
	}

	if saved.Status == domain.StatusErrored && before.Status != domain.StatusErrored {
		r.report(ctx, logger, saved)
	}
	return res, nil
}

// step pins the session's flow version and runs the engine. A session whose
// flow version has disappeared is moved to errored.
func (r *Runner) step(ctx context.Context, s *domain.Session, ev domain.Event) (*domain.Session, []domain.Action, error) {
	g, err := r.flows.Get(ctx, s.FlowID, s.FlowVersion)
	if errors.Is(err, domain.ErrFlowNotFound) && !s.Status.IsTerminal() {
		failed := s.Clone()
		failed.Status = domain.StatusErrored
		failed.WakeAt = nil
		failed.ExpectedInput = nil
		failed.Reason = fmt.Sprintf("flow %s v%d is no longer available", s.FlowID, s.FlowVersion)
		failed.LastActivityAt = ev.At
		return failed, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load flow for session %s: %w", s.Key, err)
	}
	return r.engine.Step(ctx, g, s, ev)
}

func (r *Runner) report(ctx context.Context, logger *slog.Logger, s *domain.Session) {
	logger.Warn("session errored", "node_id", s.CurrentNodeID, "reason", s.Reason)
	if r.operators == nil {
		return
	}
	if err := r.operators.Report(ctx, domain.IncidentFor(s)); err != nil {
		logger.Error("failed to report incident", "err", err)
	}
}
