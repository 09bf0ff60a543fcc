package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	loamadapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
)

// Version is the release of this build, overridden at link time with
// -ldflags "-X github.com/aretw0/parley.Version=...".
var Version = "0.1.0-dev"

// Parley wires an engine, a session manager and a dispatcher into a Runner.
type Parley struct {
	*runner.Runner

	Engine *runtime.Engine
	Store  ports.SessionStore
}

type config struct {
	flows     ports.FlowRepository
	store     ports.SessionStore
	channel   ports.Channel
	gateway   ports.HandoffGateway
	operators ports.OperatorQueue
	locker    ports.DistributedLocker
	metrics   *metrics.Metrics
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	maxSteps  int
	runnerOps []runner.Option
}

// Option configures New.
type Option func(*config)

// WithFlows replaces the Loam flow directory with another repository.
func WithFlows(repo ports.FlowRepository) Option {
	return func(c *config) { c.flows = repo }
}

// WithStore persists sessions somewhere other than memory.
func WithStore(store ports.SessionStore) Option {
	return func(c *config) { c.store = store }
}

// WithChannel sets where outbound messages go. When the channel also
// implements HandoffGateway or OperatorQueue it serves those roles too.
func WithChannel(ch ports.Channel) Option {
	return func(c *config) { c.channel = ch }
}

func WithHandoffGateway(gw ports.HandoffGateway) Option {
	return func(c *config) { c.gateway = gw }
}

func WithOperatorQueue(q ports.OperatorQueue) Option {
	return func(c *config) { c.operators = q }
}

// WithLocker serializes sessions across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *config) { c.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLifecycleHooks observes node entries and exits.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMaxSteps bounds the nodes one event may traverse.
func WithMaxSteps(n int) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithRunnerOptions passes extra options to the Runner.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(c *config) { c.runnerOps = append(c.runnerOps, opts...) }
}

// New builds a Parley serving the flows in dir, unless WithFlows is given.
// Without WithChannel, output is recorded in memory.
func New(ctx context.Context, dir string, opts ...Option) (*Parley, error) {
	c := &config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	if c.flows == nil {
		if dir == "" {
			return nil, errors.New("a flow directory is required when no repository is given")
		}
		repo, err := loamadapter.Open(ctx, dir, loamadapter.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open flows: %w", err)
		}
		c.flows = repo
	}
	if c.store == nil {
		c.store = memory.NewStore()
	}
	if c.channel == nil {
		c.channel = memory.NewRecorder()
	}
	if c.gateway == nil {
		gw, ok := c.channel.(ports.HandoffGateway)
		if !ok {
			return nil, errors.New("channel cannot take handoffs; use WithHandoffGateway")
		}
		c.gateway = gw
	}
	if c.operators == nil {
		c.operators, _ = c.channel.(ports.OperatorQueue)
	}

	engineOpts := []runtime.Option{
		runtime.WithLogger(c.logger),
		runtime.WithLifecycleHooks(metrics.Combine(c.metrics.Hooks(), c.hooks)),
	}
	if c.maxSteps > 0 {
		engineOpts = append(engineOpts, runtime.WithMaxSteps(c.maxSteps))
	}
	engine := runtime.NewEngine(engineOpts...)

	sessionOpts := []session.Option{session.WithLogger(c.logger)}
	if c.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(c.locker))
	}
	dispatcher := runner.NewDispatcher(c.channel, c.gateway,
		runner.WithDispatcherLogger(c.logger),
		runner.WithDispatcherMetrics(c.metrics),
	)

	runnerOpts := []runner.Option{
		runner.WithLogger(c.logger),
		runner.WithMetrics(c.metrics),
	}
	if c.operators != nil {
		runnerOpts = append(runnerOpts, runner.WithOperatorQueue(c.operators))
	}
	runnerOpts = append(runnerOpts, c.runnerOps...)

	return &Parley{
		Runner: runner.New(c.flows, session.NewManager(c.store, sessionOpts...), engine, dispatcher, runnerOpts...),
		Engine: engine,
		Store:  c.store,
	}, nil
}
