// Package cli assembles the parley binary from its configuration.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/adapters/file"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/amqp"
	loamadapter "github.com/aretw0/parley/pkg/adapters/loam"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/sqlstore"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// App is a fully wired parley process.
type App struct {
	*parley.Parley

	Config    *config.Config
	FlowRepo  *loamadapter.FlowRepository
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	closers []io.Closer
}

type buildOptions struct {
	channel   ports.Channel
	runnerOps []runner.Option
}

// BuildOption adjusts Build.
type BuildOption func(*buildOptions)

// WithChannel overrides the configured outbound channel.
func WithChannel(ch ports.Channel) BuildOption {
	return func(o *buildOptions) { o.channel = ch }
}

// WithRunnerOptions passes extra options to the runner.
func WithRunnerOptions(opts ...runner.Option) BuildOption {
	return func(o *buildOptions) { o.runnerOps = append(o.runnerOps, opts...) }
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Build connects every adapter the configuration names.
func Build(ctx context.Context, cfg *config.Config, opts ...BuildOption) (_ *App, err error) {
	bo := &buildOptions{}
	for _, opt := range opts {
		opt(bo)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(app.Registry)

	app.FlowRepo, err = loamadapter.Open(ctx, cfg.Flows.Dir, loamadapter.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open flows in %s: %w", cfg.Flows.Dir, err)
	}

	var client *backend.Client
	if cfg.NeedsRedis() {
		client = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	store, err := app.openStore(ctx, client)
	if err != nil {
		return nil, err
	}
	store, err = wrapStore(store, cfg.Security)
	if err != nil {
		return nil, err
	}

	channel := bo.channel
	if channel == nil {
		channel, err = app.openChannel()
		if err != nil {
			return nil, err
		}
	}

	pOpts := []parley.Option{
		parley.WithFlows(app.FlowRepo),
		parley.WithStore(store),
		parley.WithChannel(channel),
		parley.WithMetrics(app.Metrics),
		parley.WithLogger(logger),
		parley.WithMaxSteps(cfg.Engine.MaxSteps),
		parley.WithRunnerOptions(append([]runner.Option{runner.WithMaxInputSize(cfg.Engine.MaxInputSize)}, bo.runnerOps...)...),
	}
	var locker ports.DistributedLocker
	if cfg.Redis.Lock {
		locker = redis.NewLocker(client, cfg.Redis.Prefix)
		pOpts = append(pOpts, parley.WithLocker(locker))
	}
	app.Parley, err = parley.New(ctx, "", pOpts...)
	if err != nil {
		return nil, err
	}

	sOpts := []scheduler.Option{
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithRetention(cfg.Scheduler.Retention),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(app.Metrics),
	}
	if locker != nil {
		sOpts = append(sOpts, scheduler.WithLocker(locker, cfg.Redis.LockTTL))
	}
	app.Scheduler, err = scheduler.New(app.Store, app.Runner, sOpts...)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closerFunc(func() error {
		app.Scheduler.Close()
		return nil
	}))
	return app, nil
}

func (app *App) openStore(ctx context.Context, client *backend.Client) (ports.SessionStore, error) {
	cfg := app.Config
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverFile:
		return file.New(cfg.Store.Path), nil
	case config.DriverRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.Redis.Prefix + "session:")}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
		}
		return redis.NewFromClient(client, opts...), nil
	case config.DriverSQLite, config.DriverPostgres:
		dialect := sqlstore.SQLite
		if cfg.Store.Driver == config.DriverPostgres {
			dialect = sqlstore.Postgres
		}
		store, err := sqlstore.Open(ctx, dialect, cfg.Store.DSN, sqlstore.WithTable(cfg.Store.Table))
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store)
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// wrapStore masks PII before encrypting, so masked values never reach the cipher.
func wrapStore(store ports.SessionStore, sec config.SecurityConfig) (ports.SessionStore, error) {
	var mws []middleware.Middleware
	if len(sec.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(sec.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := sec.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func (app *App) openChannel() (ports.Channel, error) {
	if app.Config.AMQP.URL == "" {
		app.Logger.Warn("no outbound channel configured; messages are only recorded in memory")
		return memory.NewRecorder(), nil
	}
	conn, pub, err := amqp.Dial(app.Config.AMQP.URL,
		amqp.WithExchange(amqp.Exchange(app.Config.AMQP.Exchange)),
		amqp.WithLogger(app.Logger),
	)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, conn)
	return pub, nil
}

// Close releases every connection in reverse order of opening.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
