package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpadapter "github.com/aretw0/parley/pkg/adapters/http"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long in-flight requests may finish.
const ShutdownTimeout = 5 * time.Second

// RunServe serves the HTTP API and runs the scheduler until ctx is done.
func RunServe(ctx context.Context, app *App, streams *httpadapter.StreamManager) error {
	handler, err := httpadapter.NewHandler(ctx, app.Runner,
		httpadapter.WithStreams(streams),
		httpadapter.WithGatherer(app.Registry),
		httpadapter.WithLogger(app.Logger),
	)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              app.Config.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("HTTP server listening", "addr", srv.Addr, "flows", app.Config.Flows.Dir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		app.Logger.Info("HTTP server stopped")
		return nil
	})
	g.Go(func() error {
		return app.Scheduler.Run(ctx)
	})
	if app.Config.Flows.Watch {
		g.Go(func() error {
			return WatchFlows(ctx, app)
		})
	}
	return g.Wait()
}

// WatchFlows logs every reload of the flow directory until ctx is done.
func WatchFlows(ctx context.Context, app *App) error {
	changes, err := app.FlowRepo.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch flows: %w", err)
	}
	app.Logger.Info("watching flows", "dir", app.Config.Flows.Dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			summaries, err := app.Flows().List(ctx)
			if err != nil {
				app.Logger.Error("failed to list reloaded flows", "err", err)
				continue
			}
			app.Logger.Info("flows reloaded", "flows", len(summaries))
		}
	}
}
