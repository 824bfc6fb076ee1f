package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"reward-farming/internal/api"
	"reward-farming/internal/scheduler"
	"reward-farming/internal/service"
	"reward-farming/internal/storage"
)

// Serve runs the HTTP API and, when enabled, the snapshot monitor until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.New(rt.engine, api.Options{
		Metrics:       rt.recorder.Handler(),
		EventPageSize: a.Config.Server.EventPageSize,
	}, a.Logger)

	srv := &http.Server{
		Addr:         a.Config.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 2)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("starting http api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
			return
		}
		errs <- nil
	}()

	monitoring := a.Config.Monitor.Enabled
	if monitoring {
		svc := a.newMonitor(rt)
		go func() {
			a.Logger.Info().Msg("starting snapshot monitor")
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
				return
			}
			errs <- nil
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http shutdown failed")
	}

	if runErr != nil {
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
		return runErr
	}
	a.Logger.Info().Msg("farmd stopped")
	return nil
}

func (a *App) newMonitor(rt *runtime) *service.Service {
	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		AlignToStart: a.Config.Monitor.AlignToBucket,
		StartupDelay: a.Config.Monitor.StartupDelay,
		Immediate:    true,
		Clock:        a.Clock,
	}, a.Logger)

	var snapshots storage.SnapshotStore
	var alerts storage.AlertStore
	if rt.store != nil {
		snapshots = rt.store
		alerts = rt.store
	} else {
		a.Logger.Warn().Msg("no database configured; snapshots are not persisted")
	}
	return service.New(a.Config, sched, rt.engine, snapshots, alerts, a.newNotifier(), rt.recorder, a.Logger)
}
