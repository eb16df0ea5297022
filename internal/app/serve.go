package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"whalefeed/internal/feed"
	"whalefeed/internal/metrics"
	"whalefeed/internal/server"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP feed server until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot serve the feed")
	}
	defer closeStore()

	m := metrics.New()
	paginator := feed.NewPaginator(store, a.Logger)

	mux, err := server.NewRouter(paginator, a.Config, m, a.Logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("feed server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down feed server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
