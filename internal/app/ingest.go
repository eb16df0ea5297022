package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"whalefeed/internal/ingest"
	"whalefeed/internal/metrics"
	"whalefeed/internal/scheduler"
)

// Ingest runs the long-lived ingestion pipeline: streaming with
// failover plus a scheduled backfill and expiry sweep. A postgres
// advisory lock keeps the pipeline single-flight across replicas.
func (a *App) Ingest(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot ingest")
	}
	defer closeStore()

	unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Ingest.AdvisoryLockKey)
	if err != nil {
		return err
	}
	if !acquired {
		return errors.New("another ingester holds the advisory lock")
	}
	defer unlock()

	m := metrics.New()
	svc := ingest.New(a.Config.Ingest, a.Config.Feed.OpportunityTTL, a.newProviders(), store, store, m, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	go func() {
		_ = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
			for _, chain := range a.Config.Ingest.Chains {
				if err := svc.BackfillChain(ctx, chain); err != nil && ctx.Err() == nil {
					a.Logger.Error().Err(err).Str("chain", chain).Msg("scheduled backfill failed")
				}
			}
			if err := store.DeleteOpportunitiesBefore(ctx, tick.UTC()); err != nil && ctx.Err() == nil {
				a.Logger.Error().Err(err).Msg("expiry sweep failed")
			}
			return nil
		})
	}()

	a.Logger.Info().Strs("chains", a.Config.Ingest.Chains).Msg("starting ingestion pipeline")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("ingestion terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion pipeline stopped")
	return nil
}

// Backfill runs a one-shot historical ingestion over [From, To).
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot backfill")
	}
	defer closeStore()

	svc := ingest.New(a.Config.Ingest, a.Config.Feed.OpportunityTTL, a.newProviders(), store, store, nil, a.Logger)
	return svc.BackfillRange(ctx, opts.Chain, opts.From.UTC(), opts.To.UTC())
}
