// Package app aggregates the dependencies behind each CLI command.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whalefeed/internal/config"
	"whalefeed/internal/ingest"
	"whalefeed/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider(name string) ingest.Provider {
	switch name {
	case "moralis":
		return ingest.NewMoralis(a.Config.Ingest.Moralis, a.Logger)
	case "rpc":
		return ingest.NewRPC(a.Config.Ingest.RPC, a.Logger)
	default:
		return ingest.NewAlchemy(a.Config.Ingest.Alchemy, a.Logger)
	}
}

// newProviders returns the ingestion providers in priority order.
func (a *App) newProviders() [2]ingest.Provider {
	return [2]ingest.Provider{
		a.newProvider(a.Config.Ingest.PrimaryProvider),
		a.newProvider(a.Config.Ingest.FallbackProvider),
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// ExportOptions hold parameters for exporting historical signals.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure a one-shot backfill job.
type BackfillOptions struct {
	Chain string
	From  time.Time
	To    time.Time
}
