package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"whalefeed/internal/config"
	"whalefeed/internal/feed"
	"whalefeed/internal/logging"
	"whalefeed/internal/metrics"
	"whalefeed/internal/signal"
	"whalefeed/internal/storage"
)

const (
	streamBuffer = 64
	// seenCacheLimit bounds the exact-duplicate cache; on overflow the
	// cache resets and the store's unique event key takes over.
	seenCacheLimit = 100_000
)

// Service runs provider-agnostic ingestion: REST backfill then WS
// streaming with primary/fallback failover, feeding deduplicated
// signals into storage and regrouped opportunities into the ranked pool.
type Service struct {
	cfg           config.IngestConfig
	ttl           time.Duration
	providers     [2]Provider
	signals       storage.SignalStore
	opportunities storage.OpportunityStore
	limiter       *rate.Limiter
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time

	mu     sync.Mutex
	seen   map[string]struct{}
	window []signal.Signal
	batch  []signal.Signal
}

// New constructs the ingestion service. The provider pair is in
// priority order: providers[0] leads, providers[1] takes over on
// failover.
func New(cfg config.IngestConfig, ttl time.Duration, providers [2]Provider, signals storage.SignalStore, opportunities storage.OpportunityStore, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		ttl:           ttl,
		providers:     providers,
		signals:       signals,
		opportunities: opportunities,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitPerSec),
		metrics:       m,
		logger:        logging.Component(logger, "ingest"),
		now:           time.Now,
		seen:          make(map[string]struct{}),
	}
}

// Run backfills then streams every configured chain until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, chain := range s.cfg.Chains {
		wg.Add(1)
		go func(chain string) {
			defer wg.Done()
			s.runChain(ctx, chain)
		}(chain)
	}
	wg.Wait()
	s.flush(ctx)
	return ctx.Err()
}

func (s *Service) runChain(ctx context.Context, chain string) {
	if err := s.BackfillChain(ctx, chain); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Str("chain", chain).Msg("initial backfill failed")
	}

	primary, fallback := s.selectProviders()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		s.logger.Info().Str("chain", chain).Str("provider", primary.Name()).Msg("stream connect")
		err := s.streamOnce(ctx, primary, chain)
		if ctx.Err() != nil {
			return
		}

		delay := retryDelay(s.cfg.Retry.BaseDelay, s.cfg.Retry.MaxDelay, attempt)
		s.logger.Error().Err(err).
			Str("chain", chain).
			Str("provider", primary.Name()).
			Dur("retry_in", delay).
			Msg("stream error")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		attempt++
		if attempt >= s.cfg.Retry.MaxAttempts {
			s.logger.Warn().Str("chain", chain).Str("provider", fallback.Name()).Msg("stream failover")
			primary, fallback = fallback, primary
			attempt = 0
		}
	}
}

func (s *Service) streamOnce(ctx context.Context, p Provider, chain string) error {
	out := make(chan signal.Signal, streamBuffer)
	errc := make(chan error, 1)
	go func() {
		errc <- p.Stream(ctx, chain, out)
		close(out)
	}()

	for sig := range out {
		if err := s.handleSignal(ctx, sig); err != nil {
			// Only context cancellation surfaces here; drain the stream.
			for range out {
			}
			<-errc
			return err
		}
	}
	return <-errc
}

// BackfillChain fetches the window the stream may have missed: from the
// newest stored signal (bounded by the backfill window) up to now minus
// the stream lag. Providers are tried in priority order; first success
// wins.
func (s *Service) BackfillChain(ctx context.Context, chain string) error {
	now := s.now().UTC()
	horizon := now.Add(-s.cfg.StreamLag)
	start := now.Add(-s.cfg.BackfillWindow)
	if latest, ok, err := s.signals.LatestSignalTS(ctx, chain); err != nil {
		return fmt.Errorf("latest signal ts: %w", err)
	} else if ok && latest.After(start) {
		start = latest
	}
	if !start.Before(horizon) {
		return nil
	}
	return s.BackfillRange(ctx, chain, start, horizon)
}

// BackfillRange ingests historical signals for [from, to) with provider
// failover.
func (s *Service) BackfillRange(ctx context.Context, chain string, from, to time.Time) error {
	primary, fallback := s.selectProviders()

	var lastErr error
	for _, p := range []Provider{primary, fallback} {
		events, err := p.Backfill(ctx, chain, from, to)
		if err != nil {
			lastErr = err
			s.logger.Error().Err(err).Str("chain", chain).Str("provider", p.Name()).Msg("backfill error")
			continue
		}
		for _, sig := range events {
			if err := s.handleSignal(ctx, sig); err != nil {
				return err
			}
		}
		s.flush(ctx)
		if len(events) > 0 {
			s.logger.Info().Str("chain", chain).Str("provider", p.Name()).Int("count", len(events)).Msg("backfill done")
		}
		return nil
	}
	return fmt.Errorf("backfill %s: all providers failed: %w", chain, lastErr)
}

func (s *Service) selectProviders() (Provider, Provider) {
	return s.providers[0], s.providers[1]
}

// handleSignal applies the seen-cache and pairwise duplicate rules, then
// persists the signal and queues it for regrouping. Returns an error
// only when ctx is cancelled; store failures are logged and skipped.
func (s *Service) handleSignal(ctx context.Context, sig signal.Signal) error {
	if s.metrics != nil {
		s.metrics.SignalsIn.WithLabelValues(sig.Chain).Inc()
	}

	s.mu.Lock()
	key := sig.EventKey()
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		return nil
	}
	if signal.IsDuplicate(sig, s.window) {
		s.mu.Unlock()
		return nil
	}
	if len(s.seen) >= seenCacheLimit {
		s.seen = make(map[string]struct{})
	}
	s.seen[key] = struct{}{}
	s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	inserted, err := s.signals.InsertSignal(ctx, sig)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("failed to insert signal")
		return nil
	}
	if !inserted {
		return nil
	}

	if s.metrics != nil {
		s.metrics.SignalsOut.WithLabelValues(sig.Chain).Inc()
		lag := s.now().Sub(sig.Timestamp)
		if lag < 0 {
			lag = 0
		}
		s.metrics.IngestLagMS.WithLabelValues(sig.Chain).Observe(float64(lag.Milliseconds()))
	}

	s.mu.Lock()
	s.window = append(s.window, sig)
	s.batch = append(s.batch, sig)
	flush := len(s.batch) >= s.cfg.FlushSize
	s.mu.Unlock()

	if flush {
		s.flush(ctx)
	}
	return nil
}

// flush regroups the pending batch and upserts one opportunity per
// group. The batch and the pairwise dedup window reset together, so
// the window always spans at most one ingestion batch.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.window = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	now := s.now().UTC()
	for _, g := range signal.GroupSignals(batch) {
		item := s.opportunityFromGroup(g, now)
		if err := s.opportunities.UpsertOpportunity(ctx, item); err != nil {
			s.logger.Error().Err(err).Str("opportunity_id", item.ID).Msg("failed to upsert opportunity")
		}
	}
	s.logger.Debug().Int("signals", len(batch)).Msg("batch regrouped")
}

func (s *Service) opportunityFromGroup(g signal.Group, now time.Time) feed.Item {
	slug := groupSlug(g)
	return feed.Item{
		ID:             slug,
		Slug:           slug,
		Title:          groupTitle(g),
		Chain:          g.Chain,
		Asset:          g.Asset,
		Direction:      string(g.Direction),
		RankScore:      signal.GroupImpactScore(g),
		TrustScore:     trustScore(g.Count),
		ExpiresAt:      g.LatestTimestamp.Add(s.ttl).Truncate(time.Second),
		TotalAmountUSD: g.TotalAmountUSD,
		SignalCount:    g.Count,
		UpdatedAt:      now,
	}
}

// trustScore grows with corroborating signal count and saturates at 100.
func trustScore(count int) float64 {
	score := 50 + 10*float64(count-1)
	if score > 100 {
		score = 100
	}
	return score
}

func groupSlug(g signal.Group) string {
	key := strings.ToLower(strings.ReplaceAll(g.Key, "|", "-"))
	return fmt.Sprintf("%s-%s", strings.ToLower(g.Chain), key)
}

func groupTitle(g signal.Group) string {
	return fmt.Sprintf("%s %s · $%s across %d signals",
		g.Asset, g.Direction, g.TotalAmountUSD.Round(0).String(), g.Count)
}
