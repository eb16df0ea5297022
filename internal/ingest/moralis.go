package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"whalefeed/internal/config"
	"whalefeed/internal/logging"
	"whalefeed/internal/signal"
)

// Moralis is a REST-only fallback provider; it cannot stream.
type Moralis struct {
	cfg    config.ProviderConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewMoralis builds the Moralis provider.
func NewMoralis(cfg config.ProviderConfig, logger zerolog.Logger) *Moralis {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Moralis{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logging.Component(logger, "moralis"),
	}
}

// Name identifies the provider in logs and failover decisions.
func (m *Moralis) Name() string { return "moralis" }

// Stream always fails; Moralis only serves REST backfill.
func (m *Moralis) Stream(ctx context.Context, chain string, out chan<- signal.Signal) error {
	return ErrStreamingUnsupported
}

type moralisBackfillResponse struct {
	Result []transferPayload `json:"result"`
}

// Backfill fetches historical transfers for [from, to).
func (m *Moralis) Backfill(ctx context.Context, chain string, from, to time.Time) ([]signal.Signal, error) {
	q := url.Values{}
	q.Set("chain", chain)
	q.Set("from_date", from.UTC().Format(time.RFC3339))
	q.Set("to_date", to.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/whale-transfers?%s", m.cfg.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if m.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", m.cfg.APIKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moralis backfill: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moralis backfill: unexpected status %d", resp.StatusCode)
	}

	var payload moralisBackfillResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("moralis backfill decode: %w", err)
	}

	signals := make([]signal.Signal, 0, len(payload.Result))
	for _, t := range payload.Result {
		sig, err := t.toSignal(chain, m.Name())
		if err != nil {
			m.logger.Warn().Err(err).Str("tx_hash", t.TxHash).Msg("dropping malformed transfer")
			continue
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

var _ Provider = (*Moralis)(nil)
