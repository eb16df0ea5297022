package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whalefeed/internal/config"
	"whalefeed/internal/logging"
	"whalefeed/internal/signal"
)

// Alchemy serves live transfers over a websocket subscription and
// historical windows over REST.
type Alchemy struct {
	cfg    config.ProviderConfig
	http   *http.Client
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewAlchemy builds the Alchemy provider.
func NewAlchemy(cfg config.ProviderConfig, logger zerolog.Logger) *Alchemy {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alchemy{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: logging.Component(logger, "alchemy"),
	}
}

// Name identifies the provider in logs and failover decisions.
func (a *Alchemy) Name() string { return "alchemy" }

type alchemySubscribe struct {
	Action string `json:"action"`
	Chain  string `json:"chain"`
	APIKey string `json:"apiKey"`
}

type alchemyFrame struct {
	Type     string          `json:"type"`
	Transfer transferPayload `json:"transfer"`
}

// Stream subscribes to the whale-transfer feed for chain and pushes
// decoded signals into out until the connection drops or ctx ends.
func (a *Alchemy) Stream(ctx context.Context, chain string, out chan<- signal.Signal) error {
	if a.cfg.WSURL == "" {
		return ErrStreamingUnsupported
	}

	conn, _, err := a.dialer.DialContext(ctx, a.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("alchemy dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sub := alchemySubscribe{Action: "subscribe", Chain: chain, APIKey: a.cfg.APIKey}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("alchemy subscribe: %w", err)
	}

	for {
		var frame alchemyFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("alchemy read: %w", err)
		}
		if frame.Type != "transfer" {
			continue
		}
		sig, err := frame.Transfer.toSignal(chain, a.Name())
		if err != nil {
			a.logger.Warn().Err(err).Str("tx_hash", frame.Transfer.TxHash).Msg("dropping malformed frame")
			continue
		}
		select {
		case out <- sig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type alchemyBackfillResponse struct {
	Transfers []transferPayload `json:"transfers"`
}

// Backfill fetches historical transfers for [from, to).
func (a *Alchemy) Backfill(ctx context.Context, chain string, from, to time.Time) ([]signal.Signal, error) {
	q := url.Values{}
	q.Set("chain", chain)
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/v1/transfers?%s", a.cfg.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alchemy backfill: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alchemy backfill: unexpected status %d", resp.StatusCode)
	}

	var payload alchemyBackfillResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alchemy backfill decode: %w", err)
	}

	signals := make([]signal.Signal, 0, len(payload.Transfers))
	for _, t := range payload.Transfers {
		sig, err := t.toSignal(chain, a.Name())
		if err != nil {
			a.logger.Warn().Err(err).Str("tx_hash", t.TxHash).Msg("dropping malformed transfer")
			continue
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

var _ Provider = (*Alchemy)(nil)
