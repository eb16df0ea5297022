// Package ingest pulls raw whale-transfer signals from data providers,
// deduplicates them, and feeds the ranked opportunity pool.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whalefeed/internal/signal"
)

// ErrStreamingUnsupported marks providers that only serve REST backfill.
var ErrStreamingUnsupported = errors.New("ingest: streaming not supported by provider")

// Provider is a source of transfer signals. Stream pushes live signals
// into out until the connection fails or ctx is cancelled, and returns
// the terminating error. Backfill fetches historical signals in [from, to).
type Provider interface {
	Name() string
	Stream(ctx context.Context, chain string, out chan<- signal.Signal) error
	Backfill(ctx context.Context, chain string, from, to time.Time) ([]signal.Signal, error)
}

// transferPayload is the normalized wire shape shared by provider
// responses before conversion into a signal.
type transferPayload struct {
	ID        string  `json:"id"`
	TxHash    string  `json:"txHash"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Asset     string  `json:"asset"`
	AmountUSD float64 `json:"amountUsd"`
	Direction string  `json:"direction"`
	Timestamp string  `json:"ts"`
}

func (p transferPayload) toSignal(chain, source string) (signal.Signal, error) {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return signal.Signal{}, err
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return signal.Signal{
		ID:        id,
		Chain:     chain,
		Asset:     strings.ToUpper(p.Asset),
		Direction: parseDirection(p.Direction),
		AmountUSD: decimal.NewFromFloat(p.AmountUSD),
		Source:    source,
		Timestamp: ts.UTC(),
		TxHash:    p.TxHash,
		FromAddr:  p.From,
		ToAddr:    p.To,
	}, nil
}

func parseDirection(raw string) signal.Direction {
	switch strings.ToLower(raw) {
	case "outflow":
		return signal.DirectionOutflow
	case "inflow":
		return signal.DirectionInflow
	case "accumulation":
		return signal.DirectionAccumulation
	case "distribution":
		return signal.DirectionDistribution
	default:
		return signal.DirectionNeutral
	}
}
