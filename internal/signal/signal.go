// Package signal models raw on-chain event signals and the deterministic
// dedup / grouping / impact-scoring pipeline that feeds the ranked pool.
package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction classifies what a signal implies about asset movement.
type Direction string

const (
	DirectionOutflow      Direction = "outflow"
	DirectionInflow       Direction = "inflow"
	DirectionAccumulation Direction = "accumulation"
	DirectionDistribution Direction = "distribution"
	DirectionNeutral      Direction = "neutral"
)

// Signal is a single observed event from an ingestion provider.
type Signal struct {
	ID        string
	Chain     string
	Asset     string
	Direction Direction
	AmountUSD decimal.Decimal
	Source    string
	Timestamp time.Time
	TxHash    string
	FromAddr  string
	ToAddr    string
}

// EventKey is the exact-duplicate identity used by the ingestion
// seen-cache and the idempotent store insert.
func (s Signal) EventKey() string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%s", s.Chain, s.TxHash, s.FromAddr, s.ToAddr))
}
