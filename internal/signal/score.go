package signal

import (
	"math"
)

// Weight tables for impact scoring. Immutable configuration maps, not
// branches, so they can be tuned without touching comparison logic.
// Outbound movement ranks above accumulation; primary data sources rank
// above internal ones. Unknown keys fall back to defaultWeight.
var (
	directionWeights = map[Direction]float64{
		DirectionOutflow:      1.5,
		DirectionDistribution: 1.3,
		DirectionAccumulation: 1.1,
		DirectionInflow:       1.0,
		DirectionNeutral:      0.9,
	}

	sourceWeights = map[string]float64{
		"alchemy":  1.2,
		"moralis":  1.2,
		"rpc":      1.0,
		"internal": 0.7,
	}
)

const defaultWeight = 1.0

// ImpactScore computes the sortable impact of a single signal:
// ln(max(amountUsd, 1)) * directionWeight * sourceWeight. Deterministic
// given the weight tables; used only for sort order, never persisted as
// a durable score.
func ImpactScore(s Signal) float64 {
	amount := s.AmountUSD.InexactFloat64()
	if amount < 1 {
		amount = 1
	}
	return math.Log(amount) * directionWeight(s.Direction) * sourceWeight(s.Source)
}

// GroupImpactScore scores a group as one aggregate event: the combined
// amount at the group's direction, weighted by the strongest source that
// contributed a member.
func GroupImpactScore(g Group) float64 {
	amount := g.TotalAmountUSD.InexactFloat64()
	if amount < 1 {
		amount = 1
	}
	best := 0.0
	for _, s := range g.Signals {
		if w := sourceWeight(s.Source); w > best {
			best = w
		}
	}
	if best == 0 {
		best = defaultWeight
	}
	return math.Log(amount) * directionWeight(g.Direction) * best
}

func directionWeight(d Direction) float64 {
	if w, ok := directionWeights[d]; ok {
		return w
	}
	return defaultWeight
}

func sourceWeight(source string) float64 {
	if w, ok := sourceWeights[source]; ok {
		return w
	}
	return defaultWeight
}
