package signal

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestImpactScoreDeterministic(t *testing.T) {
	s := baseSignal()
	if ImpactScore(s) != ImpactScore(s) {
		t.Fatal("impact score must be reproducible")
	}
}

func TestImpactScoreFloorsAmountAtOne(t *testing.T) {
	tiny := baseSignal()
	tiny.AmountUSD = decimal.NewFromFloat(0.5)
	if got := ImpactScore(tiny); got != 0 {
		t.Fatalf("ln(1) base must yield zero score, got %v", got)
	}

	zero := baseSignal()
	zero.AmountUSD = decimal.Zero
	if got := ImpactScore(zero); got != 0 {
		t.Fatalf("zero amount must not produce -Inf, got %v", got)
	}
}

func TestImpactScoreMonotonicInAmount(t *testing.T) {
	small := baseSignal()
	small.AmountUSD = decimal.NewFromInt(1000)
	large := baseSignal()
	large.AmountUSD = decimal.NewFromInt(1000000)
	if ImpactScore(small) >= ImpactScore(large) {
		t.Fatal("larger amounts must score higher, all else equal")
	}
}

func TestImpactScoreDirectionOrdering(t *testing.T) {
	outflow := baseSignal()
	outflow.Direction = DirectionOutflow
	distribution := baseSignal()
	distribution.Direction = DirectionDistribution
	inflow := baseSignal()
	inflow.Direction = DirectionInflow
	neutral := baseSignal()
	neutral.Direction = DirectionNeutral

	if !(ImpactScore(outflow) > ImpactScore(distribution) &&
		ImpactScore(distribution) > ImpactScore(inflow) &&
		ImpactScore(inflow) > ImpactScore(neutral)) {
		t.Fatal("direction weights must rank outflow/distribution above inflow/neutral")
	}
}

func TestImpactScoreSourceOrdering(t *testing.T) {
	primary := baseSignal()
	primary.Source = "alchemy"
	internal := baseSignal()
	internal.Source = "internal"
	unknown := baseSignal()
	unknown.Source = "somewhere-new"

	if ImpactScore(primary) <= ImpactScore(internal) {
		t.Fatal("primary sources must outrank internal ones")
	}
	want := math.Log(10000) * directionWeights[DirectionOutflow]
	if got := ImpactScore(unknown); got != want {
		t.Fatalf("unknown source must use the default weight: got %v want %v", got, want)
	}
}

func TestGroupImpactScoreUsesStrongestSource(t *testing.T) {
	a := baseSignal()
	a.Source = "internal"
	b := baseSignal()
	b.TxHash = "0xdef"
	b.Source = "alchemy"

	groups := GroupSignals([]Signal{a, b})
	if len(groups) != 1 {
		t.Fatalf("expected a single group, got %d", len(groups))
	}
	g := groups[0]

	want := math.Log(g.TotalAmountUSD.InexactFloat64()) * directionWeights[DirectionOutflow] * sourceWeights["alchemy"]
	if got := GroupImpactScore(g); math.Abs(got-want) > 1e-9 {
		t.Fatalf("group score mismatch: got %v want %v", got, want)
	}
}
