package signal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// amountTolerance is the maximum relative amount difference for the
	// pairwise grouping predicate.
	amountTolerance = 0.10
	// groupWindow is the maximum timestamp spread for the pairwise
	// grouping predicate.
	groupWindow = 10 * time.Minute
	// amountBucketSize is the USD bucket width the group key rounds into.
	amountBucketSize = 1000
)

// Group is a set of signals judged equivalent for display purposes.
// Groups are recomputed per ingestion batch; the key only recurs across
// batches when the underlying asset/direction/amount bucket recurs.
type Group struct {
	Key             string
	Chain           string
	Asset           string
	Direction       Direction
	Signals         []Signal
	TotalAmountUSD  decimal.Decimal
	Count           int
	LatestTimestamp time.Time
}

// ShouldGroup is the pairwise equivalence predicate: same asset, same
// direction, relative amount difference within 10%, timestamps within
// ten minutes.
func ShouldGroup(a, b Signal) bool {
	if !strings.EqualFold(a.Asset, b.Asset) || a.Direction != b.Direction {
		return false
	}
	diff := a.Timestamp.Sub(b.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff > groupWindow {
		return false
	}
	return relativeAmountDiff(a.AmountUSD, b.AmountUSD) <= amountTolerance
}

// GroupKey buckets a signal for O(n) grouping. Bucketing is applied
// instead of transitive pairwise clustering: two signals can share a
// bucket even when their direct amount delta exceeds the pairwise
// tolerance. Changing this to true clustering alters which items merge.
func GroupKey(s Signal) string {
	return fmt.Sprintf("%s|%s|%d", strings.ToUpper(s.Asset), s.Direction, amountBucket(s.AmountUSD))
}

// GroupSignals partitions a batch by bucket key. Output order is
// deterministic: groups sorted by key, signals within a group by
// timestamp then tx hash.
func GroupSignals(signals []Signal) []Group {
	byKey := make(map[string]*Group)
	for _, s := range signals {
		key := GroupKey(s)
		g, ok := byKey[key]
		if !ok {
			g = &Group{
				Key:       key,
				Chain:     s.Chain,
				Asset:     strings.ToUpper(s.Asset),
				Direction: s.Direction,
			}
			byKey[key] = g
		}
		g.Signals = append(g.Signals, s)
		g.TotalAmountUSD = g.TotalAmountUSD.Add(s.AmountUSD)
		g.Count++
		if s.Timestamp.After(g.LatestTimestamp) {
			g.LatestTimestamp = s.Timestamp
		}
	}

	groups := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		sort.Slice(g.Signals, func(i, j int) bool {
			if !g.Signals[i].Timestamp.Equal(g.Signals[j].Timestamp) {
				return g.Signals[i].Timestamp.Before(g.Signals[j].Timestamp)
			}
			return g.Signals[i].TxHash < g.Signals[j].TxHash
		})
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// amountBucket floors the amount to the nearest lower multiple of 1000,
// so 10400 and 10800 both key to 10000.
func amountBucket(amount decimal.Decimal) int64 {
	bucket := amount.Div(decimal.NewFromInt(amountBucketSize)).Floor()
	return bucket.IntPart() * amountBucketSize
}

func relativeAmountDiff(a, b decimal.Decimal) float64 {
	larger := decimal.Max(a.Abs(), b.Abs())
	if larger.IsZero() {
		return 0
	}
	return a.Sub(b).Abs().Div(larger).InexactFloat64()
}
