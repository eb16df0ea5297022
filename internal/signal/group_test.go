package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestShouldGroup(t *testing.T) {
	a := baseSignal()

	b := baseSignal()
	b.TxHash = "0xdef"
	b.AmountUSD = decimal.NewFromInt(10500) // 5% above
	b.Timestamp = a.Timestamp.Add(5 * time.Minute)
	if !ShouldGroup(a, b) {
		t.Fatal("same asset/direction within tolerances must group")
	}

	farAmount := b
	farAmount.AmountUSD = decimal.NewFromInt(12000) // ~17% relative diff
	if ShouldGroup(a, farAmount) {
		t.Fatal("amount difference above 10% must not group")
	}

	late := b
	late.Timestamp = a.Timestamp.Add(11 * time.Minute)
	if ShouldGroup(a, late) {
		t.Fatal("timestamps beyond ten minutes must not group")
	}

	otherAsset := b
	otherAsset.Asset = "BTC"
	if ShouldGroup(a, otherAsset) {
		t.Fatal("different assets must not group")
	}

	otherDirection := b
	otherDirection.Direction = DirectionInflow
	if ShouldGroup(a, otherDirection) {
		t.Fatal("different directions must not group")
	}
}

func TestGroupKeyBucketing(t *testing.T) {
	a := baseSignal()
	a.AmountUSD = decimal.NewFromInt(10400)
	b := baseSignal()
	b.AmountUSD = decimal.NewFromInt(10800)

	if GroupKey(a) != GroupKey(b) {
		t.Fatalf("10400 and 10800 must share the 10000 bucket: %q vs %q", GroupKey(a), GroupKey(b))
	}
	if GroupKey(a) != "ETH|outflow|10000" {
		t.Fatalf("unexpected key %q", GroupKey(a))
	}

	c := baseSignal()
	c.AmountUSD = decimal.NewFromInt(11000)
	if GroupKey(a) == GroupKey(c) {
		t.Fatal("11000 belongs to the next bucket")
	}
}

func TestGroupKeyBucketsBeyondPairwiseTolerance(t *testing.T) {
	// Bucketing is deliberately not transitive clustering: 10010 and
	// 11010 pass the pairwise predicate (~9.1% apart) yet land in
	// different buckets.
	inBucket := baseSignal()
	inBucket.AmountUSD = decimal.NewFromInt(10010)
	nextBucket := baseSignal()
	nextBucket.AmountUSD = decimal.NewFromInt(11010)

	if !ShouldGroup(inBucket, nextBucket) {
		t.Fatal("pairwise predicate accepts the pair")
	}
	if GroupKey(inBucket) == GroupKey(nextBucket) {
		t.Fatal("bucket key splits the pair regardless")
	}
}

func TestGroupSignalsAggregates(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	a := baseSignal()
	a.TxHash = "0xa"
	a.AmountUSD = decimal.NewFromInt(10400)
	a.Timestamp = now
	b := baseSignal()
	b.TxHash = "0xb"
	b.AmountUSD = decimal.NewFromInt(10800)
	b.Timestamp = now.Add(3 * time.Minute)
	c := baseSignal()
	c.TxHash = "0xc"
	c.Asset = "BTC"
	c.Timestamp = now.Add(time.Minute)

	groups := GroupSignals([]Signal{b, c, a})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	// Deterministic order: BTC key sorts before ETH key.
	if groups[0].Asset != "BTC" || groups[1].Asset != "ETH" {
		t.Fatalf("groups must sort by key: %q, %q", groups[0].Key, groups[1].Key)
	}

	eth := groups[1]
	if eth.Count != 2 {
		t.Fatalf("expected 2 ETH signals, got %d", eth.Count)
	}
	if !eth.TotalAmountUSD.Equal(decimal.NewFromInt(21200)) {
		t.Fatalf("total amount mismatch: %s", eth.TotalAmountUSD)
	}
	if !eth.LatestTimestamp.Equal(b.Timestamp) {
		t.Fatalf("latest timestamp mismatch: %v", eth.LatestTimestamp)
	}
	if eth.Signals[0].TxHash != "0xa" || eth.Signals[1].TxHash != "0xb" {
		t.Fatal("signals within a group must sort by timestamp")
	}
}

func TestGroupSignalsDeterministic(t *testing.T) {
	signals := []Signal{baseSignal(), baseSignal(), baseSignal()}
	signals[1].TxHash = "0x1"
	signals[2].Asset = "SOL"

	first := GroupSignals(signals)
	second := GroupSignals([]Signal{signals[2], signals[0], signals[1]})
	if len(first) != len(second) {
		t.Fatal("group count must not depend on input order")
	}
	for i := range first {
		if first[i].Key != second[i].Key || first[i].Count != second[i].Count {
			t.Fatalf("grouping must be order independent: %+v vs %+v", first[i], second[i])
		}
	}
}
