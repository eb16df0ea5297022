package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func baseSignal() Signal {
	return Signal{
		ID:        "sig-1",
		Chain:     "ethereum",
		Asset:     "ETH",
		Direction: DirectionOutflow,
		AmountUSD: decimal.NewFromInt(10000),
		Source:    "alchemy",
		Timestamp: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		TxHash:    "0xabc",
		FromAddr:  "0xFrom",
		ToAddr:    "0xTo",
	}
}

func TestIsDuplicateSameTxHash(t *testing.T) {
	seen := baseSignal()
	candidate := baseSignal()
	candidate.AmountUSD = decimal.NewFromInt(99999)
	candidate.FromAddr = "0xOther"
	candidate.ToAddr = "0xElse"

	if !IsDuplicate(candidate, []Signal{seen}) {
		t.Fatal("identical tx hash must flag duplicate regardless of amount")
	}

	upper := candidate
	upper.TxHash = "0xABC"
	if !IsDuplicate(upper, []Signal{seen}) {
		t.Fatal("tx hash comparison must be case insensitive")
	}
}

func TestIsDuplicateCounterpartyWindow(t *testing.T) {
	seen := baseSignal()

	within := baseSignal()
	within.TxHash = "0xdef"
	within.Timestamp = seen.Timestamp.Add(110 * time.Second)
	if !IsDuplicate(within, []Signal{seen}) {
		t.Fatal("same pair 110s apart must be duplicate")
	}

	outside := baseSignal()
	outside.TxHash = "0xdef"
	outside.Timestamp = seen.Timestamp.Add(130 * time.Second)
	if IsDuplicate(outside, []Signal{seen}) {
		t.Fatal("same pair 130s apart exceeds the window")
	}

	boundary := baseSignal()
	boundary.TxHash = "0xdef"
	boundary.Timestamp = seen.Timestamp.Add(120 * time.Second)
	if !IsDuplicate(boundary, []Signal{seen}) {
		t.Fatal("window is inclusive at exactly 120s")
	}
}

func TestIsDuplicateNeitherRule(t *testing.T) {
	seen := baseSignal()

	candidate := baseSignal()
	candidate.TxHash = "0xdef"
	candidate.ToAddr = "0xElse"
	// Same amount, same asset: similarity alone never makes a duplicate.
	if IsDuplicate(candidate, []Signal{seen}) {
		t.Fatal("different tx hash and different pair must not be duplicate")
	}

	if IsDuplicate(baseSignal(), nil) {
		t.Fatal("empty window has no duplicates")
	}
}

func TestIsDuplicateEmptyIdentity(t *testing.T) {
	seen := baseSignal()
	seen.TxHash = ""
	seen.FromAddr = ""
	seen.ToAddr = ""

	candidate := seen
	if IsDuplicate(candidate, []Signal{seen}) {
		t.Fatal("signals without tx hash or pair must never match")
	}
}

func TestEventKey(t *testing.T) {
	a := baseSignal()
	b := baseSignal()
	b.FromAddr = "0xFROM"
	if a.EventKey() != b.EventKey() {
		t.Fatal("event key must be case normalised")
	}
	b.TxHash = "0xdef"
	if a.EventKey() == b.EventKey() {
		t.Fatal("distinct tx hashes must produce distinct keys")
	}
}
