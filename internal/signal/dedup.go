package signal

import (
	"strings"
	"time"
)

// pairWindow bounds how far apart two signals from the same counterparty
// pair may sit and still count as the same event.
const pairWindow = 120 * time.Second

// IsDuplicate reports whether candidate duplicates any signal in window.
// First match wins, no scoring: either the transaction hash matches, or
// the (from, to) pair matches with timestamps within 120 seconds.
// Amount similarity alone never makes a duplicate. O(len(window)) per
// candidate; callers bound window to a recent ingestion batch.
func IsDuplicate(candidate Signal, window []Signal) bool {
	for _, seen := range window {
		if sameTxHash(candidate, seen) {
			return true
		}
		if samePair(candidate, seen) && withinPairWindow(candidate.Timestamp, seen.Timestamp) {
			return true
		}
	}
	return false
}

func sameTxHash(a, b Signal) bool {
	return a.TxHash != "" && strings.EqualFold(a.TxHash, b.TxHash)
}

func samePair(a, b Signal) bool {
	if a.FromAddr == "" || a.ToAddr == "" {
		return false
	}
	return strings.EqualFold(a.FromAddr, b.FromAddr) && strings.EqualFold(a.ToAddr, b.ToAddr)
}

func withinPairWindow(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= pairWindow
}
