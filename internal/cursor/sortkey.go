// Package cursor implements the opaque pagination bookmark: a six-field
// sort key with a strict total order, encoded as a URL-safe token.
package cursor

import (
	"time"
)

// FarFutureExpiry is the sentinel used for items without an expiry.
const FarFutureExpiry = "9999-12-31T23:59:59Z"

// SortKey identifies a position in the feed ordering. Fields are compared
// in declaration order: rank and trust descending, the rest ascending.
type SortKey struct {
	RankScore  float64
	TrustScore float64
	ExpiresAt  string
	ID         string
	SnapshotTS int64
	SlugHash   uint32
}

// Compare returns -1 when a precedes b in feed order, 1 when it follows,
// and 0 when the keys are identical. SnapshotTS participates for totality
// even though it is constant within one scroll session.
func Compare(a, b SortKey) int {
	switch {
	case a.RankScore > b.RankScore:
		return -1
	case a.RankScore < b.RankScore:
		return 1
	}
	switch {
	case a.TrustScore > b.TrustScore:
		return -1
	case a.TrustScore < b.TrustScore:
		return 1
	}
	// ISO-8601 UTC strings order lexicographically.
	switch {
	case a.ExpiresAt < b.ExpiresAt:
		return -1
	case a.ExpiresAt > b.ExpiresAt:
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	switch {
	case a.SnapshotTS < b.SnapshotTS:
		return -1
	case a.SnapshotTS > b.SnapshotTS:
		return 1
	}
	switch {
	case a.SlugHash < b.SlugHash:
		return -1
	case a.SlugHash > b.SlugHash:
		return 1
	}
	return 0
}

// ExpiryTime parses the ExpiresAt field.
func (k SortKey) ExpiryTime() (time.Time, error) {
	return time.Parse(time.RFC3339, k.ExpiresAt)
}

// FormatExpiry renders a timestamp the way SortKey carries it. The zero
// time maps to the far-future sentinel.
func FormatExpiry(t time.Time) string {
	if t.IsZero() {
		return FarFutureExpiry
	}
	return t.UTC().Format(time.RFC3339)
}
