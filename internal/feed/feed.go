// Package feed assembles ranked opportunity pages with snapshot-consistent
// keyset pagination.
package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"whalefeed/internal/cursor"
)

// Item is a ranked opportunity as served to the client.
type Item struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	Title          string          `json:"title"`
	Chain          string          `json:"chain"`
	Asset          string          `json:"asset"`
	Direction      string          `json:"direction"`
	RankScore      float64         `json:"rankScore"`
	TrustScore     float64         `json:"trustScore"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	TotalAmountUSD decimal.Decimal `json:"totalAmountUsd"`
	SignalCount    int             `json:"signalCount"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Page is the unit returned to a paginating client. NextCursor is empty
// once the feed is exhausted for the session's snapshot.
type Page struct {
	Items      []Item
	NextCursor string
	SnapshotTS int64
}

// SortKeyForItem builds the pagination key for an item within a session.
// A zero snapshotTS stamps the current wall clock. Items without a rank
// score fall back to trust score as the primary key.
func SortKeyForItem(item Item, snapshotTS int64) cursor.SortKey {
	if snapshotTS == 0 {
		snapshotTS = time.Now().Unix()
	}
	rank := item.RankScore
	if rank == 0 {
		rank = item.TrustScore
	}
	return cursor.SortKey{
		RankScore:  rank,
		TrustScore: item.TrustScore,
		ExpiresAt:  cursor.FormatExpiry(item.ExpiresAt),
		ID:         item.ID,
		SnapshotTS: snapshotTS,
		SlugHash:   cursor.SlugHash(item.Slug),
	}
}
