package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"whalefeed/internal/cursor"
)

// ItemSource fetches candidate items ordered by the six-field sort key.
// A nil after key means "from the top". Implementations must exclude
// items whose expiry is at or before expiryCutoff.
type ItemSource interface {
	FetchAfter(ctx context.Context, after *cursor.SortKey, limit int, expiryCutoff time.Time) ([]Item, error)
}

// Paginator produces snapshot-consistent pages over a mutating item pool.
// Every page of one scroll session is filtered and ordered as of the
// session's snapshot instant, carried inside the cursor itself; no
// server-side session state exists.
type Paginator struct {
	source ItemSource
	logger zerolog.Logger
	now    func() time.Time
}

// NewPaginator wires a paginator over an item source.
func NewPaginator(source ItemSource, logger zerolog.Logger) *Paginator {
	return &Paginator{
		source: source,
		logger: logger.With().Str("component", "paginator").Logger(),
		now:    time.Now,
	}
}

// GetPage returns the next page for the session identified by token. An
// empty token starts a new session at snapshotHint (or the current time
// when the hint is zero). Store errors propagate unmodified; retry
// policy belongs to the caller.
func (p *Paginator) GetPage(ctx context.Context, token string, pageSize int, snapshotHint int64) (Page, error) {
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	var after *cursor.SortKey
	var snapshotTS int64

	if token == "" {
		snapshotTS = snapshotHint
		if snapshotTS == 0 {
			snapshotTS = p.now().Unix()
		}
	} else {
		key, err := cursor.Decode(token)
		if err != nil {
			return Page{}, err
		}
		if _, err := key.ExpiryTime(); err != nil {
			return Page{}, fmt.Errorf("%w: expires at not a timestamp", cursor.ErrMalformedTuple)
		}
		after = &key
		snapshotTS = key.SnapshotTS
	}

	cutoff := time.Unix(snapshotTS, 0).UTC()
	items, err := p.source.FetchAfter(ctx, after, pageSize, cutoff)
	if err != nil {
		return Page{}, err
	}

	page := Page{Items: items, SnapshotTS: snapshotTS}
	if len(items) == pageSize {
		next, err := cursor.Encode(SortKeyForItem(items[len(items)-1], snapshotTS))
		if err != nil {
			return Page{}, fmt.Errorf("encode next cursor: %w", err)
		}
		page.NextCursor = next
	}

	p.logger.Debug().
		Int("items", len(items)).
		Int64("snapshot_ts", snapshotTS).
		Bool("exhausted", page.NextCursor == "").
		Msg("page assembled")

	return page, nil
}
