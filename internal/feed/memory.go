package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"whalefeed/internal/cursor"
)

// MemorySource is an in-memory ItemSource for tests and mock runs. It
// applies the same ordering and expiry-cutoff semantics as the Postgres
// store.
type MemorySource struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemorySource builds an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{items: make(map[string]Item)}
}

// Put inserts or replaces an item by id.
func (m *MemorySource) Put(items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[item.ID] = item
	}
}

// Delete removes an item, mimicking a hard delete from storage.
func (m *MemorySource) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// Len returns the number of stored items.
func (m *MemorySource) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// FetchAfter implements ItemSource.
func (m *MemorySource) FetchAfter(ctx context.Context, after *cursor.SortKey, limit int, expiryCutoff time.Time) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshotTS := expiryCutoff.Unix()
	candidates := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		expiry := item.ExpiresAt
		if expiry.IsZero() || expiry.After(expiryCutoff) {
			candidates = append(candidates, item)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return cursor.Compare(SortKeyForItem(candidates[i], snapshotTS), SortKeyForItem(candidates[j], snapshotTS)) < 0
	})

	result := make([]Item, 0, limit)
	for _, item := range candidates {
		if after != nil && cursor.Compare(SortKeyForItem(item, after.SnapshotTS), *after) <= 0 {
			continue
		}
		result = append(result, item)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}
