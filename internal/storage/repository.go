package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"whalefeed/internal/cursor"
	"whalefeed/internal/feed"
	"whalefeed/internal/signal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertSignalSQL = `INSERT INTO whale_signals (
        id,
        chain,
        asset,
        direction,
        amount_usd,
        source,
        observed_at,
        tx_hash,
        from_addr,
        to_addr,
        event_key
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (event_key) DO NOTHING;`

	latestSignalTSSQL = `SELECT MAX(observed_at) FROM whale_signals WHERE chain = $1;`

	listRecentSignalsSQL = `SELECT
        id, chain, asset, direction, amount_usd, source, observed_at, tx_hash, from_addr, to_addr
    FROM whale_signals
    ORDER BY observed_at DESC
    LIMIT $1;`

	listSignalsBetweenSQL = `SELECT
        id, chain, asset, direction, amount_usd, source, observed_at, tx_hash, from_addr, to_addr
    FROM whale_signals
    WHERE observed_at >= $1
      AND observed_at < $2
    ORDER BY observed_at;`

	upsertOpportunitySQL = `INSERT INTO opportunities (
        id,
        slug,
        slug_hash,
        title,
        chain,
        asset,
        direction,
        rank_score,
        trust_score,
        expires_at,
        total_amount_usd,
        signal_count,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (id) DO UPDATE
    SET
        slug             = EXCLUDED.slug,
        slug_hash        = EXCLUDED.slug_hash,
        title            = EXCLUDED.title,
        rank_score       = EXCLUDED.rank_score,
        trust_score      = EXCLUDED.trust_score,
        expires_at       = EXCLUDED.expires_at,
        total_amount_usd = EXCLUDED.total_amount_usd,
        signal_count     = EXCLUDED.signal_count,
        updated_at       = EXCLUDED.updated_at;`

	opportunityColumns = `id, slug, title, chain, asset, direction,
        rank_score, trust_score, expires_at, total_amount_usd, signal_count, updated_at`

	fetchTopSQL = `SELECT ` + opportunityColumns + `
    FROM opportunities
    WHERE expires_at > $1
    ORDER BY rank_score DESC, trust_score DESC, expires_at ASC, id ASC, slug_hash ASC
    LIMIT $2;`

	// Keyset continuation: rows strictly after the bookmark in the
	// six-field order. Mixed asc/desc directions rule out a row-value
	// comparison, so the predicate is expanded per field.
	fetchAfterSQL = `SELECT ` + opportunityColumns + `
    FROM opportunities
    WHERE expires_at > $1
      AND (
        rank_score < $2
        OR (rank_score = $2 AND trust_score < $3)
        OR (rank_score = $2 AND trust_score = $3 AND expires_at > $4)
        OR (rank_score = $2 AND trust_score = $3 AND expires_at = $4 AND id > $5)
        OR (rank_score = $2 AND trust_score = $3 AND expires_at = $4 AND id = $5 AND slug_hash > $6)
      )
    ORDER BY rank_score DESC, trust_score DESC, expires_at ASC, id ASC, slug_hash ASC
    LIMIT $7;`

	deleteOpportunitiesBeforeSQL = `DELETE FROM opportunities WHERE expires_at < $1;`

	countSignalsSQL = `SELECT COUNT(*) FROM whale_signals;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SignalStore defines operations for raw signal persistence.
type SignalStore interface {
	InsertSignal(ctx context.Context, s signal.Signal) (bool, error)
	LatestSignalTS(ctx context.Context, chain string) (time.Time, bool, error)
	ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error)
	ListSignalsBetween(ctx context.Context, from, to time.Time) ([]signal.Signal, error)
	CountSignals(ctx context.Context) (int64, error)
}

// OpportunityStore defines operations for the ranked item pool.
type OpportunityStore interface {
	UpsertOpportunity(ctx context.Context, item feed.Item) error
	DeleteOpportunitiesBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to signals and opportunities. It also serves
// as the Paginator's item source.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// InsertSignal persists a signal if its event key is unseen. Returns
// false when the key already exists.
func (s *Store) InsertSignal(ctx context.Context, sig signal.Signal) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, insertSignalSQL,
		sig.ID,
		sig.Chain,
		sig.Asset,
		string(sig.Direction),
		sig.AmountUSD.String(),
		sig.Source,
		sig.Timestamp.UTC(),
		sig.TxHash,
		sig.FromAddr,
		sig.ToAddr,
		sig.EventKey(),
	)
	if execErr != nil {
		return false, fmt.Errorf("insert signal: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestSignalTS returns the newest observed timestamp for a chain.
func (s *Store) LatestSignalTS(ctx context.Context, chain string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var latest *time.Time
	if scanErr := pool.QueryRow(ctx, latestSignalTSSQL, chain).Scan(&latest); scanErr != nil {
		return time.Time{}, false, fmt.Errorf("latest signal ts: %w", scanErr)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// ListRecentSignals lists the most recent signals, newest first.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	return scanSignals(rows, limit)
}

// ListSignalsBetween lists signals within a time window.
func (s *Store) ListSignalsBetween(ctx context.Context, from, to time.Time) ([]signal.Signal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSignalsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list signals between: %w", queryErr)
	}
	defer rows.Close()

	return scanSignals(rows, 0)
}

// CountSignals counts stored signals.
func (s *Store) CountSignals(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSignalsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count signals: %w", scanErr)
	}
	return count, nil
}

// UpsertOpportunity persists or refreshes a ranked feed item.
func (s *Store) UpsertOpportunity(ctx context.Context, item feed.Item) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertOpportunitySQL,
		item.ID,
		item.Slug,
		int64(cursor.SlugHash(item.Slug)),
		item.Title,
		item.Chain,
		item.Asset,
		item.Direction,
		item.RankScore,
		item.TrustScore,
		expiryOrSentinel(item.ExpiresAt),
		item.TotalAmountUSD.String(),
		item.SignalCount,
		item.UpdatedAt.UTC(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert opportunity: %w", execErr)
	}
	return nil
}

// DeleteOpportunitiesBefore garbage-collects long-expired items.
func (s *Store) DeleteOpportunitiesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteOpportunitiesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete opportunities before: %w", execErr)
	}
	return nil
}

// FetchAfter implements feed.ItemSource: the next batch of items in the
// six-field order, strictly after the bookmark when one is given.
func (s *Store) FetchAfter(ctx context.Context, after *cursor.SortKey, limit int, expiryCutoff time.Time) ([]feed.Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	var queryErr error
	if after == nil {
		rows, queryErr = pool.Query(ctx, fetchTopSQL, expiryCutoff, limit)
	} else {
		expiry, parseErr := after.ExpiryTime()
		if parseErr != nil {
			return nil, fmt.Errorf("%w: expires at not a timestamp", cursor.ErrMalformedTuple)
		}
		rows, queryErr = pool.Query(ctx, fetchAfterSQL,
			expiryCutoff,
			after.RankScore,
			after.TrustScore,
			expiry,
			after.ID,
			int64(after.SlugHash),
			limit,
		)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("fetch opportunities: %w", queryErr)
	}
	defer rows.Close()

	items := make([]feed.Item, 0, limit)
	for rows.Next() {
		item, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanSignals(rows pgx.Rows, sizeHint int) ([]signal.Signal, error) {
	signals := make([]signal.Signal, 0, sizeHint)
	for rows.Next() {
		var (
			sig       signal.Signal
			direction string
			amountStr string
		)
		if err := rows.Scan(
			&sig.ID,
			&sig.Chain,
			&sig.Asset,
			&direction,
			&amountStr,
			&sig.Source,
			&sig.Timestamp,
			&sig.TxHash,
			&sig.FromAddr,
			&sig.ToAddr,
		); err != nil {
			return nil, err
		}
		amount, convErr := decimal.NewFromString(amountStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse amount usd: %w", convErr)
		}
		sig.Direction = signal.Direction(direction)
		sig.AmountUSD = amount
		signals = append(signals, sig)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return signals, nil
}

func scanOpportunity(rows pgx.Rows) (feed.Item, error) {
	var (
		item      feed.Item
		amountStr string
	)
	if err := rows.Scan(
		&item.ID,
		&item.Slug,
		&item.Title,
		&item.Chain,
		&item.Asset,
		&item.Direction,
		&item.RankScore,
		&item.TrustScore,
		&item.ExpiresAt,
		&amountStr,
		&item.SignalCount,
		&item.UpdatedAt,
	); err != nil {
		return feed.Item{}, err
	}

	amount, convErr := decimal.NewFromString(amountStr)
	if convErr != nil {
		return feed.Item{}, fmt.Errorf("parse total amount usd: %w", convErr)
	}
	item.TotalAmountUSD = amount
	return item, nil
}

// expiryOrSentinel normalizes an expiry for storage. Whole-second
// truncation keeps the stored timestamp identical to its cursor
// rendering; a sub-second remainder would make the keyset tie branch
// re-admit the bookmark row on the next page.
func expiryOrSentinel(t time.Time) time.Time {
	if t.IsZero() {
		sentinel, _ := time.Parse(time.RFC3339, cursor.FarFutureExpiry)
		return sentinel
	}
	return t.UTC().Truncate(time.Second)
}

var (
	_ SignalStore      = (*Store)(nil)
	_ OpportunityStore = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
	_ feed.ItemSource  = (*Store)(nil)
)
