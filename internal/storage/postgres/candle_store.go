package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
	"token-radar/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const insertCandleQuery = `
	INSERT INTO candles (
		token_address, pool, timestamp_ms, open, high, low, close, volume
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Insert adds a new candle. Returns ErrDuplicateKey if (token_address, timestamp_ms) exists.
func (s *CandleStore) Insert(ctx context.Context, c *domain.Candle) (err error) {
	defer func(start time.Time) { observability.ObserveQuery("candles", "insert", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, insertCandleQuery,
		c.TokenAddress,
		c.Pool,
		c.TimestampMs,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert candle: %w", err)
	}
	return nil
}

// InsertBulk adds multiple candles inside a single transaction. With
// skipDuplicates, conflicting rows are dropped via ON CONFLICT DO NOTHING
// and the count of rows actually written is returned; otherwise any
// conflict rolls back the batch with ErrDuplicateKey.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle, skipDuplicates bool) (inserted int, err error) {
	if len(candles) == 0 {
		return 0, nil
	}
	defer func(start time.Time) { observability.ObserveQuery("candles", "insert_bulk", start, err) }(time.Now())

	query := insertCandleQuery
	if skipDuplicates {
		query += ` ON CONFLICT (token_address, timestamp_ms) DO NOTHING`
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range candles {
		tag, err := tx.Exec(ctx, query,
			c.TokenAddress,
			c.Pool,
			c.TimestampMs,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return 0, storage.ErrDuplicateKey
			}
			return 0, fmt.Errorf("insert candle batch: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// GetByToken retrieves all candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetByToken(ctx context.Context, address string) (candles []*domain.Candle, err error) {
	defer func(start time.Time) { observability.ObserveQuery("candles", "get_by_token", start, err) }(time.Now())

	query := `
		SELECT token_address, pool, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE token_address = $1
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get candles by token: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetRecent retrieves the newest limit candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetRecent(ctx context.Context, address string, limit int) (candles []*domain.Candle, err error) {
	defer func(start time.Time) { observability.ObserveQuery("candles", "get_recent", start, err) }(time.Now())

	query := `
		SELECT token_address, pool, timestamp_ms, open, high, low, close, volume
		FROM (
			SELECT token_address, pool, timestamp_ms, open, high, low, close, volume
			FROM candles
			WHERE token_address = $1
			ORDER BY timestamp_ms DESC
			LIMIT $2
		) recent
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// LatestTimestamp returns the newest candle timestamp for a token.
func (s *CandleStore) LatestTimestamp(ctx context.Context, address string) (ts int64, err error) {
	defer func(start time.Time) { observability.ObserveQuery("candles", "latest_timestamp", start, err) }(time.Now())

	query := `
		SELECT timestamp_ms FROM candles
		WHERE token_address = $1
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	err = s.pool.QueryRow(ctx, query, address).Scan(&ts)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get latest timestamp: %w", err)
	}
	return ts, nil
}

// CountByToken returns the number of persisted candles for a token.
func (s *CandleStore) CountByToken(ctx context.Context, address string) (count int, err error) {
	defer func(start time.Time) { observability.ObserveQuery("candles", "count_by_token", start, err) }(time.Now())

	query := `SELECT count(*) FROM candles WHERE token_address = $1`

	if err := s.pool.QueryRow(ctx, query, address).Scan(&count); err != nil {
		return 0, fmt.Errorf("count candles by token: %w", err)
	}
	return count, nil
}

// scanCandles scans multiple rows into a slice of Candle.
func scanCandles(rows pgx.Rows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle

		err := rows.Scan(
			&c.TokenAddress,
			&c.Pool,
			&c.TimestampMs,
			&c.Open,
			&c.High,
			&c.Low,
			&c.Close,
			&c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
