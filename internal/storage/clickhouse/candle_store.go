package clickhouse

import (
	"context"
	"fmt"

	"token-radar/internal/domain"
	"token-radar/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
//
// MergeTree engines do not enforce uniqueness at insert time, so duplicate
// detection runs as an explicit existence check before each write.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Insert adds a new candle. Returns ErrDuplicateKey if (token_address, timestamp_ms) exists.
func (s *CandleStore) Insert(ctx context.Context, c *domain.Candle) error {
	exists, err := s.exists(ctx, c.TokenAddress, c.TimestampMs)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	return s.sendBatch(ctx, []*domain.Candle{c})
}

// InsertBulk adds multiple candles. With skipDuplicates, rows already
// present (in storage or earlier in the batch) are dropped and the count
// actually written is returned; otherwise any duplicate fails the batch.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle, skipDuplicates bool) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	type key struct {
		address     string
		timestampMs int64
	}
	seen := make(map[key]struct{})

	var fresh []*domain.Candle
	for _, c := range candles {
		k := key{c.TokenAddress, c.TimestampMs}
		if _, dup := seen[k]; dup {
			if !skipDuplicates {
				return 0, storage.ErrDuplicateKey
			}
			continue
		}
		seen[k] = struct{}{}

		exists, err := s.exists(ctx, c.TokenAddress, c.TimestampMs)
		if err != nil {
			return 0, fmt.Errorf("check exists: %w", err)
		}
		if exists {
			if !skipDuplicates {
				return 0, storage.ErrDuplicateKey
			}
			continue
		}
		fresh = append(fresh, c)
	}

	if len(fresh) == 0 {
		return 0, nil
	}
	if err := s.sendBatch(ctx, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// GetByToken retrieves all candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetByToken(ctx context.Context, address string) ([]*domain.Candle, error) {
	query := `
		SELECT token_address, pool, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE token_address = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query candles by token: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetRecent retrieves the newest limit candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetRecent(ctx context.Context, address string, limit int) ([]*domain.Candle, error) {
	query := `
		SELECT token_address, pool, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE token_address = ?
		ORDER BY timestamp_ms DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, address, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent candles: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; the contract is ascending.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// LatestTimestamp returns the newest candle timestamp for a token.
func (s *CandleStore) LatestTimestamp(ctx context.Context, address string) (int64, error) {
	query := `
		SELECT max(timestamp_ms), count(*) FROM candles
		WHERE token_address = ?
	`

	var ts, count uint64
	if err := s.conn.QueryRow(ctx, query, address).Scan(&ts, &count); err != nil {
		return 0, fmt.Errorf("query latest timestamp: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(ts), nil
}

// CountByToken returns the number of persisted candles for a token.
func (s *CandleStore) CountByToken(ctx context.Context, address string) (int, error) {
	query := `SELECT count(*) FROM candles WHERE token_address = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, address).Scan(&count); err != nil {
		return 0, fmt.Errorf("count candles by token: %w", err)
	}
	return int(count), nil
}

// exists checks if a candle with the given key exists.
func (s *CandleStore) exists(ctx context.Context, address string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE token_address = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, address, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// sendBatch writes candles through a prepared batch.
func (s *CandleStore) sendBatch(ctx context.Context, candles []*domain.Candle) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			token_address, pool, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.TokenAddress, c.Pool, uint64(c.TimestampMs),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		var timestampMs uint64

		err := rows.Scan(
			&c.TokenAddress, &c.Pool, &timestampMs,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.TimestampMs = int64(timestampMs)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
