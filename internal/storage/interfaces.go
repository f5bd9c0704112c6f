package storage

import (
	"context"

	"token-radar/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// Insert adds a new candle. Returns ErrDuplicateKey if
	// (token_address, timestamp_ms) exists.
	Insert(ctx context.Context, c *domain.Candle) error

	// InsertBulk adds multiple candles. With skipDuplicates, rows whose key
	// already exists (in storage or earlier in the batch) are silently
	// dropped; otherwise the whole batch fails with ErrDuplicateKey.
	// Returns the number of rows actually inserted.
	InsertBulk(ctx context.Context, candles []*domain.Candle, skipDuplicates bool) (int, error)

	// GetByToken retrieves all candles for a token, ordered by timestamp ASC.
	GetByToken(ctx context.Context, address string) ([]*domain.Candle, error)

	// GetRecent retrieves the newest limit candles for a token,
	// still ordered by timestamp ASC.
	GetRecent(ctx context.Context, address string, limit int) ([]*domain.Candle, error)

	// LatestTimestamp returns the newest persisted candle timestamp (ms)
	// for a token. Returns ErrNotFound if the token has no candles.
	LatestTimestamp(ctx context.Context, address string) (int64, error)

	// CountByToken returns the number of persisted candles for a token.
	CountByToken(ctx context.Context, address string) (int, error)
}

// TaskStore provides access to backfill_tasks storage.
type TaskStore interface {
	// Insert adds a new task. Returns ErrDuplicateKey if a task for
	// token_address already exists, regardless of its status.
	Insert(ctx context.Context, t *domain.BackfillTask) error

	// Get retrieves a task by token address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.BackfillTask, error)

	// Update replaces the stored task for t.TokenAddress.
	// Returns ErrNotFound if the task does not exist.
	Update(ctx context.Context, t *domain.BackfillTask) error

	// GetPending retrieves up to limit pending tasks whose last attempt is
	// unset or at/before olderThanMs, ordered by (attempts ASC, enqueued ASC).
	GetPending(ctx context.Context, olderThanMs int64, limit int) ([]*domain.BackfillTask, error)

	// GetByStatus retrieves all tasks in the given status, ordered by
	// enqueued ASC. A non-positive limit returns every matching task.
	GetByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.BackfillTask, error)

	// CountByStatus returns the number of tasks in the given status.
	CountByStatus(ctx context.Context, status domain.TaskStatus) (int, error)
}
