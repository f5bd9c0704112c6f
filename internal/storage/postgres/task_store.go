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

// TaskStore implements storage.TaskStore using PostgreSQL.
type TaskStore struct {
	pool *Pool
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(pool *Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TaskStore = (*TaskStore)(nil)

// Insert adds a new task. Returns ErrDuplicateKey if token_address exists.
func (s *TaskStore) Insert(ctx context.Context, t *domain.BackfillTask) (err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "insert", start, err) }(time.Now())

	query := `
		INSERT INTO backfill_tasks (
			token_address, symbol, name, pool, status,
			attempts, last_attempt_ms, error, enqueued_ms, completed_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		t.TokenAddress,
		t.Symbol,
		t.Name,
		t.Pool,
		string(t.Status),
		t.Attempts,
		t.LastAttemptMs,
		t.Error,
		t.EnqueuedMs,
		t.CompletedMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backfill task: %w", err)
	}
	return nil
}

// Get retrieves a task by token address. Returns ErrNotFound if not exists.
func (s *TaskStore) Get(ctx context.Context, address string) (task *domain.BackfillTask, err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "get", start, err) }(time.Now())

	query := `
		SELECT token_address, symbol, name, pool, status,
		       attempts, last_attempt_ms, error, enqueued_ms, completed_ms
		FROM backfill_tasks
		WHERE token_address = $1
	`

	row := s.pool.QueryRow(ctx, query, address)
	t, err := scanTask(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backfill task: %w", err)
	}
	return t, nil
}

// Update replaces the stored task. Returns ErrNotFound if the task does not exist.
func (s *TaskStore) Update(ctx context.Context, t *domain.BackfillTask) (err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "update", start, err) }(time.Now())

	query := `
		UPDATE backfill_tasks
		SET symbol = $2, name = $3, pool = $4, status = $5,
		    attempts = $6, last_attempt_ms = $7, error = $8,
		    enqueued_ms = $9, completed_ms = $10
		WHERE token_address = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		t.TokenAddress,
		t.Symbol,
		t.Name,
		t.Pool,
		string(t.Status),
		t.Attempts,
		t.LastAttemptMs,
		t.Error,
		t.EnqueuedMs,
		t.CompletedMs,
	)
	if err != nil {
		return fmt.Errorf("update backfill task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetPending retrieves up to limit pending tasks whose last attempt is unset
// or at/before olderThanMs, ordered by attempts ASC then enqueued ASC.
func (s *TaskStore) GetPending(ctx context.Context, olderThanMs int64, limit int) (tasks []*domain.BackfillTask, err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "get_pending", start, err) }(time.Now())

	query := `
		SELECT token_address, symbol, name, pool, status,
		       attempts, last_attempt_ms, error, enqueued_ms, completed_ms
		FROM backfill_tasks
		WHERE status = 'pending'
		  AND (last_attempt_ms = 0 OR last_attempt_ms <= $1)
		ORDER BY attempts ASC, enqueued_ms ASC, token_address ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, olderThanMs, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetByStatus retrieves all tasks in the given status, ordered by
// enqueued ASC. A non-positive limit returns every matching task.
func (s *TaskStore) GetByStatus(ctx context.Context, status domain.TaskStatus, limit int) (tasks []*domain.BackfillTask, err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "get_by_status", start, err) }(time.Now())

	query := `
		SELECT token_address, symbol, name, pool, status,
		       attempts, last_attempt_ms, error, enqueued_ms, completed_ms
		FROM backfill_tasks
		WHERE status = $1
		ORDER BY enqueued_ms ASC, token_address ASC
	`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get tasks by status: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// CountByStatus returns the number of tasks in the given status.
func (s *TaskStore) CountByStatus(ctx context.Context, status domain.TaskStatus) (count int, err error) {
	defer func(start time.Time) { observability.ObserveQuery("backfill_tasks", "count_by_status", start, err) }(time.Now())

	query := `SELECT count(*) FROM backfill_tasks WHERE status = $1`

	if err := s.pool.QueryRow(ctx, query, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tasks by status: %w", err)
	}
	return count, nil
}

// scanTask scans a single row into a BackfillTask.
func scanTask(row pgx.Row) (*domain.BackfillTask, error) {
	var t domain.BackfillTask
	var statusStr string

	err := row.Scan(
		&t.TokenAddress,
		&t.Symbol,
		&t.Name,
		&t.Pool,
		&statusStr,
		&t.Attempts,
		&t.LastAttemptMs,
		&t.Error,
		&t.EnqueuedMs,
		&t.CompletedMs,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(statusStr)
	return &t, nil
}

// scanTasks scans multiple rows into a slice of BackfillTask.
func scanTasks(rows pgx.Rows) ([]*domain.BackfillTask, error) {
	var tasks []*domain.BackfillTask

	for rows.Next() {
		var t domain.BackfillTask
		var statusStr string

		err := rows.Scan(
			&t.TokenAddress,
			&t.Symbol,
			&t.Name,
			&t.Pool,
			&statusStr,
			&t.Attempts,
			&t.LastAttemptMs,
			&t.Error,
			&t.EnqueuedMs,
			&t.CompletedMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}

		t.Status = domain.TaskStatus(statusStr)
		tasks = append(tasks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}

	return tasks, nil
}
