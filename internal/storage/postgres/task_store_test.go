package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-radar/internal/domain"
	"token-radar/internal/storage"
)

func testTask(address string, enqueuedMs int64) *domain.BackfillTask {
	return &domain.BackfillTask{
		TokenAddress: address,
		Symbol:       "TKN",
		Name:         "Test Token",
		Status:       domain.TaskPending,
		EnqueuedMs:   enqueuedMs,
	}
}

func TestTaskStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	task := testTask("Mint1", 1700000000000)
	task.Pool = ptr("PoolAddress123")
	require.NoError(t, store.Insert(ctx, task))

	retrieved, err := store.Get(ctx, "Mint1")
	require.NoError(t, err)

	assert.Equal(t, task.TokenAddress, retrieved.TokenAddress)
	assert.Equal(t, task.Symbol, retrieved.Symbol)
	assert.Equal(t, task.Name, retrieved.Name)
	assert.Equal(t, *task.Pool, *retrieved.Pool)
	assert.Equal(t, domain.TaskPending, retrieved.Status)
	assert.Equal(t, 0, retrieved.Attempts)
	assert.Equal(t, task.EnqueuedMs, retrieved.EnqueuedMs)
}

func TestTaskStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testTask("Mint1", 1700000000000)))

	err := store.Insert(ctx, testTask("Mint1", 1700000001000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTaskStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	task := testTask("Mint1", 1700000000000)
	require.NoError(t, store.Insert(ctx, task))

	task.Status = domain.TaskDone
	task.Attempts = 1
	task.LastAttemptMs = 1700000060000
	task.CompletedMs = 1700000060000
	require.NoError(t, store.Update(ctx, task))

	retrieved, err := store.Get(ctx, "Mint1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, retrieved.Status)
	assert.Equal(t, 1, retrieved.Attempts)
	assert.Equal(t, int64(1700000060000), retrieved.LastAttemptMs)
	assert.Equal(t, int64(1700000060000), retrieved.CompletedMs)
}

func TestTaskStore_UpdateNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)

	err := store.Update(context.Background(), testTask("Mint1", 1700000000000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskStore_GetPendingOrderingAndCooldown(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	// Retried task: one attempt, enqueued first.
	retried := testTask("MintRetried", 1700000000000)
	retried.Attempts = 1
	retried.LastAttemptMs = 1700000050000
	require.NoError(t, store.Insert(ctx, retried))

	// Fresh tasks, never attempted.
	require.NoError(t, store.Insert(ctx, testTask("MintFreshB", 1700000020000)))
	require.NoError(t, store.Insert(ctx, testTask("MintFreshA", 1700000010000)))

	// Done task must never be selected.
	done := testTask("MintDone", 1700000000000)
	done.Status = domain.TaskDone
	require.NoError(t, store.Insert(ctx, done))

	// Task still cooling down.
	cooling := testTask("MintCooling", 1700000000000)
	cooling.Attempts = 1
	cooling.LastAttemptMs = 1700000200000
	require.NoError(t, store.Insert(ctx, cooling))

	tasks, err := store.GetPending(ctx, 1700000100000, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Fewest attempts first, then enqueue order.
	assert.Equal(t, "MintFreshA", tasks[0].TokenAddress)
	assert.Equal(t, "MintFreshB", tasks[1].TokenAddress)
	assert.Equal(t, "MintRetried", tasks[2].TokenAddress)
}

func TestTaskStore_GetPendingLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testTask("Mint1", 1700000010000)))
	require.NoError(t, store.Insert(ctx, testTask("Mint2", 1700000020000)))
	require.NoError(t, store.Insert(ctx, testTask("Mint3", 1700000030000)))

	tasks, err := store.GetPending(ctx, 1700000100000, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Mint1", tasks[0].TokenAddress)
	assert.Equal(t, "Mint2", tasks[1].TokenAddress)
}

func TestTaskStore_GetByStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	doneLate := testTask("MintLate", 1700000030000)
	doneLate.Status = domain.TaskDone
	doneEarly := testTask("MintEarly", 1700000010000)
	doneEarly.Status = domain.TaskDone
	require.NoError(t, store.Insert(ctx, doneLate))
	require.NoError(t, store.Insert(ctx, doneEarly))
	require.NoError(t, store.Insert(ctx, testTask("MintPending", 1700000020000)))

	tasks, err := store.GetByStatus(ctx, domain.TaskDone, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "MintEarly", tasks[0].TokenAddress)
	assert.Equal(t, "MintLate", tasks[1].TokenAddress)

	limited, err := store.GetByStatus(ctx, domain.TaskDone, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "MintEarly", limited[0].TokenAddress)
}

func TestTaskStore_CountByStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTaskStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testTask("Mint1", 1700000010000)))
	require.NoError(t, store.Insert(ctx, testTask("Mint2", 1700000020000)))

	failed := testTask("Mint3", 1700000030000)
	failed.Status = domain.TaskFailed
	failed.Attempts = 5
	require.NoError(t, store.Insert(ctx, failed))

	pending, err := store.CountByStatus(ctx, domain.TaskPending)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	failedCount, err := store.CountByStatus(ctx, domain.TaskFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failedCount)

	doneCount, err := store.CountByStatus(ctx, domain.TaskDone)
	require.NoError(t, err)
	assert.Equal(t, 0, doneCount)
}
