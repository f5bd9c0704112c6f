package memory

import (
	"context"
	"sort"
	"sync"

	"token-radar/internal/domain"
	"token-radar/internal/storage"
)

// TaskStore is an in-memory implementation of storage.TaskStore.
type TaskStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BackfillTask // keyed by token address
}

// NewTaskStore creates a new in-memory backfill task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		data: make(map[string]*domain.BackfillTask),
	}
}

// Compile-time interface check.
var _ storage.TaskStore = (*TaskStore)(nil)

// Insert adds a new task. Returns ErrDuplicateKey if one exists for the address.
func (s *TaskStore) Insert(_ context.Context, t *domain.BackfillTask) error {
	if t == nil || t.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TokenAddress]; exists {
		return storage.ErrDuplicateKey
	}

	taskCopy := *t
	s.data[t.TokenAddress] = &taskCopy
	return nil
}

// Get retrieves a task by token address. Returns ErrNotFound if not exists.
func (s *TaskStore) Get(_ context.Context, address string) (*domain.BackfillTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	taskCopy := *t
	return &taskCopy, nil
}

// Update replaces the stored task. Returns ErrNotFound if the task does not exist.
func (s *TaskStore) Update(_ context.Context, t *domain.BackfillTask) error {
	if t == nil || t.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TokenAddress]; !exists {
		return storage.ErrNotFound
	}

	taskCopy := *t
	s.data[t.TokenAddress] = &taskCopy
	return nil
}

// GetPending retrieves up to limit pending tasks eligible for a retry,
// ordered by (attempts ASC, enqueued ASC).
func (s *TaskStore) GetPending(_ context.Context, olderThanMs int64, limit int) ([]*domain.BackfillTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BackfillTask
	for _, t := range s.data {
		if t.Status != domain.TaskPending {
			continue
		}
		if t.LastAttemptMs != 0 && t.LastAttemptMs > olderThanMs {
			continue
		}
		taskCopy := *t
		result = append(result, &taskCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Attempts != result[j].Attempts {
			return result[i].Attempts < result[j].Attempts
		}
		if result[i].EnqueuedMs != result[j].EnqueuedMs {
			return result[i].EnqueuedMs < result[j].EnqueuedMs
		}
		return result[i].TokenAddress < result[j].TokenAddress
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetByStatus retrieves all tasks in the given status, ordered by
// enqueued ASC. A non-positive limit returns every matching task.
func (s *TaskStore) GetByStatus(_ context.Context, status domain.TaskStatus, limit int) ([]*domain.BackfillTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BackfillTask
	for _, t := range s.data {
		if t.Status != status {
			continue
		}
		taskCopy := *t
		result = append(result, &taskCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EnqueuedMs != result[j].EnqueuedMs {
			return result[i].EnqueuedMs < result[j].EnqueuedMs
		}
		return result[i].TokenAddress < result[j].TokenAddress
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByStatus returns the number of tasks in the given status.
func (s *TaskStore) CountByStatus(_ context.Context, status domain.TaskStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.data {
		if t.Status == status {
			count++
		}
	}
	return count, nil
}
