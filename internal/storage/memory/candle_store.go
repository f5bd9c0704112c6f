package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"token-radar/internal/domain"
	"token-radar/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by (token_address, timestamp_ms)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// candleKey generates a unique key for a candle.
func candleKey(address string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", address, timestampMs)
}

// Insert adds a new candle. Returns ErrDuplicateKey if (token_address, timestamp_ms) exists.
func (s *CandleStore) Insert(_ context.Context, c *domain.Candle) error {
	if c == nil || c.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleKey(c.TokenAddress, c.TimestampMs)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	candleCopy := *c
	s.data[key] = &candleCopy
	return nil
}

// InsertBulk adds multiple candles. See storage.CandleStore for duplicate semantics.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle, skipDuplicates bool) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(candles))
	var toInsert []*domain.Candle

	for _, c := range candles {
		if c == nil || c.TokenAddress == "" {
			return 0, storage.ErrInvalidInput
		}
		key := candleKey(c.TokenAddress, c.TimestampMs)

		_, inStore := s.data[key]
		_, inBatch := batchKeys[key]
		if inStore || inBatch {
			if skipDuplicates {
				continue
			}
			return 0, storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
		toInsert = append(toInsert, c)
	}

	for _, c := range toInsert {
		candleCopy := *c
		s.data[candleKey(c.TokenAddress, c.TimestampMs)] = &candleCopy
	}

	return len(toInsert), nil
}

// GetByToken retrieves all candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetByToken(_ context.Context, address string) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.TokenAddress == address {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetRecent retrieves the newest limit candles for a token, ordered by timestamp ASC.
func (s *CandleStore) GetRecent(ctx context.Context, address string, limit int) ([]*domain.Candle, error) {
	all, err := s.GetByToken(ctx, address)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// LatestTimestamp returns the newest persisted candle timestamp for a token.
func (s *CandleStore) LatestTimestamp(_ context.Context, address string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, c := range s.data {
		if c.TokenAddress == address {
			if !found || c.TimestampMs > latest {
				latest = c.TimestampMs
			}
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

// CountByToken returns the number of persisted candles for a token.
func (s *CandleStore) CountByToken(_ context.Context, address string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.data {
		if c.TokenAddress == address {
			count++
		}
	}
	return count, nil
}
