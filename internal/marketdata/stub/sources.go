// Package stub provides in-memory upstream fakes for testing.
package stub

import (
	"context"
	"sync"

	"token-radar/internal/domain"
)

// DiscoverySource returns fixed in-memory candidate batches.
// Implements marketdata.DiscoverySource.
type DiscoverySource struct {
	mu      sync.Mutex
	batches [][]domain.TokenInfo
	next    int
	err     error
}

// NewDiscoverySource creates a stub discovery source that serves the
// given batches in order, repeating the last one once exhausted.
func NewDiscoverySource(batches ...[]domain.TokenInfo) *DiscoverySource {
	return &DiscoverySource{batches: batches}
}

// SetError makes subsequent Latest calls fail with err (nil clears it).
func (s *DiscoverySource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Latest returns the next configured batch.
func (s *DiscoverySource) Latest(_ context.Context) ([]domain.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if len(s.batches) == 0 {
		return nil, nil
	}

	batch := s.batches[s.next]
	if s.next < len(s.batches)-1 {
		s.next++
	}

	result := make([]domain.TokenInfo, len(batch))
	copy(result, batch)
	return result, nil
}

// PoolResolver resolves pools from a fixed map.
// Implements marketdata.PoolResolver.
type PoolResolver struct {
	mu    sync.Mutex
	pools map[string]string // token address -> pool
	err   error

	// Calls counts ResolvePool invocations, for rate-limit assertions.
	Calls int
}

// NewPoolResolver creates a stub resolver with the given mapping.
func NewPoolResolver(pools map[string]string) *PoolResolver {
	if pools == nil {
		pools = make(map[string]string)
	}
	return &PoolResolver{pools: pools}
}

// SetError makes subsequent ResolvePool calls fail with err.
func (s *PoolResolver) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ResolvePool returns the configured pool, or (nil, nil) when absent.
func (s *PoolResolver) ResolvePool(_ context.Context, address string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls++
	if s.err != nil {
		return nil, s.err
	}
	pool, ok := s.pools[address]
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

// HistoryFetcher serves fixed OHLCV bars per pool.
// Implements marketdata.HistoryFetcher.
type HistoryFetcher struct {
	mu     sync.Mutex
	points map[string][]domain.OHLCVPoint // keyed by pool
	err    error

	// Calls counts FetchOHLCV invocations.
	Calls int
}

// NewHistoryFetcher creates a stub fetcher with the given bars per pool.
func NewHistoryFetcher(points map[string][]domain.OHLCVPoint) *HistoryFetcher {
	if points == nil {
		points = make(map[string][]domain.OHLCVPoint)
	}
	return &HistoryFetcher{points: points}
}

// SetError makes subsequent FetchOHLCV calls fail with err.
func (s *HistoryFetcher) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetPoints replaces the bars served for a pool.
func (s *HistoryFetcher) SetPoints(pool string, points []domain.OHLCVPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[pool] = points
}

// FetchOHLCV returns up to limit bars, oldest-first.
func (s *HistoryFetcher) FetchOHLCV(_ context.Context, pool string, limit int) ([]domain.OHLCVPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls++
	if s.err != nil {
		return nil, s.err
	}

	bars := s.points[pool]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	result := make([]domain.OHLCVPoint, len(bars))
	copy(result, bars)
	return result, nil
}
