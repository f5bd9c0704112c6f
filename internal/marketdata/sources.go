// Package marketdata defines the upstream collaborator contracts the
// core consumes and an HTTP implementation of them.
package marketdata

import (
	"context"
	"errors"

	"token-radar/internal/domain"
)

// Upstream error taxonomy. Transient and not-found failures both route
// into backfill attempt bookkeeping; callers use errors.Is for logging.
var (
	// ErrNotFound indicates the pool or data is not (yet) available upstream.
	ErrNotFound = errors.New("upstream: not found")

	// ErrRateLimited indicates the upstream rejected the request with 429
	// after retries were exhausted.
	ErrRateLimited = errors.New("upstream: rate limited")
)

// DiscoverySource lists recently created token candidates.
type DiscoverySource interface {
	// Latest returns the current batch of discovery candidates.
	Latest(ctx context.Context) ([]domain.TokenInfo, error)
}

// PoolResolver resolves the pool address used for historical fetches.
type PoolResolver interface {
	// ResolvePool returns the primary pool for a token address,
	// or (nil, nil) when no pool exists yet.
	ResolvePool(ctx context.Context, address string) (*string, error)
}

// HistoryFetcher retrieves historical OHLCV bars for a pool.
type HistoryFetcher interface {
	// FetchOHLCV returns up to limit bars ordered oldest-first,
	// or an empty slice when no data is available.
	FetchOHLCV(ctx context.Context, pool string, limit int) ([]domain.OHLCVPoint, error)
}

// PriceSource returns current prices for a set of token addresses.
// Addresses without a known price are absent from the result.
type PriceSource interface {
	TokenPrices(ctx context.Context, addresses []string) (map[string]float64, error)
}
