// Package aggregator converts live price samples into clock-aligned OHLCV candles.
package aggregator

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
	"token-radar/internal/storage"
)

// bucket accumulates samples for one token within the current period.
type bucket struct {
	open    float64
	high    float64
	low     float64
	close   float64
	volume  float64
	samples int
}

// Aggregator owns per-token candle buckets and a last-known-price cache.
// All maps are guarded by one mutex; AddSample and ClosePeriod are safe
// to call from concurrently scheduled tasks.
type Aggregator struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	pools     map[string]*string
	lastPrice map[string]float64

	candleStore storage.CandleStore
	period      time.Duration
	onClose     func(domain.Candle)
	logger      *log.Logger
}

// Options contains configuration for creating an Aggregator.
type Options struct {
	CandleStore storage.CandleStore
	Period      time.Duration // candle width, default 15s

	// OnClose is invoked once per closed candle, after persistence.
	// Exactly one producer (the candle-close clock) calls ClosePeriod,
	// so implementations may assume single-writer semantics.
	OnClose func(domain.Candle)

	Logger *log.Logger
}

// DefaultPeriod is the candle width used when Options.Period is zero.
const DefaultPeriod = 15 * time.Second

// New creates a new Aggregator.
func New(opts Options) *Aggregator {
	period := opts.Period
	if period == 0 {
		period = DefaultPeriod
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Aggregator{
		buckets:     make(map[string]*bucket),
		pools:       make(map[string]*string),
		lastPrice:   make(map[string]float64),
		candleStore: opts.CandleStore,
		period:      period,
		onClose:     opts.OnClose,
		logger:      logger,
	}
}

// Period returns the candle width.
func (a *Aggregator) Period() time.Duration {
	return a.period
}

// Track starts aggregating samples for a token. Tracking an
// already-tracked token is a no-op.
func (a *Aggregator) Track(address string, pool *string) {
	if address == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.buckets[address]; exists {
		return
	}
	a.buckets[address] = &bucket{}
	a.pools[address] = pool
}

// Untrack stops aggregating a token and clears its bucket and price cache.
// Untracking an unknown token is a no-op.
func (a *Aggregator) Untrack(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.buckets, address)
	delete(a.pools, address)
	delete(a.lastPrice, address)
}

// IsTracked reports whether samples for the address are being aggregated.
func (a *Aggregator) IsTracked(address string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, exists := a.buckets[address]
	return exists
}

// AddSample folds one live observation into the current bucket.
// Samples for untracked tokens and invalid prices (NaN, Inf, <= 0)
// are dropped silently; another sample will arrive shortly.
func (a *Aggregator) AddSample(address string, price, volume float64) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, tracked := a.buckets[address]
	if !tracked {
		return
	}

	if b.samples == 0 {
		b.open = price
		b.high = price
		b.low = price
	} else {
		if price > b.high {
			b.high = price
		}
		if price < b.low {
			b.low = price
		}
	}
	b.close = price
	b.volume += volume
	b.samples++

	// Survives period closes for external valuation reads.
	a.lastPrice[address] = price
}

// LastPrice returns the most recent accepted sample price for a token.
func (a *Aggregator) LastPrice(address string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.lastPrice[address]
	return p, ok
}

// PeriodStart returns the start of the period containing ts, aligned to
// absolute wall-clock multiples of the period width so restarts produce
// comparable boundaries.
func (a *Aggregator) PeriodStart(ts time.Time) time.Time {
	return ts.Truncate(a.period)
}

// ClosePeriod emits one immutable candle at periodStart for every tracked
// token that received samples, persists it, hands it to the OnClose
// callback, and resets the bucket. Tokens with zero samples emit nothing.
func (a *Aggregator) ClosePeriod(ctx context.Context, periodStart time.Time) {
	closed := a.collectClosed(periodStart)

	for _, c := range closed {
		persisted := false
		if a.candleStore != nil {
			err := a.candleStore.Insert(ctx, &c)
			if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				a.logger.Printf("persist candle %s@%d: %v", c.TokenAddress, c.TimestampMs, err)
				continue
			}
			persisted = err == nil
		}
		observability.RecordCandleClosed(persisted)
		if a.onClose != nil {
			a.onClose(c)
		}
	}
}

// Run drives the candle-close clock until ctx is cancelled: it sleeps to
// each absolute period boundary and closes the period that just elapsed.
// This is the single producer of ClosePeriod calls.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		now := time.Now()
		next := a.PeriodStart(now).Add(a.period)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next.Sub(now)):
			a.ClosePeriod(ctx, next.Add(-a.period))
		}
	}
}

// collectClosed snapshots and resets all non-empty buckets under the lock.
func (a *Aggregator) collectClosed(periodStart time.Time) []domain.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []domain.Candle
	for addr, b := range a.buckets {
		if b.samples == 0 {
			continue
		}
		closed = append(closed, domain.Candle{
			TokenAddress: addr,
			Pool:         a.pools[addr],
			TimestampMs:  periodStart.UnixMilli(),
			Open:         b.open,
			High:         b.high,
			Low:          b.low,
			Close:        b.close,
			Volume:       b.volume,
		})
		*b = bucket{}
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].TokenAddress < closed[j].TokenAddress
	})
	return closed
}
