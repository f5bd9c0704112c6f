// Package tracker composes the registry, aggregator, evaluator and
// notifier into the live signal pipeline.
package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"token-radar/internal/aggregator"
	"token-radar/internal/domain"
	"token-radar/internal/indicator"
	"token-radar/internal/notify"
	"token-radar/internal/observability"
	"token-radar/internal/registry"
	"token-radar/internal/storage"
)

// Tracker owns the live flow: closed candles are evaluated against the
// persisted history and confirmed triggers go to the notifier. It also
// implements backfill.Tracker so the queue can register tokens once
// their history is warm.
type Tracker struct {
	registry    *registry.Registry
	aggregator  *aggregator.Aggregator
	candleStore storage.CandleStore
	notifier    notify.Notifier

	indicatorCfg indicator.Config
	historyLimit int
	staleAfter   time.Duration
	logger       *log.Logger
	now          func() time.Time

	sampleMu   sync.Mutex
	lastSample map[string]int64 // token address -> last accepted sample (ms)
}

// Options contains configuration for creating a Tracker.
type Options struct {
	Registry    *registry.Registry
	Aggregator  *aggregator.Aggregator
	CandleStore storage.CandleStore
	Notifier    notify.Notifier

	IndicatorConfig indicator.Config

	// HistoryLimit caps candles loaded per evaluation.
	// Default SlowPeriod*3.
	HistoryLimit int

	// StaleAfter is how long a token may go without samples before the
	// maintenance pass untracks it. Zero disables pruning.
	StaleAfter time.Duration

	Logger *log.Logger
	Now    func() time.Time // test hook
}

// New creates a new Tracker.
func New(opts Options) *Tracker {
	historyLimit := opts.HistoryLimit
	if historyLimit == 0 {
		historyLimit = opts.IndicatorConfig.SlowPeriod * 3
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		registry:     opts.Registry,
		aggregator:   opts.Aggregator,
		candleStore:  opts.CandleStore,
		notifier:     opts.Notifier,
		indicatorCfg: opts.IndicatorConfig,
		historyLimit: historyLimit,
		staleAfter:   opts.StaleAfter,
		logger:       logger,
		now:          now,
		lastSample:   make(map[string]int64),
	}
}

// Track registers a token in both the registry and the aggregator.
// Idempotent; satisfies backfill.Tracker.
func (t *Tracker) Track(address string, pool *string) {
	added := t.registry.Add(domain.Token{Address: address, Pool: pool})
	if !added {
		t.registry.SetPool(address, pool)
	}
	t.aggregator.Track(address, pool)
	if added {
		t.logger.Printf("tracking %s", address)
	}
}

// IsTracked reports whether the token is live-aggregated.
func (t *Tracker) IsTracked(address string) bool {
	return t.aggregator.IsTracked(address)
}

// Untrack removes a token from the registry and the aggregator.
func (t *Tracker) Untrack(address string) {
	t.registry.Remove(address)
	t.aggregator.Untrack(address)

	t.sampleMu.Lock()
	delete(t.lastSample, address)
	t.sampleMu.Unlock()
}

// AddSample forwards a live observation into the aggregator and records
// the token's liveness for the maintenance pass.
func (t *Tracker) AddSample(sample domain.PriceSample) {
	t.aggregator.AddSample(sample.TokenAddress, sample.Price, sample.Volume)
	observability.RecordSample()
	if t.aggregator.IsTracked(sample.TokenAddress) {
		t.sampleMu.Lock()
		t.lastSample[sample.TokenAddress] = t.now().UnixMilli()
		t.sampleMu.Unlock()
	}
}

// HandleCandleClose evaluates the trigger on the token's persisted
// history. Wired as the aggregator's OnClose callback: exactly one
// producer (the candle-close clock) calls it per period.
func (t *Tracker) HandleCandleClose(c domain.Candle) {
	ctx := context.Background()

	history, err := t.candleStore.GetRecent(ctx, c.TokenAddress, t.historyLimit)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Printf("load history for %s: %v", c.TokenAddress, err)
		}
		return
	}

	candles := make([]domain.Candle, len(history))
	for i, h := range history {
		candles[i] = *h
	}

	sig := indicator.Evaluate(candles, t.indicatorCfg)
	if sig == nil {
		return
	}

	if tok, ok := t.registry.Get(c.TokenAddress); ok {
		sig.Symbol = tok.Symbol
	}

	observability.RecordSignal()
	if err := t.notifier.Notify(ctx, *sig); err != nil {
		// Fire-and-forget: log, never retry.
		t.logger.Printf("notify %s: %v", sig.TokenAddress, err)
	}
}

// Prune untracks tokens that have gone silent. One canonical staleness
// threshold applies to every code path.
func (t *Tracker) Prune(_ context.Context) error {
	if t.staleAfter == 0 {
		return nil
	}

	cutoff := t.now().Add(-t.staleAfter).UnixMilli()
	for _, tok := range t.registry.Snapshot() {
		t.sampleMu.Lock()
		last, sampled := t.lastSample[tok.Address]
		t.sampleMu.Unlock()
		if !sampled {
			// Never sampled: measure from when tracking started.
			last = tok.TrackedSince
		}
		if last < cutoff {
			t.Untrack(tok.Address)
			t.logger.Printf("pruned stale token %s", tok.Address)
		}
	}
	return nil
}

// Report logs a one-line status summary.
func (t *Tracker) Report(_ context.Context) error {
	n := t.registry.Len()
	observability.SetTrackedTokens(n)
	t.logger.Printf("status: %d tokens tracked", n)
	return nil
}
