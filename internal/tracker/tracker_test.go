package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"token-radar/internal/aggregator"
	"token-radar/internal/domain"
	"token-radar/internal/indicator"
	"token-radar/internal/registry"
	"token-radar/internal/storage/memory"
)

// captureNotifier records delivered signals.
type captureNotifier struct {
	mu      sync.Mutex
	signals []domain.Signal
	err     error
}

func (n *captureNotifier) Notify(_ context.Context, sig domain.Signal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.signals = append(n.signals, sig)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.signals)
}

type fixture struct {
	tracker  *Tracker
	agg      *aggregator.Aggregator
	reg      *registry.Registry
	candles  *memory.CandleStore
	notifier *captureNotifier
	nowMs    int64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		reg:      registry.New(),
		candles:  memory.NewCandleStore(),
		notifier: &captureNotifier{},
		nowMs:    1704067200000,
	}
	f.agg = aggregator.New(aggregator.Options{CandleStore: f.candles})

	opts.Registry = f.reg
	opts.Aggregator = f.agg
	opts.CandleStore = f.candles
	opts.Notifier = f.notifier
	if opts.IndicatorConfig == (indicator.Config{}) {
		opts.IndicatorConfig = indicator.DefaultConfig()
	}
	opts.Now = func() time.Time { return time.UnixMilli(f.nowMs) }

	f.tracker = New(opts)
	return f
}

// seedHistory persists a crossover-shaped history for the token.
func seedHistory(t *testing.T, f *fixture, address string, breakout bool) {
	t.Helper()
	ctx := context.Background()

	n := 40
	for i := 0; i < n; i++ {
		c := &domain.Candle{
			TokenAddress: address,
			TimestampMs:  int64(i) * 15000,
			Close:        1.0,
			Volume:       100,
		}
		if err := f.candles.Insert(ctx, c); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
	close := 1.0
	if breakout {
		close = 2.0
	}
	last := &domain.Candle{
		TokenAddress: address,
		TimestampMs:  int64(n) * 15000,
		Close:        close,
		Volume:       100,
	}
	if err := f.candles.Insert(ctx, last); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
}

func TestTracker_SignalOnBreakout(t *testing.T) {
	f := newFixture(t, Options{})
	f.tracker.Track("mint1", nil)

	seedHistory(t, f, "mint1", true)
	f.tracker.HandleCandleClose(domain.Candle{TokenAddress: "mint1", TimestampMs: 40 * 15000})

	if f.notifier.count() != 1 {
		t.Fatalf("expected 1 signal, got %d", f.notifier.count())
	}
	sig := f.notifier.signals[0]
	if sig.TokenAddress != "mint1" || sig.Price != 2.0 {
		t.Errorf("unexpected signal %+v", sig)
	}
}

func TestTracker_NoSignalOnFlatHistory(t *testing.T) {
	f := newFixture(t, Options{})
	f.tracker.Track("mint1", nil)

	seedHistory(t, f, "mint1", false)
	f.tracker.HandleCandleClose(domain.Candle{TokenAddress: "mint1", TimestampMs: 40 * 15000})

	if f.notifier.count() != 0 {
		t.Errorf("flat history must not signal, got %d", f.notifier.count())
	}
}

func TestTracker_NotifyFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, Options{})
	f.tracker.Track("mint1", nil)
	f.notifier.err = errors.New("sink down")

	seedHistory(t, f, "mint1", true)
	// Must not panic or propagate.
	f.tracker.HandleCandleClose(domain.Candle{TokenAddress: "mint1", TimestampMs: 40 * 15000})
}

func TestTracker_TrackIdempotentAcrossBoth(t *testing.T) {
	f := newFixture(t, Options{})

	f.tracker.Track("mint1", nil)
	f.tracker.Track("mint1", nil)

	if f.reg.Len() != 1 {
		t.Errorf("expected 1 registry entry, got %d", f.reg.Len())
	}
	if !f.tracker.IsTracked("mint1") {
		t.Error("token should be aggregated after Track")
	}

	pool := "pool1"
	f.tracker.Track("mint1", &pool)
	tok, _ := f.reg.Get("mint1")
	if tok.Pool == nil || *tok.Pool != "pool1" {
		t.Error("re-track with pool should record the pool")
	}
}

func TestTracker_PruneStaleTokens(t *testing.T) {
	f := newFixture(t, Options{StaleAfter: time.Minute})

	f.tracker.Track("active", nil)
	f.tracker.Track("silent", nil)

	f.tracker.AddSample(domain.PriceSample{TokenAddress: "active", Price: 1.0, Volume: 1})

	// An hour passes with no further samples from "silent".
	f.nowMs += 60 * 60 * 1000
	f.tracker.AddSample(domain.PriceSample{TokenAddress: "active", Price: 1.0, Volume: 1})

	if err := f.tracker.Prune(context.Background()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if f.tracker.IsTracked("silent") {
		t.Error("silent token should be pruned")
	}
	if !f.tracker.IsTracked("active") {
		t.Error("active token must survive pruning")
	}
}

func TestTracker_PruneDisabledByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	f.tracker.Track("mint1", nil)

	f.nowMs += 24 * 60 * 60 * 1000
	if err := f.tracker.Prune(context.Background()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if !f.tracker.IsTracked("mint1") {
		t.Error("pruning disabled: token must stay tracked")
	}
}
