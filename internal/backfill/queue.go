// Package backfill maintains the persistent, rate-limited retry queue
// that warms up candle history from the upstream market-data API.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/marketdata"
	"token-radar/internal/observability"
	"token-radar/internal/storage"
)

// Tracker registers tokens for live aggregation once their history is in.
type Tracker interface {
	// Track starts live aggregation for the address. Must be idempotent.
	Track(address string, pool *string)

	// IsTracked reports whether the address is already aggregated.
	IsTracked(address string) bool
}

// Default queue configuration.
const (
	DefaultMaxAttempts   = 5
	DefaultRetryCooldown = 2 * time.Minute
	DefaultFetchLimit    = 100
	DefaultGapThreshold  = 60 * time.Second
)

// Queue resolves missing historical data through the rate-limited
// upstream with bounded retries. Task state is persisted; a drain
// survives restarts without losing attempt bookkeeping.
type Queue struct {
	taskStore   storage.TaskStore
	candleStore storage.CandleStore
	resolver    marketdata.PoolResolver
	fetcher     marketdata.HistoryFetcher
	tracker     Tracker

	maxAttempts   int
	retryCooldown time.Duration
	fetchLimit    int
	gapThreshold  time.Duration

	logger *log.Logger
	now    func() time.Time

	// draining guards Drain: the upstream enforces one shared rate
	// limit, so two drains must never run simultaneously.
	draining atomic.Bool
}

// Options contains configuration for creating a Queue.
type Options struct {
	TaskStore   storage.TaskStore
	CandleStore storage.CandleStore
	Resolver    marketdata.PoolResolver
	Fetcher     marketdata.HistoryFetcher
	Tracker     Tracker

	MaxAttempts   int           // default 5
	RetryCooldown time.Duration // default 2m
	FetchLimit    int           // default 100 bars per fetch
	GapThreshold  time.Duration // default 60s

	Logger *log.Logger
	Now    func() time.Time // test hook
}

// New creates a new backfill queue.
func New(opts Options) *Queue {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	cooldown := opts.RetryCooldown
	if cooldown == 0 {
		cooldown = DefaultRetryCooldown
	}

	fetchLimit := opts.FetchLimit
	if fetchLimit == 0 {
		fetchLimit = DefaultFetchLimit
	}

	gapThreshold := opts.GapThreshold
	if gapThreshold == 0 {
		gapThreshold = DefaultGapThreshold
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Queue{
		taskStore:     opts.TaskStore,
		candleStore:   opts.CandleStore,
		resolver:      opts.Resolver,
		fetcher:       opts.Fetcher,
		tracker:       opts.Tracker,
		maxAttempts:   maxAttempts,
		retryCooldown: cooldown,
		fetchLimit:    fetchLimit,
		gapThreshold:  gapThreshold,
		logger:        logger,
		now:           now,
	}
}

// Enqueue inserts a pending task for the token if none exists. An
// existing task keeps its status and attempt count untouched.
func (q *Queue) Enqueue(ctx context.Context, info domain.TokenInfo, pool *string) error {
	task := &domain.BackfillTask{
		TokenAddress: info.Address,
		Symbol:       info.Symbol,
		Name:         info.Name,
		Pool:         pool,
		Status:       domain.TaskPending,
		EnqueuedMs:   q.now().UnixMilli(),
	}

	err := q.taskStore.Insert(ctx, task)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", info.Address, err)
	}
	return nil
}

// DrainResult contains statistics from one drain pass.
type DrainResult struct {
	Selected int
	Done     int
	Failed   int // tasks that exhausted their attempts this pass
	Retried  int // tasks left pending for a later drain
	Skipped  bool
}

// Drain processes up to batchSize eligible pending tasks, strictly
// sequentially. A drain requested while one is in flight is a no-op.
// A failing task never aborts the remainder of the batch.
func (q *Queue) Drain(ctx context.Context, batchSize int) (*DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return &DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)

	cutoff := q.now().Add(-q.retryCooldown).UnixMilli()
	tasks, err := q.taskStore.GetPending(ctx, cutoff, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select pending tasks: %w", err)
	}

	started := q.now()
	result := &DrainResult{Selected: len(tasks)}
	for _, task := range tasks {
		if err := q.processTask(ctx, task); err != nil {
			q.recordFailure(ctx, task, err)
			if task.Status == domain.TaskFailed {
				result.Failed++
			} else {
				result.Retried++
			}
			continue
		}
		result.Done++
	}

	observability.RecordDrain(result.Done, result.Retried, result.Failed, q.now().Sub(started).Seconds())
	return result, nil
}

// processTask runs the resolve → fetch → persist → register sequence
// for one task and marks it done on success.
func (q *Queue) processTask(ctx context.Context, task *domain.BackfillTask) error {
	pool := task.Pool
	if pool == nil {
		resolved, err := q.resolver.ResolvePool(ctx, task.TokenAddress)
		if err != nil {
			return fmt.Errorf("resolve pool: %w", err)
		}
		if resolved == nil {
			return fmt.Errorf("resolve pool: %w", marketdata.ErrNotFound)
		}
		pool = resolved
		task.Pool = pool
	}

	points, err := q.fetcher.FetchOHLCV(ctx, *pool, q.fetchLimit)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("fetch history: %w", marketdata.ErrNotFound)
	}

	if err := q.persistPoints(ctx, task.TokenAddress, pool, points); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}

	if q.tracker != nil && !q.tracker.IsTracked(task.TokenAddress) {
		q.tracker.Track(task.TokenAddress, pool)
	}

	task.Status = domain.TaskDone
	task.Error = ""
	task.CompletedMs = q.now().UnixMilli()
	if err := q.taskStore.Update(ctx, task); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}

	q.logger.Printf("backfilled %s (%s): %d candles", task.Symbol, task.TokenAddress, len(points))
	return nil
}

// recordFailure increments attempt bookkeeping and marks the task
// failed once attempts reach the ceiling. Failed tasks receive no
// further automatic retries.
func (q *Queue) recordFailure(ctx context.Context, task *domain.BackfillTask, cause error) {
	task.Attempts++
	task.LastAttemptMs = q.now().UnixMilli()
	task.Error = cause.Error()
	if task.Attempts >= q.maxAttempts {
		task.Status = domain.TaskFailed
		q.logger.Printf("task %s failed permanently after %d attempts: %v", task.TokenAddress, task.Attempts, cause)
	}

	if err := q.taskStore.Update(ctx, task); err != nil {
		q.logger.Printf("update task %s: %v", task.TokenAddress, err)
	}
}

// persistPoints converts fetched bars to candles and inserts them,
// silently skipping duplicate timestamps.
func (q *Queue) persistPoints(ctx context.Context, address string, pool *string, points []domain.OHLCVPoint) error {
	candles := make([]*domain.Candle, 0, len(points))
	for _, p := range points {
		candles = append(candles, &domain.Candle{
			TokenAddress: address,
			Pool:         pool,
			TimestampMs:  p.TimestampMs,
			Open:         p.Open,
			High:         p.High,
			Low:          p.Low,
			Close:        p.Close,
			Volume:       p.Volume,
		})
	}

	_, err := q.candleStore.InsertBulk(ctx, candles, true)
	return err
}

// RestoreTracked re-registers every token whose backfill completed in a
// previous run. After a restart the registry starts empty while those
// tasks are already done, so neither drains nor discovery (which no-ops
// on the existing task row) would ever track them again. Returns the
// number of tokens registered.
func (q *Queue) RestoreTracked(ctx context.Context) (int, error) {
	if q.tracker == nil {
		return 0, nil
	}

	tasks, err := q.taskStore.GetByStatus(ctx, domain.TaskDone, 0)
	if err != nil {
		return 0, fmt.Errorf("load done tasks: %w", err)
	}

	restored := 0
	for _, task := range tasks {
		if q.tracker.IsTracked(task.TokenAddress) {
			continue
		}
		q.tracker.Track(task.TokenAddress, task.Pool)
		restored++
	}

	if restored > 0 {
		q.logger.Printf("restored %d tracked tokens from completed tasks", restored)
	}
	return restored, nil
}

// AuditAndEnqueueMissing re-enqueues every registered token that has no
// persisted candles. Existing tasks, including permanently failed ones,
// keep their state: insert-if-absent never resurrects a failed task.
func (q *Queue) AuditAndEnqueueMissing(ctx context.Context, tokens []domain.Token) error {
	var enqueued int
	for _, tok := range tokens {
		count, err := q.candleStore.CountByToken(ctx, tok.Address)
		if err != nil {
			q.logger.Printf("audit %s: %v", tok.Address, err)
			continue
		}
		if count > 0 {
			continue
		}

		info := domain.TokenInfo{Address: tok.Address, Symbol: tok.Symbol, Name: tok.Name}
		if err := q.Enqueue(ctx, info, tok.Pool); err != nil {
			q.logger.Printf("audit enqueue %s: %v", tok.Address, err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		q.logger.Printf("audit: enqueued %d tokens with no candle coverage", enqueued)
	}
	return nil
}

// GapFillOnStartup directly fetches and persists history for every
// token whose newest persisted candle is older than the gap threshold,
// bypassing the queue. Duplicate overlap writes are silently ignored,
// so an immediate second run persists nothing new.
func (q *Queue) GapFillOnStartup(ctx context.Context, tokens []domain.Token) error {
	threshold := q.gapThreshold.Milliseconds()
	nowMs := q.now().UnixMilli()

	for _, tok := range tokens {
		if tok.Pool == nil {
			continue
		}

		latest, err := q.candleStore.LatestTimestamp(ctx, tok.Address)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// No coverage at all: the audit path owns this case.
				continue
			}
			q.logger.Printf("gap check %s: %v", tok.Address, err)
			continue
		}
		if nowMs-latest <= threshold {
			continue
		}

		points, err := q.fetcher.FetchOHLCV(ctx, *tok.Pool, q.fetchLimit)
		if err != nil {
			q.logger.Printf("gap fill %s: %v", tok.Address, err)
			continue
		}
		if len(points) == 0 {
			continue
		}
		if err := q.persistPoints(ctx, tok.Address, tok.Pool, points); err != nil {
			q.logger.Printf("gap fill persist %s: %v", tok.Address, err)
		}
	}
	return nil
}
