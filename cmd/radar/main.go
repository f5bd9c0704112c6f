// Package main runs the live radar: discovery, backfill, candle
// aggregation and trigger evaluation in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-radar/internal/aggregator"
	"token-radar/internal/backfill"
	"token-radar/internal/discovery"
	"token-radar/internal/domain"
	"token-radar/internal/indicator"
	"token-radar/internal/marketdata"
	"token-radar/internal/notify"
	"token-radar/internal/observability"
	"token-radar/internal/registry"
	"token-radar/internal/sampler"
	"token-radar/internal/scheduler"
	"token-radar/internal/storage"
	chstore "token-radar/internal/storage/clickhouse"
	"token-radar/internal/storage/memory"
	"token-radar/internal/storage/migrations"
	pgstore "token-radar/internal/storage/postgres"
	"token-radar/internal/tracker"
)

func main() {
	// Parse flags
	apiBase := flag.String("api-base", "https://api.geckoterminal.com/api/v2", "Market data REST API base URL")
	wsEndpoint := flag.String("ws-endpoint", "", "Trade stream WebSocket endpoint (empty to poll prices over REST)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for candle storage")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	candlePeriod := flag.Duration("candle-period", aggregator.DefaultPeriod, "Candle width")
	discoveryInterval := flag.Duration("discovery-interval", 30*time.Second, "New-pool discovery poll interval")
	drainInterval := flag.Duration("drain-interval", 30*time.Second, "Backfill queue drain interval")
	drainBatch := flag.Int("drain-batch", 10, "Max tasks processed per drain")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "REST price poll interval (when no WebSocket endpoint)")
	maxAge := flag.Duration("max-age", 24*time.Hour, "Skip discovered tokens older than this (0 disables)")
	programOnly := flag.Bool("program-only", true, "Skip on-curve (wallet-style) mint addresses")
	staleAfter := flag.Duration("stale-after", 30*time.Minute, "Untrack tokens silent for this long (0 disables)")
	pruneInterval := flag.Duration("prune-interval", 5*time.Minute, "Stale token maintenance interval")
	reportInterval := flag.Duration("report-interval", 1*time.Minute, "Status report interval")
	requireVolumeSpike := flag.Bool("require-volume-spike", false, "Require trailing volume spike for triggers")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[radar] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, options{
		apiBase:            *apiBase,
		wsEndpoint:         *wsEndpoint,
		postgresDSN:        *postgresDSN,
		clickhouseDSN:      *clickhouseDSN,
		useMemory:          *useMemory,
		candlePeriod:       *candlePeriod,
		discoveryInterval:  *discoveryInterval,
		drainInterval:      *drainInterval,
		drainBatch:         *drainBatch,
		pollInterval:       *pollInterval,
		maxAge:             *maxAge,
		programOnly:        *programOnly,
		staleAfter:         *staleAfter,
		pruneInterval:      *pruneInterval,
		reportInterval:     *reportInterval,
		requireVolumeSpike: *requireVolumeSpike,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// options carries resolved flag values into run.
type options struct {
	apiBase       string
	wsEndpoint    string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool

	candlePeriod       time.Duration
	discoveryInterval  time.Duration
	drainInterval      time.Duration
	drainBatch         int
	pollInterval       time.Duration
	maxAge             time.Duration
	programOnly        bool
	staleAfter         time.Duration
	pruneInterval      time.Duration
	reportInterval     time.Duration
	requireVolumeSpike bool
}

// run wires the components and blocks until ctx is cancelled.
func run(ctx context.Context, logger *log.Logger, opts options) error {
	if !opts.useMemory && opts.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create stores (use interfaces)
	var candleStore storage.CandleStore = memory.NewCandleStore()
	var taskStore storage.TaskStore = memory.NewTaskStore()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		candleStore = pgstore.NewCandleStore(pool)
		taskStore = pgstore.NewTaskStore(pool)
	}

	// ClickHouse, when configured, takes over candle storage; task state
	// stays transactional in Postgres or memory.
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		candleStore = chstore.NewCandleStore(conn)
	}

	// Upstream API client serves discovery, pool resolution, history and prices.
	client := marketdata.NewHTTPClient(opts.apiBase)

	reg := registry.New()

	indicatorCfg := indicator.DefaultConfig()
	indicatorCfg.RequireVolumeSpike = opts.requireVolumeSpike

	// The tracker consumes closed candles, so the aggregator's OnClose is
	// bound through a forward reference.
	var trk *tracker.Tracker

	agg := aggregator.New(aggregator.Options{
		CandleStore: candleStore,
		Period:      opts.candlePeriod,
		OnClose: func(c domain.Candle) {
			trk.HandleCandleClose(c)
		},
		Logger: logger,
	})

	trk = tracker.New(tracker.Options{
		Registry:        reg,
		Aggregator:      agg,
		CandleStore:     candleStore,
		Notifier:        notify.NewLogNotifier(logger),
		IndicatorConfig: indicatorCfg,
		StaleAfter:      opts.staleAfter,
		Logger:          logger,
	})

	queue := backfill.New(backfill.Options{
		TaskStore:   taskStore,
		CandleStore: candleStore,
		Resolver:    client,
		Fetcher:     client,
		Tracker:     trk,
		Logger:      logger,
	})

	poller := discovery.NewPoller(discovery.PollerOptions{
		Source:      client,
		Gate:        discovery.NewGate(0),
		Enqueuer:    queue,
		MaxAge:      opts.maxAge,
		ProgramOnly: opts.programOnly,
		Logger:      logger,
	})

	// Startup recovery: re-register tokens backfilled in earlier runs,
	// then close coverage gaps, before the periodic jobs begin.
	if _, err := queue.RestoreTracked(ctx); err != nil {
		logger.Printf("startup restore: %v", err)
	}
	if err := queue.GapFillOnStartup(ctx, reg.Snapshot()); err != nil {
		logger.Printf("startup gap fill: %v", err)
	}

	sched := scheduler.New(logger)

	if err := sched.Add("discovery", opts.discoveryInterval, func(ctx context.Context) error {
		_, err := poller.Poll(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := sched.Add("drain", opts.drainInterval, func(ctx context.Context) error {
		_, err := queue.Drain(ctx, opts.drainBatch)
		return err
	}); err != nil {
		return err
	}

	if err := sched.Add("audit", 10*opts.drainInterval, func(ctx context.Context) error {
		return queue.AuditAndEnqueueMissing(ctx, reg.Snapshot())
	}); err != nil {
		return err
	}

	if opts.staleAfter > 0 {
		if err := sched.Add("prune", opts.pruneInterval, trk.Prune); err != nil {
			return err
		}
	}

	if err := sched.Add("report", opts.reportInterval, trk.Report); err != nil {
		return err
	}

	// Live samples: WebSocket stream when configured, REST polling otherwise.
	if opts.wsEndpoint != "" {
		ws := sampler.NewWSSampler(sampler.WSSamplerOptions{
			Endpoint: opts.wsEndpoint,
			Handler:  trk.AddSample,
			Addresses: func() []string {
				return addresses(reg.Snapshot())
			},
			Logger: logger,
		})
		go func() {
			if err := ws.Run(ctx); err != nil && err != context.Canceled {
				logger.Printf("websocket sampler stopped: %v", err)
			}
		}()
	} else {
		poll := sampler.NewPollSampler(sampler.PollSamplerOptions{
			Source:  client,
			Handler: trk.AddSample,
			Addresses: func() []string {
				return addresses(reg.Snapshot())
			},
			Logger: logger,
		})
		if err := sched.Add("price-poll", opts.pollInterval, poll.Poll); err != nil {
			return err
		}
	}

	// Candle-close clock
	go func() {
		if err := agg.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("candle clock stopped: %v", err)
		}
	}()

	logger.Printf("Starting radar: period=%s discovery=%s drain=%s",
		opts.candlePeriod, opts.discoveryInterval, opts.drainInterval)
	return sched.Run(ctx)
}

// addresses projects a registry snapshot onto its token addresses.
func addresses(tokens []domain.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Address)
	}
	return out
}
