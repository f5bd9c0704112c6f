// Package main provides a one-shot backfill drain: it processes the
// persisted task queue until no eligible task remains, then reports
// queue state. Useful for catching up after downtime without running
// the full radar.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-radar/internal/backfill"
	"token-radar/internal/domain"
	"token-radar/internal/marketdata"
	"token-radar/internal/storage"
	chstore "token-radar/internal/storage/clickhouse"
	"token-radar/internal/storage/migrations"
	pgstore "token-radar/internal/storage/postgres"
)

func main() {
	apiBase := flag.String("api-base", "https://api.geckoterminal.com/api/v2", "Market data REST API base URL")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for candle storage")
	batch := flag.Int("batch", 10, "Max tasks processed per drain pass")
	maxPasses := flag.Int("max-passes", 100, "Stop after this many drain passes")
	cooldown := flag.Duration("cooldown", backfill.DefaultRetryCooldown, "Retry cooldown between attempts of one task")
	pause := flag.Duration("pause", 2*time.Second, "Pause between drain passes")
	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping after current task...", sig)
		cancel()
	}()

	if err := run(ctx, logger, *apiBase, *postgresDSN, *clickhouseDSN, *batch, *maxPasses, *cooldown, *pause); err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, apiBase, postgresDSN, clickhouseDSN string, batch, maxPasses int, cooldown, pause time.Duration) error {
	if postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("run postgres migrations: %w", err)
	}

	taskStore := pgstore.NewTaskStore(pool)

	var candleStore storage.CandleStore = pgstore.NewCandleStore(pool)
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()
		candleStore = chstore.NewCandleStore(conn)
	}

	client := marketdata.NewHTTPClient(apiBase)

	queue := backfill.New(backfill.Options{
		TaskStore:     taskStore,
		CandleStore:   candleStore,
		Resolver:      client,
		Fetcher:       client,
		RetryCooldown: cooldown,
		Logger:        logger,
	})

	totals := backfill.DrainResult{}
	for pass := 1; pass <= maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := queue.Drain(ctx, batch)
		if err != nil {
			return fmt.Errorf("drain pass %d: %w", pass, err)
		}
		if result.Selected == 0 {
			break
		}

		totals.Selected += result.Selected
		totals.Done += result.Done
		totals.Failed += result.Failed
		totals.Retried += result.Retried
		logger.Printf("pass %d: selected=%d done=%d failed=%d retried=%d",
			pass, result.Selected, result.Done, result.Failed, result.Retried)

		if result.Retried > 0 && result.Done == 0 {
			// Everything left is cooling down; a tight loop would spin.
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}

	logger.Printf("drained: selected=%d done=%d failed=%d retried=%d",
		totals.Selected, totals.Done, totals.Failed, totals.Retried)

	for _, status := range []domain.TaskStatus{domain.TaskPending, domain.TaskDone, domain.TaskFailed} {
		count, err := taskStore.CountByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("count %s tasks: %w", status, err)
		}
		logger.Printf("queue: %d %s", count, status)
	}

	return nil
}
