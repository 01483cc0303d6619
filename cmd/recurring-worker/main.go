package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Generated transactions are announced like API writes so the export
	// worker picks them up.
	var events services.EventPublisher
	if client := cli.ConnectAMQP(logger, cfg); client != nil {
		defer client.Close()
		events = client
	}

	processor := services.NewRecurringProcessor(repo, services.NewTransactionService(repo, events))

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Recurring expense processor configured",
		"interval", cfg.RecurringInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return run(gctx, logger, processor, repo, cfg.RecurringInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Recurring-worker shutdown complete")
}

// run processes once on startup and then on every tick until ctx ends.
// A failed run is logged; the next tick retries.
func run(ctx context.Context, logger *log.Logger, processor *services.RecurringProcessor, repo *storage.SQLiteRepository, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	process := func(now time.Time) {
		count, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", log.FieldError, err)
			return
		}
		logger.Info("Recurring processing complete",
			log.FieldCreated, count,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	process(repo.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			process(repo.Now())
		}
	}
}
