package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

const (
	nameCacheSize = 1000
	nameCacheTTL  = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentExport)
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateExport)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	sheetsClient, err := gsheet.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	names := cache.NewLRUCache[string](nameCacheSize, nameCacheTTL)
	caches := cache.NewManager()
	caches.Register(names)
	caches.StartCleanup(nameCacheTTL)
	defer caches.Stop()

	exporter := worker.NewExportWorker(worker.SourcesFromRepository(repo), sheetsClient, sheetsClient, names)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeEvents(gctx, exporter.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	stats := names.Stats()
	logger.Info("Export-worker shutdown complete", "name_cache_hits", stats.Hits, "name_cache_misses", stats.Misses)
}
