package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	memsheet "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

const processedSweepInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.DefaultConfig().Level, applog.ComponentWorker)
	logger.Info("Starting fintrack-worker")

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(logger.Slog(), "Configuration validation failed", err)
	}
	logger = cli.SetupLogger(cfg.SlogLevel(), applog.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	var ledger sheets.LedgerWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			cli.Fatal(logger.Slog(), "Failed to initialize Google Sheets client", err)
		}
		ledger = client
		logger.Info("Google Sheets ledger enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		ledger = memsheet.New()
		logger.Info("Google Sheets disabled, exporting to memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger.Slog(), "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	exporter := worker.NewExportWorker(ledger, logger)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	caches.Register(exporter.Processed())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.Consume(gctx, exporter.HandleTransactionCreated)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return caches.Run(gctx, processedSweepInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
	}

	stats := exporter.Stats()
	logger.Info("Worker shutdown complete",
		"exported", stats.Exported,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed)
}
