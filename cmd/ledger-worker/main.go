package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

// fullExportInterval re-exports every month in case events were lost.
const fullExportInterval = time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting ledger worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.DBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	target, err := backend.New(ctx, backendCfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize export backend", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	// The worker reads progress straight from the database; no cache, no events.
	budget := services.NewBudgetService(repo, nil, time.Now, nil)
	exporter := worker.NewExportWorker(budget, target.Exporter, worker.Options{
		Attempts: uint(cfg.ExportRetryAttempts),
		Delay:    2 * time.Second,
		RetryIf:  target.RetryIf,
	})

	logger.Info("Performing startup export...")
	if err := exporter.StartupExport(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if events := cli.InitAMQP(logger, cfg); events != nil {
		defer events.Close()
		g.Go(func() error {
			err := events.Consume(gctx, exporter.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping event consumption, relying on periodic export")
	}

	g.Go(func() error {
		ticker := time.NewTicker(fullExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := exporter.ExportAll(gctx); err != nil {
					logger.Error("Periodic export failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
