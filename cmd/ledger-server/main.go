package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/adapters"
	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	logger.Info("Starting ledger server", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	app := cli.Wire(logger, cfg, cli.InitSQLite(logger, cfg.DBPath), cli.InitAMQP(logger, cfg))
	defer app.Close()

	ops := adapters.NewOperations(app.Imports, app.Ledger, app.Budget, logger)
	srv := apphttp.NewServer(":"+cfg.Port, ops, logger, apphttp.Options{
		Checks: map[string]apphttp.ReadinessCheck{"database": app.Repo.Ping},
	})

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port, "db_path", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		janitor := cache.NewJanitor(logger.Logger, app.ProgressCache)
		return janitor.Run(gctx, cfg.ProgressCacheTTL)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
