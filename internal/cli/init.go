// Package cli holds the start-up steps shared by the ledger binaries.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/classify"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/dedup"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LEDGER_LOG_FORMAT
// and installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	return SetupLoggerTo(component, os.Stdout)
}

// SetupLoggerTo is SetupLogger writing to w, e.g. stderr for command output on stdout.
func SetupLoggerTo(component string, w io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = w
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if f := os.Getenv("LEDGER_LOG_FORMAT"); f != "" {
		cfg.Format = f
	}
	cfg.Component = component

	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and exits the process when it is invalid.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration load failed", log.FieldError, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the ledger database or exits the process.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects the event publisher when configured. A broker that cannot
// be reached is logged and the process runs without events.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP not configured, ledger events disabled")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger events disabled", log.FieldError, err)
		return nil
	}
	return client
}

// LoadClassifier returns the rules from cfg.RulesFile, or the built-in rules.
func LoadClassifier(logger *log.Logger, cfg *config.Config) *classify.Classifier {
	if cfg.RulesFile == "" {
		return classify.Default()
	}
	c, err := classify.LoadFile(cfg.RulesFile)
	if err != nil {
		logger.Error("Failed to load categorization rules", log.FieldError, err, "path", cfg.RulesFile)
		os.Exit(1)
	}
	logger.Info("Categorization rules loaded", "path", cfg.RulesFile, "rules", len(c.Rules()))
	return c
}

// App bundles the wired services of one process.
type App struct {
	Repo          *storage.SQLiteRepository
	Events        *amqp.Client
	ProgressCache *cache.LRUCache[[]core.BudgetProgress]
	Imports       *services.ImportService
	Ledger        *services.LedgerService
	Budget        *services.BudgetService
}

// Wire builds the service graph over repo. events may be nil.
func Wire(logger *log.Logger, cfg *config.Config, repo *storage.SQLiteRepository, events *amqp.Client) *App {
	cutoff, err := cfg.Cutoff()
	if err != nil {
		logger.Error("Invalid import cutoff", log.FieldError, err)
		os.Exit(1)
	}

	var publisher services.EventPublisher
	if events != nil {
		publisher = events
	}

	progressCache := cache.NewLRUCache[[]core.BudgetProgress](cfg.ProgressCacheSize, cfg.ProgressCacheTTL)
	budget := services.NewBudgetService(repo, progressCache, time.Now, publisher)

	return &App{
		Repo:          repo,
		Events:        events,
		ProgressCache: progressCache,
		Imports:       services.NewImportService(repo, dedup.New(cutoff), LoadClassifier(logger, cfg), publisher, budget),
		Ledger:        services.NewLedgerService(repo, publisher, budget),
		Budget:        budget,
	}
}

// Close releases the database and broker connections.
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			slog.Warn("Failed to close AMQP client", "error", err)
		}
	}
	if a.Repo != nil {
		if err := a.Repo.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
	}()
	return ctx, cancel
}
