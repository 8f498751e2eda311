// Package backend selects where the export worker writes budget progress.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/config"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/sheets/memory"
)

// Type names an export target.
type Type string

const (
	SheetsBackend Type = "sheets"
	MemoryBackend Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if t names a known target.
func (t Type) IsValid() bool {
	switch t {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Types returns every valid export target.
func Types() []Type {
	return []Type{SheetsBackend, MemoryBackend}
}

// Exporter is what the worker needs from a target.
type Exporter interface {
	sheets.ProgressExporter
	sheets.ProgressReader
}

// Config holds the settings for building an Exporter.
type Config struct {
	Type Type

	// Google Sheets
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.ExportBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid export backend in config: %s", appConfig.ExportBackend)
	}

	return Config{
		Type:            t,
		SpreadsheetID:   appConfig.SheetsSpreadsheetID,
		SheetName:       appConfig.SheetsSheetName,
		CredentialsFile: appConfig.SheetsCredentialsFile,
	}, nil
}

// Validate checks that c has what its target needs.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid export backend: %s", c.Type)
	}
	if c.Type == SheetsBackend {
		if c.SpreadsheetID == "" {
			return fmt.Errorf("spreadsheet id is required for the sheets backend")
		}
		if c.SheetName == "" {
			return fmt.Errorf("sheet name is required for the sheets backend")
		}
	}
	return nil
}

// Result is a built target plus the retry policy that fits it.
type Result struct {
	Exporter Exporter
	// RetryIf reports whether a failed export is worth retrying.
	RetryIf func(error) bool
}

// New builds the target named by cfg.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SheetsBackend:
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.SpreadsheetID,
			SheetName:       cfg.SheetName,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		logger.Info("Google Sheets export backend initialized", "spreadsheet_id", cfg.SpreadsheetID)
		return &Result{Exporter: client, RetryIf: gsheet.IsRetryable}, nil
	case MemoryBackend:
		logger.Warn("Using in-memory export backend, progress is not persisted")
		return &Result{Exporter: memory.New(), RetryIf: func(error) bool { return false }}, nil
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", cfg.Type)
	}
}
