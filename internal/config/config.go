// Package config loads ledger settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"ledger/internal/core"
)

// Config holds every setting the ledger binaries read. Field tags name the
// environment variable that sets them.
type Config struct {
	// HTTP API
	Port string `koanf:"LEDGER_PORT"`

	// Storage
	DBPath string `koanf:"LEDGER_DB_PATH"`

	// Import pipeline
	RulesFile    string `koanf:"LEDGER_RULES_FILE"`
	ImportCutoff string `koanf:"LEDGER_IMPORT_CUTOFF"`

	// Progress cache
	ProgressCacheTTL  time.Duration `koanf:"LEDGER_PROGRESS_CACHE_TTL"`
	ProgressCacheSize int           `koanf:"LEDGER_PROGRESS_CACHE_SIZE"`

	// AMQP events; an empty URL disables publishing
	AMQPURL      string `koanf:"LEDGER_AMQP_URL"`
	AMQPExchange string `koanf:"LEDGER_AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"LEDGER_AMQP_QUEUE"`

	// Progress export target for the worker: "sheets" or "memory"
	ExportBackend string `koanf:"LEDGER_EXPORT_BACKEND"`

	// Google Sheets progress export; an empty spreadsheet id disables it
	SheetsSpreadsheetID   string `koanf:"LEDGER_SHEETS_SPREADSHEET_ID"`
	SheetsSheetName       string `koanf:"LEDGER_SHEETS_SHEET_NAME"`
	SheetsCredentialsFile string `koanf:"LEDGER_SHEETS_CREDENTIALS_FILE"`
	ExportRetryAttempts   int    `koanf:"LEDGER_EXPORT_RETRY_ATTEMPTS"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LEDGER_LOG_FORMAT"`
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Port:                "8081",
		DBPath:              "./data/ledger.db",
		ImportCutoff:        "2023-09-01",
		ProgressCacheTTL:    5 * time.Minute,
		ProgressCacheSize:   64,
		AMQPExchange:        "ledger",
		AMQPQueue:           "ledger_events",
		ExportBackend:       "sheets",
		SheetsSheetName:     "Budget Progress",
		ExportRetryAttempts: 5,
		LogLevel:            "INFO",
		LogFormat:           "text",
	}
}

// Load overlays the environment on Default. Empty variables are ignored.
func Load() (*Config, error) {
	k := koanf.New(".")
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" || !(strings.HasPrefix(key, "LEDGER_") || key == "LOG_LEVEL") {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	return cfg, nil
}

// Cutoff parses ImportCutoff.
func (c *Config) Cutoff() (core.Date, error) {
	return core.ParseDate(c.ImportCutoff)
}

func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func (c *Config) SheetsEnabled() bool {
	return c.SheetsSpreadsheetID != ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.DBPath) == "" {
		errors = append(errors, "database path cannot be empty")
	}

	if _, err := c.Cutoff(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid import cutoff '%s': must be YYYY-MM-DD", c.ImportCutoff))
	}

	if c.RulesFile != "" {
		if _, err := os.Stat(c.RulesFile); err != nil {
			errors = append(errors, fmt.Sprintf("rules file '%s' is not readable: %v", c.RulesFile, err))
		}
	}

	if c.ProgressCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid progress cache TTL %v: must be positive", c.ProgressCacheTTL))
	}
	if c.ProgressCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid progress cache size %d: must be at least 1", c.ProgressCacheSize))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SheetsSpreadsheetID != "" {
		if c.SheetsSheetName == "" {
			errors = append(errors, "sheet name is required when a spreadsheet id is set")
		}
		if c.SheetsCredentialsFile == "" {
			errors = append(errors, "LEDGER_SHEETS_CREDENTIALS_FILE is required when a spreadsheet id is set")
		} else if _, err := os.Stat(c.SheetsCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.SheetsCredentialsFile))
		}
	}

	if c.ExportBackend != "sheets" && c.ExportBackend != "memory" {
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be 'sheets' or 'memory'", c.ExportBackend))
	}
	if c.ExportRetryAttempts < 1 || c.ExportRetryAttempts > 20 {
		errors = append(errors, fmt.Sprintf("invalid export retry attempts %d: must be between 1 and 20", c.ExportRetryAttempts))
	}

	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be DEBUG, INFO, WARN or ERROR", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
