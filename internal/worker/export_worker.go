package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/avast/retry-go"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/sheets"
)

// ProgressSource computes budget progress from the ledger.
type ProgressSource interface {
	ProgressForMonth(ctx context.Context, monthYear string) ([]core.BudgetProgress, error)
	ProgressHistory(ctx context.Context) ([]core.BudgetProgress, error)
}

// Options tunes export retries.
type Options struct {
	Attempts uint
	Delay    time.Duration
	// RetryIf selects which exporter errors are retried; nil retries all of them.
	RetryIf func(error) bool
	Now     func() time.Time
}

// ExportWorker writes budget progress tables to a spreadsheet when the ledger changes.
type ExportWorker struct {
	progress ProgressSource
	exporter sheets.ProgressExporter
	opts     Options
}

func NewExportWorker(progress ProgressSource, exporter sheets.ProgressExporter, opts Options) *ExportWorker {
	if opts.Attempts == 0 {
		opts.Attempts = 5
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.RetryIf == nil {
		opts.RetryIf = func(error) bool { return true }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ExportWorker{progress: progress, exporter: exporter, opts: opts}
}

// HandleEvent exports the month named by the event, or every month when the event has none.
func (w *ExportWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", event.Kind,
		"batch_id", event.BatchID,
		"month", event.Month,
		"count", event.Count)

	if event.Month != "" {
		return w.ExportMonth(ctx, event.Month)
	}
	return w.ExportAll(ctx)
}

// ExportMonth recomputes one month and writes it.
func (w *ExportWorker) ExportMonth(ctx context.Context, month string) error {
	rows, err := w.progress.ProgressForMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("progress for %s: %w", month, err)
	}
	return w.export(ctx, month, rows)
}

// ExportAll writes every month with active goals, plus the current month.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	history, err := w.progress.ProgressHistory(ctx)
	if err != nil {
		return fmt.Errorf("progress history: %w", err)
	}

	byMonth := map[string][]core.BudgetProgress{
		w.opts.Now().Format(core.MonthLayout): {},
	}
	for _, p := range history {
		byMonth[p.MonthYear] = append(byMonth[p.MonthYear], p)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	successCount, errorCount := 0, 0
	var firstErr error
	for _, m := range months {
		if err := w.export(ctx, m, byMonth[m]); err != nil {
			slog.ErrorContext(ctx, "Failed to export month", "month", m, "error", err)
			errorCount++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Full export completed",
		"total", len(months),
		"exported", successCount,
		"errors", errorCount)
	return firstErr
}

// StartupExport refreshes the current month so the sheet is correct after downtime.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	return w.ExportMonth(ctx, w.opts.Now().Format(core.MonthLayout))
}

func (w *ExportWorker) export(ctx context.Context, month string, rows []core.BudgetProgress) error {
	var ref string
	err := retry.Do(
		func() error {
			var err error
			ref, err = w.exporter.ExportProgress(ctx, month, rows)
			return err
		},
		retry.RetryIf(w.opts.RetryIf),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(ctx, "Export failed, will retry", "month", month, "attempt", n+1, "error", err)
		}),
		retry.Attempts(w.opts.Attempts),
		retry.Delay(w.opts.Delay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("export %s: %w", month, err)
	}

	slog.InfoContext(ctx, "Successfully exported progress",
		"month", month,
		"rows", len(rows),
		"sheets_ref", ref)
	return nil
}
