package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// ProgressExporter writes a budget progress table for one month.
	ProgressExporter interface {
		// ExportProgress replaces the month's block and returns the written range.
		ExportProgress(ctx context.Context, month string, rows []core.BudgetProgress) (rowRef string, err error)
	}

	// ProgressReader reads back a previously exported month.
	ProgressReader interface {
		ReadProgress(ctx context.Context, month string) ([]core.BudgetProgress, error)
	}
)
