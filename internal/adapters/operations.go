// Package adapters exposes the ledger services through a flat operation set
// that reports success as a bool and failures as empty results. Errors are
// logged here and go no further.
package adapters

import (
	"context"
	"errors"
	"io"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// Operations is the front door used by the CLI and the HTTP API.
type Operations struct {
	imports *services.ImportService
	ledger  *services.LedgerService
	budget  *services.BudgetService
	logger  *log.Logger
	sl      *log.StructuredLogger
}

func NewOperations(imports *services.ImportService, ledger *services.LedgerService, budget *services.BudgetService, logger *log.Logger) *Operations {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Operations{
		imports: imports,
		ledger:  ledger,
		budget:  budget,
		logger:  logger,
		sl:      log.NewStructuredLogger(logger),
	}
}

func (o *Operations) fail(ctx context.Context, msg, component, op string, err error, fields log.LogFields) {
	if fields == nil {
		fields = log.NewFields()
	}
	o.sl.LogError(ctx, msg, err, component, op, fields.WithErrorType(errorType(err)))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrNoMatchingRow), errors.Is(err, core.ErrTableNotYetCreated):
		return log.ErrorTypeNotFound
	case errors.Is(err, core.ErrAmbiguousMatch):
		return log.ErrorTypeConflict
	case errors.Is(err, core.ErrStoreWrite):
		return log.ErrorTypeDatabase
	case errors.Is(err, core.ErrEmptyCategory), errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrMalformedDate):
		return log.ErrorTypeValidation
	default:
		return log.ErrorTypeInternal
	}
}

// Import runs the statement at path through the import pipeline and returns
// the full report.
func (o *Operations) Import(ctx context.Context, path string) (services.ImportResult, bool) {
	res, err := o.imports.ImportFile(ctx, path)
	if err != nil {
		o.fail(ctx, "Statement import failed", log.ComponentImport, log.OpImport, err,
			log.NewFields().WithImport(res.BatchID, path, res.Read, 0, len(res.Malformed)))
		return res, false
	}
	o.sl.LogImportCompleted(ctx, res.BatchID, res.Source, res.Read, res.Imported, len(res.Malformed))
	return res, true
}

// ImportReader imports a statement streamed from r, e.g. an HTTP upload.
// source names the statement in logs and the import report.
func (o *Operations) ImportReader(ctx context.Context, source string, r io.Reader) (services.ImportResult, bool) {
	res, err := o.imports.Import(ctx, source, r)
	if err != nil {
		o.fail(ctx, "Statement import failed", log.ComponentImport, log.OpImport, err,
			log.NewFields().WithImport(res.BatchID, source, res.Read, 0, len(res.Malformed)))
		return res, false
	}
	o.sl.LogImportCompleted(ctx, res.BatchID, res.Source, res.Read, res.Imported, len(res.Malformed))
	return res, true
}

// ImportFile reports whether the statement at path was imported.
func (o *Operations) ImportFile(ctx context.Context, path string) bool {
	_, ok := o.Import(ctx, path)
	return ok
}

func (o *Operations) QueryUnprocessed(ctx context.Context) []core.Transaction {
	rows, err := o.ledger.Unprocessed(ctx)
	if err != nil {
		o.fail(ctx, "Query unprocessed failed", log.ComponentLedger, log.OpRead, err, nil)
		return []core.Transaction{}
	}
	if rows == nil {
		return []core.Transaction{}
	}
	return rows
}

func (o *Operations) UpdateCategory(ctx context.Context, newCategory string, key core.NaturalKey) bool {
	if err := o.ledger.UpdateCategory(ctx, newCategory, key); err != nil {
		o.fail(ctx, "Category update failed", log.ComponentLedger, log.OpUpdate, err,
			log.NewFields().WithTransaction(0, key.Description, newCategory))
		return false
	}
	return true
}

func (o *Operations) UpdateProcessingStatus(ctx context.Context, key core.NaturalKey, status core.ProcessedStatus) bool {
	if err := o.ledger.UpdateProcessingStatus(ctx, key, status); err != nil {
		o.fail(ctx, "Processing status update failed", log.ComponentLedger, log.OpUpdate, err,
			log.NewFields().WithTransaction(0, key.Description, key.Category))
		return false
	}
	return true
}

func (o *Operations) FlagTransaction(ctx context.Context, key core.NaturalKey) bool {
	if err := o.ledger.FlagTransaction(ctx, key); err != nil {
		o.fail(ctx, "Flag failed", log.ComponentLedger, log.OpFlag, err,
			log.NewFields().WithTransaction(0, key.Description, key.Category))
		return false
	}
	return true
}

func (o *Operations) UpdateCategoryByID(ctx context.Context, id int64, newCategory string) bool {
	if err := o.ledger.UpdateCategoryByID(ctx, id, newCategory); err != nil {
		o.fail(ctx, "Category update failed", log.ComponentLedger, log.OpUpdate, err,
			log.NewFields().WithTransaction(id, "", newCategory))
		return false
	}
	return true
}

func (o *Operations) SetProcessedByID(ctx context.Context, id int64, status core.ProcessedStatus) bool {
	if err := o.ledger.SetProcessedByID(ctx, id, status); err != nil {
		o.fail(ctx, "Processing status update failed", log.ComponentLedger, log.OpUpdate, err,
			log.NewFields().WithTransaction(id, "", ""))
		return false
	}
	return true
}

func (o *Operations) FlagByID(ctx context.Context, id int64, flagged bool) bool {
	if err := o.ledger.FlagByID(ctx, id, flagged); err != nil {
		o.fail(ctx, "Flag failed", log.ComponentLedger, log.OpFlag, err,
			log.NewFields().WithTransaction(id, "", ""))
		return false
	}
	return true
}

// Transaction returns the row with id, or false when it cannot be loaded.
func (o *Operations) Transaction(ctx context.Context, id int64) (core.Transaction, bool) {
	tx, err := o.ledger.Transaction(ctx, id)
	if err != nil {
		o.fail(ctx, "Transaction lookup failed", log.ComponentLedger, log.OpRead, err,
			log.NewFields().WithTransaction(id, "", ""))
		return core.Transaction{}, false
	}
	return tx, true
}

func (o *Operations) Categories(ctx context.Context) []string {
	categories, err := o.ledger.Categories(ctx)
	if err != nil {
		o.fail(ctx, "List categories failed", log.ComponentLedger, log.OpList, err, nil)
		return []string{}
	}
	if categories == nil {
		return []string{}
	}
	return categories
}

// Status returns processed and unprocessed counts; both are zero on failure.
func (o *Operations) Status(ctx context.Context) (processed, unprocessed int64) {
	counts, err := o.ledger.Status(ctx)
	if err != nil {
		o.fail(ctx, "Status counts failed", log.ComponentLedger, log.OpRead, err, nil)
		return 0, 0
	}
	return counts.Processed, counts.Unprocessed
}

func (o *Operations) ListGoals(ctx context.Context, activeOnly bool) []core.BudgetGoal {
	goals, err := o.budget.ListGoals(ctx, activeOnly)
	if err != nil {
		o.fail(ctx, "List goals failed", log.ComponentBudget, log.OpList, err, nil)
		return []core.BudgetGoal{}
	}
	if goals == nil {
		return []core.BudgetGoal{}
	}
	return goals
}

// SaveGoal adds a goal and reports the new id; id is 0 when ok is false.
func (o *Operations) SaveGoal(ctx context.Context, category string, goal decimal.Decimal, active bool) (int64, bool) {
	id, err := o.budget.SaveGoal(ctx, category, goal, active)
	if err != nil {
		o.fail(ctx, "Goal insert failed", log.ComponentBudget, log.OpCreate, err,
			log.NewFields().WithGoal(0, category))
		return 0, false
	}
	return id, true
}

func (o *Operations) UpdateGoal(ctx context.Context, id int64, category string, goal decimal.Decimal, active bool) bool {
	if err := o.budget.UpdateGoal(ctx, id, category, goal, active); err != nil {
		o.fail(ctx, "Goal update failed", log.ComponentBudget, log.OpUpdate, err,
			log.NewFields().WithGoal(id, category))
		return false
	}
	return true
}

// EditGoal updates category and amount, keeping the goal's active flag.
func (o *Operations) EditGoal(ctx context.Context, id int64, category string, goal decimal.Decimal) bool {
	if err := o.budget.EditGoal(ctx, id, category, goal); err != nil {
		o.fail(ctx, "Goal edit failed", log.ComponentBudget, log.OpUpdate, err,
			log.NewFields().WithGoal(id, category))
		return false
	}
	return true
}

func (o *Operations) DeleteGoal(ctx context.Context, id int64) bool {
	if err := o.budget.DeleteGoal(ctx, id); err != nil {
		o.fail(ctx, "Goal delete failed", log.ComponentBudget, log.OpDelete, err,
			log.NewFields().WithGoal(id, ""))
		return false
	}
	return true
}

// MonthForOffset names the month ProgressForOffset(n) reports on.
func (o *Operations) MonthForOffset(n int) string {
	return o.budget.MonthForOffset(n)
}

func (o *Operations) ProgressForOffset(ctx context.Context, n int) []core.BudgetProgress {
	rows, err := o.budget.ProgressForOffset(ctx, n)
	if err != nil {
		o.fail(ctx, "Progress query failed", log.ComponentBudget, log.OpProgress, err,
			log.NewFields().WithOperation(log.OpProgress))
		return []core.BudgetProgress{}
	}
	if rows == nil {
		return []core.BudgetProgress{}
	}
	return rows
}

func (o *Operations) ProgressForMonth(ctx context.Context, monthYear string) []core.BudgetProgress {
	rows, err := o.budget.ProgressForMonth(ctx, monthYear)
	if err != nil {
		o.fail(ctx, "Progress query failed", log.ComponentBudget, log.OpProgress, err, nil)
		return []core.BudgetProgress{}
	}
	if rows == nil {
		return []core.BudgetProgress{}
	}
	return rows
}

func (o *Operations) ProgressHistory(ctx context.Context) []core.BudgetProgress {
	rows, err := o.budget.ProgressHistory(ctx)
	if err != nil {
		o.fail(ctx, "Progress history failed", log.ComponentBudget, log.OpProgress, err, nil)
		return []core.BudgetProgress{}
	}
	if rows == nil {
		return []core.BudgetProgress{}
	}
	return rows
}
