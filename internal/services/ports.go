package services

import (
	"context"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// LedgerStore is the persistence the import pipeline and review flow need.
// *storage.SQLiteRepository implements it.
type LedgerStore interface {
	AppendTransactions(ctx context.Context, rows []core.Transaction) ([]int64, error)
	DedupKeys(ctx context.Context) ([]core.DedupKey, error)
	QueryUnprocessed(ctx context.Context) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	UpdateCategory(ctx context.Context, newCategory string, key core.NaturalKey) error
	UpdateProcessingStatus(ctx context.Context, key core.NaturalKey, status core.ProcessedStatus) error
	FlagTransaction(ctx context.Context, key core.NaturalKey) error
	UpdateCategoryByID(ctx context.Context, id int64, newCategory string) error
	SetProcessedByID(ctx context.Context, id int64, status core.ProcessedStatus) error
	FlagByID(ctx context.Context, id int64, flagged bool) error
	ListCategories(ctx context.Context) ([]string, error)
	CountByStatus(ctx context.Context) (storage.StatusCounts, error)
}

// GoalStore persists budget goals and answers progress queries.
type GoalStore interface {
	InsertGoal(ctx context.Context, g core.BudgetGoal) (int64, error)
	UpdateGoal(ctx context.Context, g core.BudgetGoal) error
	// EditGoal is UpdateGoal that leaves the stored Active untouched.
	EditGoal(ctx context.Context, g core.BudgetGoal) error
	DeleteGoal(ctx context.Context, id int64) error
	ListGoals(ctx context.Context, activeOnly bool) ([]core.BudgetGoal, error)
	ProgressForMonth(ctx context.Context, monthYear string) ([]core.BudgetProgress, error)
	ProgressHistory(ctx context.Context) ([]core.BudgetProgress, error)
	// DataVersion changes whenever any writer commits to the ledger or goals.
	DataVersion(ctx context.Context) (int64, error)
}

// EventPublisher announces ledger changes. *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// Invalidator drops derived data after a write.
type Invalidator interface {
	Invalidate()
}

var (
	_ LedgerStore    = (*storage.SQLiteRepository)(nil)
	_ GoalStore      = (*storage.SQLiteRepository)(nil)
	_ EventPublisher = (*amqp.Client)(nil)
)
