package storage

import (
	"database/sql"
)

type Transaction struct {
	ID            int64
	BatchID       string
	AccountNumber string
	AccountType   string
	PostedDate    string
	AmountCents   int64
	Description   string
	CheckNumber   string
	Category      string
	BalanceCents  int64
	Labels        string
	Note          string
	Processed     string
	Flagged       string
}

type BudgetGoal struct {
	ID           int64
	Category     string
	GoalCents    int64
	Active       int64
	DateAdded    string
	DateModified sql.NullString
}

type DedupKeyRow struct {
	Description string
	PostedDate  string
}

type ProgressRow struct {
	Category    string
	GoalCents   int64
	ActualCents int64
	MonthYear   string
}
