package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthForOffset returns the YYYY-MM of the calendar month that is offset
// months away from the month containing now. Negative offsets go back.
func MonthForOffset(now time.Time, offset int) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, offset, 0).Format(MonthLayout)
}

// NewBudgetProgress derives Difference from goal and actual.
func NewBudgetProgress(category, monthYear string, goal, actual decimal.Decimal) BudgetProgress {
	return BudgetProgress{
		Goal:       goal,
		Actual:     actual,
		Difference: actual.Sub(goal),
		Category:   category,
		MonthYear:  monthYear,
	}
}

// ProgressTotals sums goal, actual and difference over a month's rows.
func ProgressTotals(rows []BudgetProgress) (goal, actual, difference decimal.Decimal) {
	for _, p := range rows {
		goal = goal.Add(p.Goal)
		actual = actual.Add(p.Actual)
		difference = difference.Add(p.Difference)
	}
	return goal, actual, difference
}
