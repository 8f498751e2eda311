package google

import (
	"fmt"
	"strings"

	"ledger/internal/core"
)

var progressHeader = []string{"Month", "Category", "Goal", "Actual", "Difference"}

// progressValues renders rows as a values matrix with a header row.
func progressValues(rows []core.BudgetProgress) [][]interface{} {
	header := make([]interface{}, len(progressHeader))
	for i, h := range progressHeader {
		header[i] = h
	}
	values := [][]interface{}{header}
	for _, p := range rows {
		values = append(values, []interface{}{
			p.MonthYear,
			p.Category,
			core.FormatUSD(p.Goal),
			core.FormatUSD(p.Actual),
			core.FormatUSD(p.Difference),
		})
	}
	return values
}

// parseProgress converts a values matrix (as returned by Sheets API) back into
// progress rows. An empty sheet yields no rows; a sheet with an unexpected
// header is an error so an export never overwrites foreign data.
func parseProgress(values [][]interface{}) ([]core.BudgetProgress, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	cols := make([]int, len(progressHeader))
	var missing []string
	for i, h := range progressHeader {
		cols[i] = indexOf(headers, h)
		if cols[i] == -1 {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected progress header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var out []core.BudgetProgress
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		month := safeGet(row, cols[0])
		category := safeGet(row, cols[1])
		if month == "" && category == "" {
			continue
		}
		goal, err := core.ParseCurrency(safeGet(row, cols[2]))
		if err != nil {
			return nil, fmt.Errorf("row %d goal: %w", i+1, err)
		}
		actual, err := core.ParseCurrency(safeGet(row, cols[3]))
		if err != nil {
			return nil, fmt.Errorf("row %d actual: %w", i+1, err)
		}
		diff, err := core.ParseCurrency(safeGet(row, cols[4]))
		if err != nil {
			return nil, fmt.Errorf("row %d difference: %w", i+1, err)
		}
		out = append(out, core.BudgetProgress{
			MonthYear:  month,
			Category:   category,
			Goal:       goal,
			Actual:     actual,
			Difference: diff,
		})
	}
	return out, nil
}
