package storage

import (
	"context"
	"database/sql"
)

const insertTransaction = `
INSERT INTO transactions (
    batch_id, account_number, account_type, posted_date, amount_cents, description,
    check_number, category, balance_cents, labels, note, processed, flagged
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertTransactionParams struct {
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

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction,
		arg.BatchID,
		arg.AccountNumber,
		arg.AccountType,
		arg.PostedDate,
		arg.AmountCents,
		arg.Description,
		arg.CheckNumber,
		arg.Category,
		arg.BalanceCents,
		arg.Labels,
		arg.Note,
		arg.Processed,
		arg.Flagged,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listDedupKeys = `
SELECT description, posted_date FROM transactions ORDER BY id
`

func (q *Queries) ListDedupKeys(ctx context.Context) ([]DedupKeyRow, error) {
	rows, err := q.db.QueryContext(ctx, listDedupKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DedupKeyRow
	for rows.Next() {
		var i DedupKeyRow
		if err := rows.Scan(&i.Description, &i.PostedDate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const transactionColumns = `id, batch_id, account_number, account_type, posted_date, amount_cents,
    description, check_number, category, balance_cents, labels, note, processed, flagged`

func scanTransaction(scan func(dest ...interface{}) error) (Transaction, error) {
	var i Transaction
	err := scan(
		&i.ID,
		&i.BatchID,
		&i.AccountNumber,
		&i.AccountType,
		&i.PostedDate,
		&i.AmountCents,
		&i.Description,
		&i.CheckNumber,
		&i.Category,
		&i.BalanceCents,
		&i.Labels,
		&i.Note,
		&i.Processed,
		&i.Flagged,
	)
	return i, err
}

const listUnprocessed = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE processed = 'No'
ORDER BY posted_date DESC, id
`

func (q *Queries) ListUnprocessed(ctx context.Context) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listUnprocessed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransaction = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	return scanTransaction(row.Scan)
}

const findByNaturalKey = `
SELECT id FROM transactions
WHERE category = ? AND description = ? AND amount_cents = ? AND balance_cents = ?
ORDER BY id
LIMIT 2
`

const findByNaturalKeyFlagged = `
SELECT id FROM transactions
WHERE category = ? AND description = ? AND amount_cents = ? AND balance_cents = ? AND flagged = ?
ORDER BY id
LIMIT 2
`

type FindByNaturalKeyParams struct {
	Category     string
	Description  string
	AmountCents  int64
	BalanceCents int64
	Flagged      sql.NullString
}

// FindByNaturalKey returns at most two matching ids, enough to tell a unique
// match from an ambiguous one.
func (q *Queries) FindByNaturalKey(ctx context.Context, arg FindByNaturalKeyParams) ([]int64, error) {
	query := findByNaturalKey
	args := []interface{}{arg.Category, arg.Description, arg.AmountCents, arg.BalanceCents}
	if arg.Flagged.Valid {
		query = findByNaturalKeyFlagged
		args = append(args, arg.Flagged.String)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

const updateCategory = `
UPDATE transactions SET category = ?, processed = 'Yes' WHERE id = ?
`

func (q *Queries) UpdateCategory(ctx context.Context, id int64, category string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, category, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateProcessed = `
UPDATE transactions SET processed = ? WHERE id = ?
`

func (q *Queries) UpdateProcessed(ctx context.Context, id int64, processed string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProcessed, processed, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateFlagged = `
UPDATE transactions SET flagged = ? WHERE id = ?
`

func (q *Queries) UpdateFlagged(ctx context.Context, id int64, flagged string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateFlagged, flagged, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `
SELECT DISTINCT category FROM transactions WHERE category <> '' ORDER BY category
`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		items = append(items, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countByProcessed = `
SELECT processed, COUNT(*) FROM transactions GROUP BY processed
`

func (q *Queries) CountByProcessed(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countByProcessed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

const getDataVersion = `
SELECT version FROM data_version WHERE id = 1
`

func (q *Queries) GetDataVersion(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getDataVersion)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const insertBudgetGoal = `
INSERT INTO budget_goals (category, goal_cents, active, date_added) VALUES (?, ?, ?, ?)
`

type InsertBudgetGoalParams struct {
	Category  string
	GoalCents int64
	Active    int64
	DateAdded string
}

func (q *Queries) InsertBudgetGoal(ctx context.Context, arg InsertBudgetGoalParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertBudgetGoal, arg.Category, arg.GoalCents, arg.Active, arg.DateAdded)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const deactivateOtherGoals = `
UPDATE budget_goals SET active = 0 WHERE category = ? AND id <> ?
`

func (q *Queries) DeactivateOtherGoals(ctx context.Context, category string, keepID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateOtherGoals, category, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateBudgetGoal = `
UPDATE budget_goals
SET category = ?, goal_cents = ?, active = ?, date_modified = ?
WHERE id = ?
`

type UpdateBudgetGoalParams struct {
	ID           int64
	Category     string
	GoalCents    int64
	Active       int64
	DateModified string
}

func (q *Queries) UpdateBudgetGoal(ctx context.Context, arg UpdateBudgetGoalParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBudgetGoal, arg.Category, arg.GoalCents, arg.Active, arg.DateModified, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const editBudgetGoal = `
UPDATE budget_goals
SET category = ?, goal_cents = ?, date_modified = ?
WHERE id = ?
`

// EditBudgetGoal is UpdateBudgetGoal without touching active.
func (q *Queries) EditBudgetGoal(ctx context.Context, arg UpdateBudgetGoalParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, editBudgetGoal, arg.Category, arg.GoalCents, arg.DateModified, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteBudgetGoal = `
DELETE FROM budget_goals WHERE id = ?
`

func (q *Queries) DeleteBudgetGoal(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBudgetGoal, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listBudgetGoals = `
SELECT id, category, goal_cents, active, date_added, date_modified
FROM budget_goals
WHERE active = 1 OR ? = 0
ORDER BY category, active DESC, id
`

func (q *Queries) ListBudgetGoals(ctx context.Context, activeOnly bool) ([]BudgetGoal, error) {
	flag := 0
	if activeOnly {
		flag = 1
	}
	rows, err := q.db.QueryContext(ctx, listBudgetGoals, flag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetGoal
	for rows.Next() {
		var i BudgetGoal
		if err := rows.Scan(
			&i.ID,
			&i.Category,
			&i.GoalCents,
			&i.Active,
			&i.DateAdded,
			&i.DateModified,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const progressSelect = `
SELECT bg.category, bg.goal_cents, SUM(t.amount_cents), strftime('%Y-%m', t.posted_date) AS month_year
FROM budget_goals bg
JOIN transactions t ON t.category = bg.category
WHERE bg.active = 1 AND t.processed = 'Yes'`

const progressGroup = `
GROUP BY bg.category, bg.goal_cents, month_year
ORDER BY month_year DESC, bg.category
`

const progressForMonth = progressSelect + `
  AND strftime('%Y-%m', t.posted_date) = ?` + progressGroup

const progressHistory = progressSelect + progressGroup

func (q *Queries) ProgressForMonth(ctx context.Context, monthYear string) ([]ProgressRow, error) {
	return q.progress(ctx, progressForMonth, monthYear)
}

func (q *Queries) ProgressHistory(ctx context.Context) ([]ProgressRow, error) {
	return q.progress(ctx, progressHistory)
}

func (q *Queries) progress(ctx context.Context, query string, args ...interface{}) ([]ProgressRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProgressRow
	for rows.Next() {
		var i ProgressRow
		if err := rows.Scan(&i.Category, &i.GoalCents, &i.ActualCents, &i.MonthYear); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
