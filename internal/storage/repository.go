package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ledger/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the ledger and budget goal store. Tables are created on
// the first write; reads against a database that has never been written to
// return empty results.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	dbPath  string

	schemaMu    sync.Mutex
	schemaReady bool
}

// StatusCounts reports how many ledger rows are in each processed state.
type StatusCounts struct {
	Processed   int64
	Unprocessed int64
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		dbPath:  dbPath,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database file can be reached.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureSchema runs the migrations once per repository. A failed attempt is
// retried on the next write.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if r.schemaReady {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := RunMigrations(r.dbPath); err != nil {
		return err
	}
	r.schemaReady = true
	slog.InfoContext(ctx, "Ledger schema ready", "path", r.dbPath)
	return nil
}

// withTx runs fn inside one transaction. The transaction commits only when fn
// returns nil and is rolled back on every other path.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// classifyReadErr maps a missing table to ErrTableNotYetCreated.
func classifyReadErr(err error) error {
	if isNoSuchTable(err) {
		return fmt.Errorf("%w: %v", core.ErrTableNotYetCreated, err)
	}
	return err
}

// AppendTransactions inserts rows as one all-or-nothing write and returns the
// ids assigned to them in order.
func (r *SQLiteRepository) AppendTransactions(ctx context.Context, rows []core.Transaction) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("append transactions: %w: %w", core.ErrStoreWrite, err)
	}

	ids := make([]int64, 0, len(rows))
	err := r.withTx(ctx, func(q *Queries) error {
		for _, t := range rows {
			id, err := q.InsertTransaction(ctx, toInsertParams(t))
			if err != nil {
				return fmt.Errorf("insert %s %q: %w", t.PostedDate, t.Description, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append transactions: %w: %w", core.ErrStoreWrite, err)
	}

	slog.InfoContext(ctx, "Transactions appended to ledger", "count", len(ids), "batch_id", rows[0].BatchID)
	return ids, nil
}

// DedupKeys returns the (Description, PostedDate) of every stored row in
// insertion order.
func (r *SQLiteRepository) DedupKeys(ctx context.Context) ([]core.DedupKey, error) {
	rows, err := r.queries.ListDedupKeys(ctx)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list dedup keys: %w", err)
	}

	keys := make([]core.DedupKey, len(rows))
	for i, k := range rows {
		keys[i] = core.DedupKey{Description: k.Description, PostedDate: k.PostedDate}
	}
	return keys, nil
}

// QueryUnprocessed returns rows still awaiting review, newest first.
func (r *SQLiteRepository) QueryUnprocessed(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListUnprocessed(ctx)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode transaction %d: %w", row.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTransaction loads a single ledger row.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNoMatchingRow)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, classifyReadErr(err))
	}
	return fromRow(row)
}

// UpdateCategory sets the category of the row matching key and marks it processed.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, newCategory string, key core.NaturalKey) error {
	return r.mutateByKey(ctx, "update category", key, func(q *Queries, id int64) (int64, error) {
		return q.UpdateCategory(ctx, id, newCategory)
	})
}

// UpdateProcessingStatus sets the processed state of the row matching key,
// including its Flagged value.
func (r *SQLiteRepository) UpdateProcessingStatus(ctx context.Context, key core.NaturalKey, status core.ProcessedStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update processing status: %w: %q", core.ErrInvalidStatus, status)
	}
	key.MatchFlagged = true
	return r.mutateByKey(ctx, "update processing status", key, func(q *Queries, id int64) (int64, error) {
		return q.UpdateProcessed(ctx, id, string(status))
	})
}

// FlagTransaction marks the row matching key as flagged.
func (r *SQLiteRepository) FlagTransaction(ctx context.Context, key core.NaturalKey) error {
	return r.mutateByKey(ctx, "flag transaction", key, func(q *Queries, id int64) (int64, error) {
		return q.UpdateFlagged(ctx, id, string(core.FlagFlagged))
	})
}

func (r *SQLiteRepository) UpdateCategoryByID(ctx context.Context, id int64, newCategory string) error {
	return r.mutateByID(ctx, "update category", id, func(q *Queries) (int64, error) {
		return q.UpdateCategory(ctx, id, newCategory)
	})
}

func (r *SQLiteRepository) SetProcessedByID(ctx context.Context, id int64, status core.ProcessedStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set processed: %w: %q", core.ErrInvalidStatus, status)
	}
	return r.mutateByID(ctx, "set processed", id, func(q *Queries) (int64, error) {
		return q.UpdateProcessed(ctx, id, string(status))
	})
}

// FlagByID sets or clears the flag on a row.
func (r *SQLiteRepository) FlagByID(ctx context.Context, id int64, flagged bool) error {
	flag := core.FlagNone
	if flagged {
		flag = core.FlagFlagged
	}
	return r.mutateByID(ctx, "flag", id, func(q *Queries) (int64, error) {
		return q.UpdateFlagged(ctx, id, string(flag))
	})
}

// mutateByKey resolves key to exactly one row and applies update to it in the
// same transaction.
func (r *SQLiteRepository) mutateByKey(ctx context.Context, op string, key core.NaturalKey, update func(q *Queries, id int64) (int64, error)) error {
	params := FindByNaturalKeyParams{
		Category:     key.Category,
		Description:  key.Description,
		AmountCents:  core.ToCents(key.Amount),
		BalanceCents: core.ToCents(key.Balance),
	}
	if key.MatchFlagged {
		params.Flagged = sql.NullString{String: string(key.Flagged), Valid: true}
	}

	var matched int64
	err := r.withTx(ctx, func(q *Queries) error {
		ids, err := q.FindByNaturalKey(ctx, params)
		if err != nil {
			return classifyReadErr(err)
		}
		switch len(ids) {
		case 0:
			return core.ErrNoMatchingRow
		case 1:
		default:
			return core.ErrAmbiguousMatch
		}
		matched = ids[0]
		_, err = update(q, matched)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	slog.InfoContext(ctx, "Ledger row updated", "operation", op, "id", matched)
	return nil
}

func (r *SQLiteRepository) mutateByID(ctx context.Context, op string, id int64, update func(q *Queries) (int64, error)) error {
	err := r.withTx(ctx, func(q *Queries) error {
		n, err := update(q)
		if err != nil {
			return classifyReadErr(err)
		}
		if n == 0 {
			return core.ErrNoMatchingRow
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}

	slog.InfoContext(ctx, "Ledger row updated", "operation", op, "id", id)
	return nil
}

// ListCategories returns the distinct non-empty categories in the ledger.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := r.queries.ListCategories(ctx)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (StatusCounts, error) {
	counts, err := r.queries.CountByProcessed(ctx)
	if err != nil {
		if isNoSuchTable(err) {
			return StatusCounts{}, nil
		}
		return StatusCounts{}, fmt.Errorf("count by status: %w", err)
	}
	return StatusCounts{
		Processed:   counts[string(core.ProcessedYes)],
		Unprocessed: counts[string(core.ProcessedNo)],
	}, nil
}

// DataVersion returns a counter that grows with every committed change to the
// ledger or goal tables, whichever connection or process made it. A database
// without the counter yet reports ErrTableNotYetCreated.
func (r *SQLiteRepository) DataVersion(ctx context.Context) (int64, error) {
	version, err := r.queries.GetDataVersion(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("data version: %w", core.ErrTableNotYetCreated)
		}
		return 0, fmt.Errorf("data version: %w", classifyReadErr(err))
	}
	return version, nil
}

// InsertGoal stores a new goal and deactivates every other goal of the same
// category in the same transaction. It returns the new goal id.
func (r *SQLiteRepository) InsertGoal(ctx context.Context, g core.BudgetGoal) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("insert goal: %w", err)
	}
	if err := g.DateAdded.Validate(); err != nil {
		return 0, fmt.Errorf("insert goal: date added: %w", err)
	}
	if err := r.EnsureSchema(ctx); err != nil {
		return 0, fmt.Errorf("insert goal: %w: %w", core.ErrStoreWrite, err)
	}

	var id int64
	err := r.withTx(ctx, func(q *Queries) error {
		var err error
		id, err = q.InsertBudgetGoal(ctx, InsertBudgetGoalParams{
			Category:  g.Category,
			GoalCents: core.ToCents(g.Goal),
			Active:    boolToInt(g.Active),
			DateAdded: g.DateAdded.String(),
		})
		if err != nil {
			return err
		}
		_, err = q.DeactivateOtherGoals(ctx, g.Category, id)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert goal: %w: %w", core.ErrStoreWrite, err)
	}

	slog.InfoContext(ctx, "Budget goal saved", "id", id, "category", g.Category, "goal", g.Goal.StringFixed(2))
	return id, nil
}

// UpdateGoal overwrites the goal with g.ID in place. Other goals of the
// category are left untouched.
func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.BudgetGoal) error {
	return r.updateGoal(ctx, "update goal", g, (*Queries).UpdateBudgetGoal)
}

// EditGoal rewrites category, amount and modified date, keeping the stored
// active flag.
func (r *SQLiteRepository) EditGoal(ctx context.Context, g core.BudgetGoal) error {
	return r.updateGoal(ctx, "edit goal", g, (*Queries).EditBudgetGoal)
}

func (r *SQLiteRepository) updateGoal(ctx context.Context, op string, g core.BudgetGoal,
	exec func(*Queries, context.Context, UpdateBudgetGoalParams) (int64, error)) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err := r.withTx(ctx, func(q *Queries) error {
		n, err := exec(q, ctx, UpdateBudgetGoalParams{
			ID:           g.ID,
			Category:     g.Category,
			GoalCents:    core.ToCents(g.Goal),
			Active:       boolToInt(g.Active),
			DateModified: g.DateModified.String(),
		})
		if err != nil {
			return classifyReadErr(err)
		}
		if n == 0 {
			return core.ErrNoMatchingRow
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, g.ID, err)
	}

	slog.InfoContext(ctx, "Budget goal updated", "operation", op, "id", g.ID, "category", g.Category)
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(q *Queries) error {
		n, err := q.DeleteBudgetGoal(ctx, id)
		if err != nil {
			return classifyReadErr(err)
		}
		if n == 0 {
			return core.ErrNoMatchingRow
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete goal %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Budget goal deleted", "id", id)
	return nil
}

// ListGoals returns goals ordered by category with active goals first.
func (r *SQLiteRepository) ListGoals(ctx context.Context, activeOnly bool) ([]core.BudgetGoal, error) {
	rows, err := r.queries.ListBudgetGoals(ctx, activeOnly)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list goals: %w", err)
	}

	goals := make([]core.BudgetGoal, 0, len(rows))
	for _, row := range rows {
		g, err := goalFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode goal %d: %w", row.ID, err)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

// ProgressForMonth aggregates processed spending against active goals for
// one YYYY-MM month.
func (r *SQLiteRepository) ProgressForMonth(ctx context.Context, monthYear string) ([]core.BudgetProgress, error) {
	rows, err := r.queries.ProgressForMonth(ctx, monthYear)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress for %s: %w", monthYear, err)
	}
	return progressFromRows(rows), nil
}

// ProgressHistory aggregates every month that has processed spending.
func (r *SQLiteRepository) ProgressHistory(ctx context.Context) ([]core.BudgetProgress, error) {
	rows, err := r.queries.ProgressHistory(ctx)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("progress history: %w", err)
	}
	return progressFromRows(rows), nil
}

func progressFromRows(rows []ProgressRow) []core.BudgetProgress {
	out := make([]core.BudgetProgress, len(rows))
	for i, row := range rows {
		out[i] = core.NewBudgetProgress(row.Category, row.MonthYear,
			core.FromCents(row.GoalCents), core.FromCents(row.ActualCents))
	}
	return out
}

func toInsertParams(t core.Transaction) InsertTransactionParams {
	processed := t.Processed
	if processed == "" {
		processed = core.ProcessedNo
	}
	return InsertTransactionParams{
		BatchID:       t.BatchID,
		AccountNumber: t.AccountNumber,
		AccountType:   t.AccountType,
		PostedDate:    t.PostedDate.String(),
		AmountCents:   core.ToCents(t.Amount),
		Description:   t.Description,
		CheckNumber:   t.CheckNumber,
		Category:      t.Category,
		BalanceCents:  core.ToCents(t.Balance),
		Labels:        t.Labels,
		Note:          t.Note,
		Processed:     string(processed),
		Flagged:       string(t.Flagged),
	}
}

func fromRow(row Transaction) (core.Transaction, error) {
	posted, err := core.ParseDate(row.PostedDate)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", core.ErrMalformedDate, err)
	}
	return core.Transaction{
		ID:            row.ID,
		BatchID:       row.BatchID,
		AccountNumber: row.AccountNumber,
		AccountType:   row.AccountType,
		PostedDate:    posted,
		Amount:        core.FromCents(row.AmountCents),
		Description:   row.Description,
		CheckNumber:   row.CheckNumber,
		Category:      row.Category,
		Balance:       core.FromCents(row.BalanceCents),
		Labels:        row.Labels,
		Note:          row.Note,
		Processed:     core.ProcessedStatus(row.Processed),
		Flagged:       core.FlagStatus(row.Flagged),
	}, nil
}

func goalFromRow(row BudgetGoal) (core.BudgetGoal, error) {
	added, err := core.ParseDate(row.DateAdded)
	if err != nil {
		return core.BudgetGoal{}, fmt.Errorf("date added: %w", err)
	}
	g := core.BudgetGoal{
		ID:        row.ID,
		Category:  row.Category,
		Goal:      core.FromCents(row.GoalCents),
		Active:    row.Active != 0,
		DateAdded: added,
	}
	if row.DateModified.Valid && row.DateModified.String != "" {
		modified, err := core.ParseDate(row.DateModified.String)
		if err != nil {
			return core.BudgetGoal{}, fmt.Errorf("date modified: %w", err)
		}
		g.DateModified = modified
	}
	return g, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
