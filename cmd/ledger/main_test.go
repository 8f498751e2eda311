package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"ledger/internal/adapters"
	"ledger/internal/classify"
	"ledger/internal/core"
	"ledger/internal/dedup"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

const statement = `Posted Date,Description,Amount,Balance,Check Number,Category,Labels,Note
2024-05-20,BP GAS 0042,($200.00),"$1,500.00",,Gas / Fuel,,
2024-05-01,NETFLIX.COM 855-123-4567,($15.49),"$1,820.00",,Entertainment,,
`

func newTestOps(t *testing.T) *adapters.Operations {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	now := func() time.Time { return time.Date(2024, 5, 28, 9, 0, 0, 0, time.UTC) }
	budget := services.NewBudgetService(repo, nil, now, nil)
	ledger := services.NewLedgerService(repo, nil, budget)
	imports := services.NewImportService(repo, dedup.New(core.Date{}), classify.Default(), nil, budget)

	logger := log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	return adapters.NewOperations(imports, ledger, budget, logger)
}

func writeStatement(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "may.csv")
	if err := os.WriteFile(path, []byte(statement), 0o600); err != nil {
		t.Fatalf("write statement: %v", err)
	}
	return path
}

func runCmd(t *testing.T, ops *adapters.Operations, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), ops, args, &out)
	return out.String(), err
}

func TestRunUnknownCommand(t *testing.T) {
	ops := newTestOps(t)

	for _, args := range [][]string{nil, {"frobnicate"}} {
		if _, err := runCmd(t, ops, args...); !errors.Is(err, errUnknownCommand) {
			t.Errorf("run(%v) error = %v, want errUnknownCommand", args, err)
		}
	}
}

func TestRunHelpFlag(t *testing.T) {
	ops := newTestOps(t)

	out, err := runCmd(t, ops, "goal-add", "-h")
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out, "-category") {
		t.Errorf("help output missing flags: %q", out)
	}
}

func TestImportAndReview(t *testing.T) {
	ops := newTestOps(t)
	path := writeStatement(t)

	out, err := runCmd(t, ops, "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 2") {
		t.Errorf("import output = %q", out)
	}

	// a second import of the same file adds nothing
	out, err = runCmd(t, ops, "import", path)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if !strings.Contains(out, "imported 0") {
		t.Errorf("re-import output = %q", out)
	}

	out, err = runCmd(t, ops, "unprocessed")
	if err != nil {
		t.Fatalf("unprocessed: %v", err)
	}
	if !strings.Contains(out, "BP GAS 0042") || !strings.Contains(out, "NETFLIX.COM") {
		t.Errorf("unprocessed output = %q", out)
	}

	out, err = runCmd(t, ops, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "processed: 0") || !strings.Contains(out, "unprocessed: 2") {
		t.Errorf("status output = %q", out)
	}
}

func TestImportMissingFile(t *testing.T) {
	ops := newTestOps(t)

	out, err := runCmd(t, ops, "import", filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(out, "import failed") {
		t.Errorf("output = %q", out)
	}
}

func TestCategorizeAndFlagByID(t *testing.T) {
	ops := newTestOps(t)
	if _, err := runCmd(t, ops, "import", writeStatement(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows := ops.QueryUnprocessed(context.Background())
	if len(rows) != 2 {
		t.Fatalf("unprocessed = %d, want 2", len(rows))
	}
	id := rows[0].ID
	idArg := strconvID(id)

	if _, err := runCmd(t, ops, "categorize", "-id", idArg, "-category", "Transportation"); err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if _, err := runCmd(t, ops, "flag", "-id", idArg); err != nil {
		t.Fatalf("flag: %v", err)
	}

	tx, ok := ops.Transaction(context.Background(), id)
	if !ok {
		t.Fatal("transaction not found")
	}
	if tx.Category != "Transportation" || tx.Processed != core.ProcessedYes || tx.Flagged != core.FlagFlagged {
		t.Errorf("transaction = %+v", tx)
	}

	if _, err := runCmd(t, ops, "categorize", "-id", "9999", "-category", "X"); !errors.Is(err, errFailed) {
		t.Errorf("categorize unknown id error = %v, want errFailed", err)
	}
	if _, err := runCmd(t, ops, "categorize", "-id", idArg); err == nil {
		t.Error("categorize without -category should fail")
	}
}

func TestCategorizeByNaturalKey(t *testing.T) {
	ops := newTestOps(t)
	if _, err := runCmd(t, ops, "import", writeStatement(t)); err != nil {
		t.Fatalf("import: %v", err)
	}

	var netflix core.Transaction
	for _, tx := range ops.QueryUnprocessed(context.Background()) {
		if strings.HasPrefix(tx.Description, "NETFLIX") {
			netflix = tx
		}
	}
	if netflix.ID == 0 {
		t.Fatal("netflix row not imported")
	}

	_, err := runCmd(t, ops, "categorize",
		"-match-category", netflix.Category,
		"-description", netflix.Description,
		"-amount", "-15.49",
		"-balance", "1820.00",
		"-category", "Streaming")
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	tx, _ := ops.Transaction(context.Background(), netflix.ID)
	if tx.Category != "Streaming" {
		t.Errorf("category = %q, want Streaming", tx.Category)
	}

	if _, err := runCmd(t, ops, "categorize", "-description", "NOPE", "-amount", "1", "-balance", "1", "-category", "X"); !errors.Is(err, errFailed) {
		t.Errorf("no match error = %v, want errFailed", err)
	}
	if _, err := runCmd(t, ops, "categorize", "-description", "NOPE", "-amount", "abc", "-balance", "1", "-category", "X"); err == nil {
		t.Error("malformed amount should fail")
	}
}

func TestStatusSet(t *testing.T) {
	ops := newTestOps(t)
	if _, err := runCmd(t, ops, "import", writeStatement(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	id := ops.QueryUnprocessed(context.Background())[0].ID

	if _, err := runCmd(t, ops, "status", "-id", strconvID(id), "-set", "Maybe"); err == nil {
		t.Error("invalid -set value should fail")
	}
	if _, err := runCmd(t, ops, "status", "-id", strconvID(id), "-set", "Yes"); err != nil {
		t.Fatalf("status -set: %v", err)
	}
	out, _ := runCmd(t, ops, "status")
	if !strings.Contains(out, "processed: 1") {
		t.Errorf("status output = %q", out)
	}
}

func TestGoalsAndProgress(t *testing.T) {
	ops := newTestOps(t)
	if _, err := runCmd(t, ops, "import", writeStatement(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	rows := ops.QueryUnprocessed(context.Background())
	for _, tx := range rows {
		if strings.HasPrefix(tx.Description, "BP GAS") {
			if !ops.UpdateCategoryByID(context.Background(), tx.ID, "Gas") {
				t.Fatal("categorize gas row")
			}
		}
	}

	out, err := runCmd(t, ops, "goal-add", "-category", "Gas", "-goal", "$300.00")
	if err != nil {
		t.Fatalf("goal-add: %v", err)
	}
	if !strings.Contains(out, `saved for "Gas"`) {
		t.Errorf("goal-add output = %q", out)
	}
	if _, err := runCmd(t, ops, "goal-add", "-category", "Gas", "-goal", "lots"); err == nil {
		t.Error("malformed goal should fail")
	}

	goals := ops.ListGoals(context.Background(), true)
	if len(goals) != 1 {
		t.Fatalf("active goals = %d, want 1", len(goals))
	}
	out, _ = runCmd(t, ops, "goals", "-active")
	if !strings.Contains(out, "Gas") || !strings.Contains(out, "$300.00") {
		t.Errorf("goals output = %q", out)
	}

	out, err = runCmd(t, ops, "progress")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !strings.Contains(out, "2024-05") || !strings.Contains(out, "($200.00)") {
		t.Errorf("progress output = %q", out)
	}

	out, _ = runCmd(t, ops, "progress", "-offset", "-1")
	if !strings.Contains(out, "Budget progress for 2024-04") {
		t.Errorf("progress -offset output = %q", out)
	}

	out, _ = runCmd(t, ops, "history")
	if !strings.Contains(out, "2024-05") {
		t.Errorf("history output = %q", out)
	}

	goalID := strconvID(goals[0].ID)
	if _, err := runCmd(t, ops, "goal-update", "-id", goalID, "-category", "Gas", "-goal", "250", "-inactive"); err != nil {
		t.Fatalf("goal-update: %v", err)
	}
	if n := len(ops.ListGoals(context.Background(), true)); n != 0 {
		t.Errorf("active goals after deactivation = %d, want 0", n)
	}
	// without -active or -inactive the stored flag is kept
	if _, err := runCmd(t, ops, "goal-update", "-id", goalID, "-category", "Gas", "-goal", "260"); err != nil {
		t.Fatalf("goal-update: %v", err)
	}
	if n := len(ops.ListGoals(context.Background(), true)); n != 0 {
		t.Errorf("plain edit reactivated the goal, active goals = %d", n)
	}
	if _, err := runCmd(t, ops, "goal-update", "-id", goalID, "-category", "Gas", "-goal", "260", "-active", "-inactive"); err == nil {
		t.Error("-active with -inactive should fail")
	}
	if _, err := runCmd(t, ops, "goal-delete", "-id", goalID); err != nil {
		t.Fatalf("goal-delete: %v", err)
	}
	if _, err := runCmd(t, ops, "goal-delete", "-id", goalID); !errors.Is(err, errFailed) {
		t.Errorf("second delete error = %v, want errFailed", err)
	}
	if _, err := runCmd(t, ops, "goal-delete"); err == nil {
		t.Error("goal-delete without -id should fail")
	}
}

func TestCategories(t *testing.T) {
	ops := newTestOps(t)
	if _, err := runCmd(t, ops, "import", writeStatement(t)); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := runCmd(t, ops, "categories")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("expected at least one category")
	}
}

func strconvID(id int64) string {
	return strconv.FormatInt(id, 10)
}
