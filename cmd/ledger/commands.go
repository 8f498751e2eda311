package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"ledger/internal/adapters"
	"ledger/internal/core"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errFailed         = errors.New("operation failed, see log for details")
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Budget ledger CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  ledger <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  import        Import one or more bank statement CSV files")
	fmt.Fprintln(w, "  unprocessed   List transactions awaiting review")
	fmt.Fprintln(w, "  categorize    Set a transaction's category and mark it processed")
	fmt.Fprintln(w, "  status        Show processed counts, or set a transaction's processed state")
	fmt.Fprintln(w, "  flag          Flag or unflag a transaction")
	fmt.Fprintln(w, "  categories    List known categories")
	fmt.Fprintln(w, "  goals         List budget goals")
	fmt.Fprintln(w, "  goal-add      Add a budget goal (replaces the active goal of the category)")
	fmt.Fprintln(w, "  goal-update   Update a budget goal")
	fmt.Fprintln(w, "  goal-delete   Delete a budget goal")
	fmt.Fprintln(w, "  progress      Show budget progress for a month")
	fmt.Fprintln(w, "  history       Show budget progress for every month")
	fmt.Fprintln(w, "  help          Show this help message")
	fmt.Fprintln(w, "\nRun 'ledger <command> -h' for more information on a command.")
}

// run dispatches args[0] to its subcommand, writing results to out.
func run(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUnknownCommand
	}
	cmds := map[string]func(context.Context, *adapters.Operations, []string, io.Writer) error{
		"import":      runImport,
		"unprocessed": runUnprocessed,
		"categorize":  runCategorize,
		"status":      runStatus,
		"flag":        runFlag,
		"categories":  runCategories,
		"goals":       runGoals,
		"goal-add":    runGoalAdd,
		"goal-update": runGoalUpdate,
		"goal-delete": runGoalDelete,
		"progress":    runProgress,
		"history":     runHistory,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownCommand, args[0])
	}
	return cmd(ctx, ops, args[1:], out)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// keyFlags selects a row either by -id or by its natural key.
type keyFlags struct {
	id          int64
	category    string
	description string
	amount      string
	balance     string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.Int64Var(&k.id, "id", 0, "transaction id")
	fs.StringVar(&k.category, "match-category", "", "current category (natural key)")
	fs.StringVar(&k.description, "description", "", "description (natural key)")
	fs.StringVar(&k.amount, "amount", "", "amount, e.g. -15.49 (natural key)")
	fs.StringVar(&k.balance, "balance", "", "balance after the transaction (natural key)")
}

func (k *keyFlags) naturalKey() (core.NaturalKey, error) {
	if k.description == "" {
		return core.NaturalKey{}, errors.New("either -id or -description/-amount/-balance is required")
	}
	amount, err := core.ParseCurrency(k.amount)
	if err != nil {
		return core.NaturalKey{}, fmt.Errorf("-amount: %w", err)
	}
	balance, err := core.ParseCurrency(k.balance)
	if err != nil {
		return core.NaturalKey{}, fmt.Errorf("-balance: %w", err)
	}
	return core.NaturalKey{
		Category:    k.category,
		Description: k.description,
		Amount:      amount,
		Balance:     balance,
	}, nil
}

func outcome(ok bool, out io.Writer, msg string, args ...any) error {
	if !ok {
		return errFailed
	}
	fmt.Fprintf(out, msg+"\n", args...)
	return nil
}

func runImport(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("import", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: ledger import FILE...")
	}

	failed := 0
	for _, path := range fs.Args() {
		res, ok := ops.Import(ctx, path)
		if !ok {
			fmt.Fprintf(out, "%s: import failed\n", path)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: batch %s, read %d, imported %d, duplicates %d, already stored %d, before cutoff %d, malformed %d\n",
			res.Source, res.BatchID, res.Read, res.Imported, res.Duplicates, res.AlreadyStored, res.BeforeCutoff, len(res.Malformed))
		for _, rowErr := range res.Malformed {
			fmt.Fprintf(out, "  %v\n", rowErr)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, fs.NArg())
	}
	return nil
}

func runUnprocessed(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("unprocessed", out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tBALANCE\tCATEGORY\tFLAG\tDESCRIPTION")
	for _, t := range ops.QueryUnprocessed(ctx) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.PostedDate, core.FormatUSD(t.Amount), core.FormatUSD(t.Balance), t.Category, t.Flagged, t.Description)
	}
	return tw.Flush()
}

func runCategorize(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("categorize", out)
	var key keyFlags
	key.register(fs)
	category := fs.String("category", "", "new category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*category) == "" {
		return errors.New("-category is required")
	}

	if key.id > 0 {
		return outcome(ops.UpdateCategoryByID(ctx, key.id, *category), out, "transaction %d categorized as %q", key.id, *category)
	}
	nk, err := key.naturalKey()
	if err != nil {
		return err
	}
	return outcome(ops.UpdateCategory(ctx, *category, nk), out, "%q categorized as %q", nk.Description, *category)
}

func runStatus(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("status", out)
	var key keyFlags
	key.register(fs)
	set := fs.String("set", "", "processed state to set: Yes or No")
	flagged := fs.Bool("flagged", false, "natural key only: match the row as flagged")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *set == "" {
		processed, unprocessed := ops.Status(ctx)
		fmt.Fprintf(out, "processed: %d\nunprocessed: %d\n", processed, unprocessed)
		return nil
	}

	status := core.ProcessedStatus(*set)
	if !status.Valid() {
		return fmt.Errorf("-set must be %q or %q", core.ProcessedYes, core.ProcessedNo)
	}
	if key.id > 0 {
		return outcome(ops.SetProcessedByID(ctx, key.id, status), out, "transaction %d processed=%s", key.id, status)
	}
	nk, err := key.naturalKey()
	if err != nil {
		return err
	}
	if *flagged {
		nk.Flagged = core.FlagFlagged
	}
	return outcome(ops.UpdateProcessingStatus(ctx, nk, status), out, "%q processed=%s", nk.Description, status)
}

func runFlag(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("flag", out)
	var key keyFlags
	key.register(fs)
	unflag := fs.Bool("clear", false, "remove the flag (requires -id)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if key.id > 0 {
		return outcome(ops.FlagByID(ctx, key.id, !*unflag), out, "transaction %d flagged=%t", key.id, !*unflag)
	}
	if *unflag {
		return errors.New("-clear requires -id")
	}
	nk, err := key.naturalKey()
	if err != nil {
		return err
	}
	return outcome(ops.FlagTransaction(ctx, nk), out, "%q flagged", nk.Description)
}

func runCategories(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("categories", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, c := range ops.Categories(ctx) {
		fmt.Fprintln(out, c)
	}
	return nil
}

func runGoals(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("goals", out)
	activeOnly := fs.Bool("active", false, "only active goals")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tGOAL\tACTIVE\tADDED\tMODIFIED")
	for _, g := range ops.ListGoals(ctx, *activeOnly) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n",
			g.ID, g.Category, core.FormatUSD(g.Goal), g.Active, g.DateAdded, g.DateModified)
	}
	return tw.Flush()
}

// goalFlags are shared by goal-add and goal-update.
type goalFlags struct {
	category string
	goal     string
	inactive bool
}

func (g *goalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.category, "category", "", "budget category")
	fs.StringVar(&g.goal, "goal", "", "monthly goal amount, e.g. 300 or $1,200.00")
	fs.BoolVar(&g.inactive, "inactive", false, "store the goal as inactive")
}

func (g *goalFlags) amount() (decimal.Decimal, error) {
	d, err := core.ParseCurrency(g.goal)
	if err != nil {
		return decimal.Zero, fmt.Errorf("-goal: %w", err)
	}
	return d, nil
}

func runGoalAdd(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("goal-add", out)
	var g goalFlags
	g.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := g.amount()
	if err != nil {
		return err
	}
	id, ok := ops.SaveGoal(ctx, g.category, amount, !g.inactive)
	return outcome(ok, out, "goal %d saved for %q", id, g.category)
}

func runGoalUpdate(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("goal-update", out)
	id := fs.Int64("id", 0, "goal id")
	var g goalFlags
	g.register(fs)
	activate := fs.Bool("active", false, "make the goal active")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id is required")
	}
	if *activate && g.inactive {
		return errors.New("-active and -inactive are mutually exclusive")
	}
	amount, err := g.amount()
	if err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["active"] && !set["inactive"] {
		return outcome(ops.EditGoal(ctx, *id, g.category, amount), out, "goal %d updated", *id)
	}
	return outcome(ops.UpdateGoal(ctx, *id, g.category, amount, !g.inactive), out, "goal %d updated", *id)
}

func runGoalDelete(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("goal-delete", out)
	id := fs.Int64("id", 0, "goal id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("-id is required")
	}
	return outcome(ops.DeleteGoal(ctx, *id), out, "goal %d deleted", *id)
}

func runProgress(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("progress", out)
	offset := fs.Int("offset", 0, "months from the current month, negative looks back")
	month := fs.String("month", "", "explicit month as YYYY-MM (overrides -offset)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rows []core.BudgetProgress
	if *month != "" {
		rows = ops.ProgressForMonth(ctx, *month)
	} else {
		*month = ops.MonthForOffset(*offset)
		rows = ops.ProgressForOffset(ctx, *offset)
	}
	fmt.Fprintf(out, "Budget progress for %s\n", *month)
	return printProgress(out, rows)
}

func runHistory(ctx context.Context, ops *adapters.Operations, args []string, out io.Writer) error {
	fs := newFlagSet("history", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printProgress(out, ops.ProgressHistory(ctx))
}

func printProgress(out io.Writer, rows []core.BudgetProgress) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "MONTH\tCATEGORY\tGOAL\tACTUAL\tDIFFERENCE\t")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			p.MonthYear, p.Category, core.FormatUSD(p.Goal), core.FormatUSD(p.Actual), core.FormatUSD(p.Difference))
	}
	if len(rows) > 0 {
		goal, actual, diff := core.ProgressTotals(rows)
		fmt.Fprintf(tw, "\tTOTAL\t%s\t%s\t%s\t\n", core.FormatUSD(goal), core.FormatUSD(actual), core.FormatUSD(diff))
	}
	return tw.Flush()
}
