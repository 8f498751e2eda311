package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
)

const historyCacheKey = "history"

// BudgetService manages goals and answers progress queries for a month chosen
// relative to the injected clock.
//
// Cached progress is keyed by the store's data version, so writes made by
// another process are seen on the next read.
type BudgetService struct {
	store  GoalStore
	cache  cache.Cache[[]core.BudgetProgress]
	now    func() time.Time
	events EventPublisher

	// generation is bumped by Invalidate; a load that straddles it is not cached.
	generation atomic.Uint64
}

// NewBudgetService wires the service. progressCache and events may be nil;
// now defaults to time.Now.
func NewBudgetService(store GoalStore, progressCache cache.Cache[[]core.BudgetProgress], now func() time.Time, events EventPublisher) *BudgetService {
	if now == nil {
		now = time.Now
	}
	return &BudgetService{
		store:  store,
		cache:  progressCache,
		now:    now,
		events: events,
	}
}

// Invalidate drops every cached progress result.
func (s *BudgetService) Invalidate() {
	s.generation.Add(1)
	if s.cache != nil {
		s.cache.Purge()
	}
}

func (s *BudgetService) today() core.Date {
	t := s.now()
	return core.NewDate(t.Year(), int(t.Month()), t.Day())
}

func (s *BudgetService) ListGoals(ctx context.Context, activeOnly bool) ([]core.BudgetGoal, error) {
	goals, err := s.store.ListGoals(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// SaveGoal adds a goal. It becomes the only active goal of its category when
// active. A zero DateAdded is set to today.
func (s *BudgetService) SaveGoal(ctx context.Context, category string, goal decimal.Decimal, active bool) (int64, error) {
	g := core.BudgetGoal{
		Category:  strings.TrimSpace(category),
		Goal:      goal,
		Active:    active,
		DateAdded: s.today(),
	}
	id, err := s.store.InsertGoal(ctx, g)
	if err != nil {
		return 0, err
	}
	s.goalChanged(ctx, id)
	return id, nil
}

// UpdateGoal rewrites a goal in place and stamps DateModified with today.
func (s *BudgetService) UpdateGoal(ctx context.Context, id int64, category string, goal decimal.Decimal, active bool) error {
	return s.writeGoal(ctx, s.store.UpdateGoal, id, category, goal, active)
}

// EditGoal changes a goal's category and amount but keeps its active flag,
// so editing a retired goal does not bring it back.
func (s *BudgetService) EditGoal(ctx context.Context, id int64, category string, goal decimal.Decimal) error {
	return s.writeGoal(ctx, s.store.EditGoal, id, category, goal, false)
}

func (s *BudgetService) writeGoal(ctx context.Context, write func(context.Context, core.BudgetGoal) error,
	id int64, category string, goal decimal.Decimal, active bool) error {
	g := core.BudgetGoal{
		ID:           id,
		Category:     strings.TrimSpace(category),
		Goal:         goal,
		Active:       active,
		DateModified: s.today(),
	}
	if err := write(ctx, g); err != nil {
		return err
	}
	s.goalChanged(ctx, id)
	return nil
}

func (s *BudgetService) DeleteGoal(ctx context.Context, id int64) error {
	if err := s.store.DeleteGoal(ctx, id); err != nil {
		return err
	}
	s.goalChanged(ctx, id)
	return nil
}

// MonthForOffset is the YYYY-MM that offset months from the current month names.
func (s *BudgetService) MonthForOffset(offset int) string {
	return core.MonthForOffset(s.now(), offset)
}

// ProgressForOffset reports progress for the month offset months away from
// now. Negative offsets look back.
func (s *BudgetService) ProgressForOffset(ctx context.Context, offset int) ([]core.BudgetProgress, error) {
	return s.ProgressForMonth(ctx, s.MonthForOffset(offset))
}

func (s *BudgetService) ProgressForCurrentMonth(ctx context.Context) ([]core.BudgetProgress, error) {
	return s.ProgressForOffset(ctx, 0)
}

// ProgressForMonth reports progress for an explicit YYYY-MM month.
func (s *BudgetService) ProgressForMonth(ctx context.Context, monthYear string) ([]core.BudgetProgress, error) {
	if _, err := time.Parse(core.MonthLayout, monthYear); err != nil {
		return nil, fmt.Errorf("progress: invalid month %q: %w", monthYear, err)
	}
	return s.cached(ctx, monthYear, func() ([]core.BudgetProgress, error) {
		return s.store.ProgressForMonth(ctx, monthYear)
	})
}

// ProgressHistory reports progress for every month with reviewed spending.
func (s *BudgetService) ProgressHistory(ctx context.Context) ([]core.BudgetProgress, error) {
	return s.cached(ctx, historyCacheKey, func() ([]core.BudgetProgress, error) {
		return s.store.ProgressHistory(ctx)
	})
}

func (s *BudgetService) cached(ctx context.Context, key string, load func() ([]core.BudgetProgress, error)) ([]core.BudgetProgress, error) {
	if s.cache == nil {
		return s.load(key, load)
	}

	version, err := s.store.DataVersion(ctx)
	if err != nil {
		slog.DebugContext(ctx, "Progress cache bypassed", "key", key, "error", err)
		return s.load(key, load)
	}
	versioned := fmt.Sprintf("%s@%d", key, version)
	if rows, ok := s.cache.Get(versioned); ok {
		slog.DebugContext(ctx, "Progress cache hit", "key", versioned)
		return rows, nil
	}

	gen := s.generation.Load()
	rows, err := s.load(key, load)
	if err != nil {
		return nil, err
	}
	if s.generation.Load() == gen {
		s.cache.Set(versioned, rows)
	}
	return rows, nil
}

func (s *BudgetService) load(key string, load func() ([]core.BudgetProgress, error)) ([]core.BudgetProgress, error) {
	rows, err := load()
	if err != nil {
		return nil, fmt.Errorf("progress %s: %w", key, err)
	}
	return rows, nil
}

func (s *BudgetService) goalChanged(ctx context.Context, id int64) {
	n := notifier{events: s.events, invalidator: s}
	n.changed(ctx, amqp.NewLedgerEvent(amqp.EventGoalChanged, "", "", 1))
	slog.DebugContext(ctx, "Budget goal changed", "goal_id", id)
}
