package services

import (
	"context"
	"errors"
	"sync"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// memStore is an in-memory LedgerStore and GoalStore.
type memStore struct {
	mu       sync.Mutex
	rows     []core.Transaction
	goals    []core.BudgetGoal
	progress map[string][]core.BudgetProgress
	nextID   int64

	appendErr     error
	progressCalls int
	version       int64
	versionErr    error
	// onProgress runs inside progress loads, before the rows are returned.
	onProgress func()
}

func newMemStore() *memStore {
	return &memStore{progress: make(map[string][]core.BudgetProgress)}
}

func (m *memStore) AppendTransactions(_ context.Context, rows []core.Transaction) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		m.nextID++
		r.ID = m.nextID
		m.rows = append(m.rows, r)
		ids[i] = r.ID
	}
	return ids, nil
}

func (m *memStore) DedupKeys(context.Context) ([]core.DedupKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]core.DedupKey, len(m.rows))
	for i, r := range m.rows {
		keys[i] = r.Key()
	}
	return keys, nil
}

func (m *memStore) QueryUnprocessed(context.Context) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Transaction
	for _, r := range m.rows {
		if r.Processed == core.ProcessedNo {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return core.Transaction{}, core.ErrNoMatchingRow
}

func (m *memStore) byID(id int64, fn func(*core.Transaction)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			fn(&m.rows[i])
			return nil
		}
	}
	return core.ErrNoMatchingRow
}

func (m *memStore) byKey(key core.NaturalKey, fn func(*core.Transaction)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := -1
	for i, r := range m.rows {
		if r.Category == key.Category && r.Description == key.Description &&
			r.Amount.Equal(key.Amount) && r.Balance.Equal(key.Balance) &&
			(!key.MatchFlagged || r.Flagged == key.Flagged) {
			if match >= 0 {
				return core.ErrAmbiguousMatch
			}
			match = i
		}
	}
	if match < 0 {
		return core.ErrNoMatchingRow
	}
	fn(&m.rows[match])
	return nil
}

func (m *memStore) UpdateCategory(_ context.Context, newCategory string, key core.NaturalKey) error {
	return m.byKey(key, func(t *core.Transaction) {
		t.Category = newCategory
		t.Processed = core.ProcessedYes
	})
}

func (m *memStore) UpdateProcessingStatus(_ context.Context, key core.NaturalKey, status core.ProcessedStatus) error {
	key.MatchFlagged = true
	return m.byKey(key, func(t *core.Transaction) { t.Processed = status })
}

func (m *memStore) FlagTransaction(_ context.Context, key core.NaturalKey) error {
	return m.byKey(key, func(t *core.Transaction) { t.Flagged = core.FlagFlagged })
}

func (m *memStore) UpdateCategoryByID(_ context.Context, id int64, newCategory string) error {
	return m.byID(id, func(t *core.Transaction) {
		t.Category = newCategory
		t.Processed = core.ProcessedYes
	})
}

func (m *memStore) SetProcessedByID(_ context.Context, id int64, status core.ProcessedStatus) error {
	return m.byID(id, func(t *core.Transaction) { t.Processed = status })
}

func (m *memStore) FlagByID(_ context.Context, id int64, flagged bool) error {
	return m.byID(id, func(t *core.Transaction) {
		t.Flagged = core.FlagNone
		if flagged {
			t.Flagged = core.FlagFlagged
		}
	})
}

func (m *memStore) ListCategories(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.rows {
		if r.Category != "" && !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out, nil
}

func (m *memStore) CountByStatus(context.Context) (storage.StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c storage.StatusCounts
	for _, r := range m.rows {
		if r.Processed == core.ProcessedYes {
			c.Processed++
		} else {
			c.Unprocessed++
		}
	}
	return c, nil
}

func (m *memStore) InsertGoal(_ context.Context, g core.BudgetGoal) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	g.ID = m.nextID
	for i := range m.goals {
		if m.goals[i].Category == g.Category {
			m.goals[i].Active = false
		}
	}
	m.goals = append(m.goals, g)
	return g.ID, nil
}

func (m *memStore) UpdateGoal(_ context.Context, g core.BudgetGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.goals {
		if m.goals[i].ID == g.ID {
			g.DateAdded = m.goals[i].DateAdded
			m.goals[i] = g
			return nil
		}
	}
	return core.ErrNoMatchingRow
}

func (m *memStore) EditGoal(_ context.Context, g core.BudgetGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.goals {
		if m.goals[i].ID == g.ID {
			m.goals[i].Category = g.Category
			m.goals[i].Goal = g.Goal
			m.goals[i].DateModified = g.DateModified
			return nil
		}
	}
	return core.ErrNoMatchingRow
}

func (m *memStore) DeleteGoal(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.goals {
		if m.goals[i].ID == id {
			m.goals = append(m.goals[:i], m.goals[i+1:]...)
			return nil
		}
	}
	return core.ErrNoMatchingRow
}

func (m *memStore) ListGoals(_ context.Context, activeOnly bool) ([]core.BudgetGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.BudgetGoal
	for _, g := range m.goals {
		if !activeOnly || g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) ProgressForMonth(_ context.Context, monthYear string) ([]core.BudgetProgress, error) {
	m.mu.Lock()
	m.progressCalls++
	rows := m.progress[monthYear]
	hook := m.onProgress
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, nil
}

func (m *memStore) DataVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.versionErr
}

func (m *memStore) ProgressHistory(context.Context) ([]core.BudgetProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressCalls++
	var out []core.BudgetProgress
	for _, rows := range m.progress {
		out = append(out, rows...)
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

var errBoom = errors.New("boom")
