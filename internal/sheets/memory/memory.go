package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

var (
	_ sheets.ProgressExporter = (*Store)(nil)
	_ sheets.ProgressReader   = (*Store)(nil)
)

// Store keeps exported progress tables in memory, keyed by month.
type Store struct {
	mu      sync.Mutex
	months  map[string][]core.BudgetProgress
	exports int
}

func New() *Store {
	return &Store{months: map[string][]core.BudgetProgress{}}
}

// ExportProgress replaces the stored block for month and returns a synthetic reference.
func (s *Store) ExportProgress(_ context.Context, month string, rows []core.BudgetProgress) (string, error) {
	if month == "" {
		return "", fmt.Errorf("export progress: empty month")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.months[month] = append([]core.BudgetProgress(nil), rows...)
	s.exports++
	return fmt.Sprintf("mem:%s:%d", month, len(rows)), nil
}

// ReadProgress returns the last rows exported for month.
func (s *Store) ReadProgress(_ context.Context, month string) ([]core.BudgetProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BudgetProgress{}, s.months[month]...), nil
}

// Exports reports how many exports have been written.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
