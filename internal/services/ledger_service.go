package services

import (
	"context"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// LedgerService covers the review flow: listing unprocessed rows and
// categorizing, confirming or flagging them.
type LedgerService struct {
	store  LedgerStore
	notify notifier
}

func NewLedgerService(store LedgerStore, events EventPublisher, invalidator Invalidator) *LedgerService {
	return &LedgerService{
		store:  store,
		notify: notifier{events: events, invalidator: invalidator},
	}
}

func (s *LedgerService) Unprocessed(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.store.QueryUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed: %w", err)
	}
	return rows, nil
}

func (s *LedgerService) Transaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) Categories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

func (s *LedgerService) Status(ctx context.Context) (storage.StatusCounts, error) {
	return s.store.CountByStatus(ctx)
}

// UpdateCategory recategorizes the row matching key and marks it processed.
func (s *LedgerService) UpdateCategory(ctx context.Context, newCategory string, key core.NaturalKey) error {
	if newCategory == "" {
		return core.ErrEmptyCategory
	}
	if err := s.store.UpdateCategory(ctx, newCategory, key); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) UpdateProcessingStatus(ctx context.Context, key core.NaturalKey, status core.ProcessedStatus) error {
	if err := s.store.UpdateProcessingStatus(ctx, key, status); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) FlagTransaction(ctx context.Context, key core.NaturalKey) error {
	if err := s.store.FlagTransaction(ctx, key); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) UpdateCategoryByID(ctx context.Context, id int64, newCategory string) error {
	if newCategory == "" {
		return core.ErrEmptyCategory
	}
	if err := s.store.UpdateCategoryByID(ctx, id, newCategory); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) SetProcessedByID(ctx context.Context, id int64, status core.ProcessedStatus) error {
	if err := s.store.SetProcessedByID(ctx, id, status); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) FlagByID(ctx context.Context, id int64, flagged bool) error {
	if err := s.store.FlagByID(ctx, id, flagged); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

func (s *LedgerService) changed(ctx context.Context) {
	s.notify.changed(ctx, amqp.NewLedgerEvent(amqp.EventLedgerUpdated, "", "", 1))
}
