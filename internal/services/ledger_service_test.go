package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

func seededLedger(t *testing.T) (*memStore, *LedgerService, *recordingPublisher, *countingInvalidator) {
	t.Helper()
	store := newMemStore()
	_, err := store.AppendTransactions(context.Background(), []core.Transaction{
		{PostedDate: core.NewDate(2024, 5, 1), Description: "SHELL OIL", Category: "Gas", Amount: decimal.RequireFromString("-40"), Balance: decimal.RequireFromString("960"), Processed: core.ProcessedNo},
		{PostedDate: core.NewDate(2024, 5, 2), Description: "DUP", Category: "Misc", Amount: decimal.RequireFromString("-1"), Processed: core.ProcessedNo},
		{PostedDate: core.NewDate(2024, 5, 3), Description: "DUP", Category: "Misc", Amount: decimal.RequireFromString("-1"), Processed: core.ProcessedNo},
	})
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	return store, NewLedgerService(store, pub, inv), pub, inv
}

func TestLedgerService_NaturalKeyFlow(t *testing.T) {
	ctx := context.Background()
	store, svc, pub, inv := seededLedger(t)

	rows, err := svc.Unprocessed(ctx)
	if err != nil || len(rows) != 3 {
		t.Fatalf("Unprocessed() = %d rows, %v", len(rows), err)
	}

	key := rows[0].NaturalKey()
	if err := svc.FlagTransaction(ctx, key); err != nil {
		t.Fatalf("FlagTransaction() error = %v", err)
	}
	key.Flagged = core.FlagFlagged
	if err := svc.UpdateProcessingStatus(ctx, key, core.ProcessedYes); err != nil {
		t.Fatalf("UpdateProcessingStatus() error = %v", err)
	}
	if err := svc.UpdateCategory(ctx, "Fuel", key); err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}

	got, _ := store.GetTransaction(ctx, rows[0].ID)
	if got.Category != "Fuel" || got.Processed != core.ProcessedYes || got.Flagged != core.FlagFlagged {
		t.Fatalf("row after review = %+v", got)
	}
	if len(pub.events) != 3 || pub.events[0].Kind != amqp.EventLedgerUpdated {
		t.Errorf("events = %v", pub.kinds())
	}
	if inv.n != 3 {
		t.Errorf("invalidations = %d, want 3", inv.n)
	}
}

func TestLedgerService_Errors(t *testing.T) {
	ctx := context.Background()
	store, svc, pub, _ := seededLedger(t)

	dup := store.rows[1].NaturalKey()
	if err := svc.UpdateCategory(ctx, "Other", dup); !errors.Is(err, core.ErrAmbiguousMatch) {
		t.Errorf("UpdateCategory() on ambiguous key error = %v", err)
	}
	if err := svc.UpdateCategory(ctx, "", dup); !errors.Is(err, core.ErrEmptyCategory) {
		t.Errorf("UpdateCategory() with empty category error = %v", err)
	}
	if err := svc.FlagByID(ctx, 99, true); !errors.Is(err, core.ErrNoMatchingRow) {
		t.Errorf("FlagByID() unknown id error = %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("failed writes must not publish, got %v", pub.kinds())
	}
}

func TestLedgerService_ByID(t *testing.T) {
	ctx := context.Background()
	store, svc, _, _ := seededLedger(t)

	if err := svc.UpdateCategoryByID(ctx, 2, "Coffee"); err != nil {
		t.Fatalf("UpdateCategoryByID() error = %v", err)
	}
	if err := svc.FlagByID(ctx, 3, true); err != nil {
		t.Fatalf("FlagByID() error = %v", err)
	}
	if err := svc.SetProcessedByID(ctx, 3, core.ProcessedYes); err != nil {
		t.Fatalf("SetProcessedByID() error = %v", err)
	}

	status, err := svc.Status(ctx)
	if err != nil || status.Processed != 2 || status.Unprocessed != 1 {
		t.Fatalf("Status() = %+v, %v", status, err)
	}
	if store.rows[2].Flagged != core.FlagFlagged {
		t.Errorf("row 3 should be flagged")
	}
	categories, _ := svc.Categories(ctx)
	if len(categories) != 3 {
		t.Errorf("Categories() = %v", categories)
	}
	tx, err := svc.Transaction(ctx, 2)
	if err != nil || tx.Category != "Coffee" {
		t.Errorf("Transaction() = %+v, %v", tx, err)
	}
}
