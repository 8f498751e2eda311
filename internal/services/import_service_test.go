package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/dedup"
)

const statementCSV = `Posted Date,Description,Amount,Balance,Check Number,Category,Labels,Note
2024-05-03,NETFLIX.COM 855-123-4567,($15.49),"$1,984.51",,Entertainment,,
2024-05-02,SHELL OIL 5744,($40.00),"$2,000.00",,Gas / Fuel,,
2024-05-02,SHELL OIL 5744,($40.00),"$2,000.00",,Gas / Fuel,,
2023-08-15,OLD PURCHASE,($1.00),$100.00,,Misc,,
2024-05-01,BROKEN ROW,abc,$0.00,,Misc,,
`

func newImportService(store *memStore, pub EventPublisher, inv Invalidator) *ImportService {
	svc := NewImportService(store, dedup.New(core.Date{}), nil, pub, inv)
	svc.newBatchID = func() string { return "batch-test" }
	return svc
}

func TestImportService_Import(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	svc := newImportService(store, pub, inv)

	res, err := svc.Import(context.Background(), "may.csv", strings.NewReader(statementCSV))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.Read != 5 || res.Imported != 2 || res.Duplicates != 1 || res.BeforeCutoff != 1 || len(res.Malformed) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Malformed[0].Line != 6 || !errors.Is(res.Malformed[0], core.ErrMalformedAmount) {
		t.Errorf("malformed row = %+v", res.Malformed[0])
	}
	if res.Reclassified != 2 {
		t.Errorf("Reclassified = %d, want 2", res.Reclassified)
	}

	rows, _ := store.QueryUnprocessed(context.Background())
	if len(rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(rows))
	}
	if rows[0].Category != "Netflix" || rows[1].Category != "Gas" {
		t.Errorf("categories = %q, %q", rows[0].Category, rows[1].Category)
	}
	for _, r := range rows {
		if r.BatchID != "batch-test" || r.Processed != core.ProcessedNo || r.Flagged != core.FlagNone {
			t.Errorf("row not stamped as new: %+v", r)
		}
	}

	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != amqp.EventImportCompleted {
		t.Errorf("events = %v", kinds)
	}
	if pub.events[0].Month != "2024-05" || pub.events[0].Count != 2 {
		t.Errorf("event = %+v", pub.events[0])
	}
	if inv.n != 1 {
		t.Errorf("invalidations = %d, want 1", inv.n)
	}
}

func TestImportService_MalformedFirstRowKeepsItsKey(t *testing.T) {
	const csv = `Posted Date,Description,Amount,Balance,Check Number,Category,Labels,Note
2024-05-02,SHELL OIL 5744,forty,"$2,000.00",,Gas / Fuel,,
2024-05-02,SHELL OIL 5744,($40.00),"$2,000.00",,Gas / Fuel,,
2024-05-03,NETFLIX.COM 855-123-4567,($15.49),"$1,984.51",,Entertainment,,
`
	store := newMemStore()
	svc := newImportService(store, nil, nil)

	res, err := svc.Import(context.Background(), "may.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Imported != 1 || res.Duplicates != 1 || len(res.Malformed) != 1 || res.Malformed[0].Line != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	rows, _ := store.QueryUnprocessed(context.Background())
	if len(rows) != 1 || rows[0].Category != "Netflix" {
		t.Errorf("stored rows = %+v", rows)
	}
}

func TestImportService_ReimportIsNoop(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := newImportService(store, pub, nil)
	ctx := context.Background()

	if _, err := svc.Import(ctx, "may.csv", strings.NewReader(statementCSV)); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	res, err := svc.Import(ctx, "may.csv", strings.NewReader(statementCSV))
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if res.Imported != 0 || res.AlreadyStored != 2 {
		t.Fatalf("re-import result %+v", res)
	}
	if len(store.rows) != 2 {
		t.Fatalf("store has %d rows after re-import, want 2", len(store.rows))
	}
	if len(pub.events) != 1 {
		t.Errorf("no event expected for an empty import, got %d total", len(pub.events))
	}
}

func TestImportService_AppendFailure(t *testing.T) {
	store := newMemStore()
	store.appendErr = core.ErrStoreWrite
	svc := newImportService(store, nil, nil)

	_, err := svc.Import(context.Background(), "may.csv", strings.NewReader(statementCSV))
	if !errors.Is(err, core.ErrStoreWrite) {
		t.Fatalf("Import() error = %v, want ErrStoreWrite", err)
	}
}

func TestImportService_PublishFailureDoesNotFailImport(t *testing.T) {
	store := newMemStore()
	svc := newImportService(store, &recordingPublisher{err: errBoom}, nil)

	res, err := svc.Import(context.Background(), "may.csv", strings.NewReader(statementCSV))
	if err != nil || res.Imported != 2 {
		t.Fatalf("Import() = %+v, %v", res, err)
	}
}

func TestImportService_ImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.csv")
	if err := os.WriteFile(path, []byte(statementCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := newImportService(newMemStore(), nil, nil)

	res, err := svc.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if res.Source != "statement.csv" || res.Imported != 2 {
		t.Fatalf("ImportFile() = %+v", res)
	}

	if _, err := svc.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("ImportFile() should fail for a missing file")
	}
}
