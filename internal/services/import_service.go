package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/classify"
	"ledger/internal/core"
	"ledger/internal/dedup"
	"ledger/internal/statement"
)

// ImportResult summarizes one statement import.
type ImportResult struct {
	BatchID       string
	Source        string
	Read          int
	Malformed     []statement.RowError
	BeforeCutoff  int
	Duplicates    int
	AlreadyStored int
	Reclassified  int
	Imported      int
	IDs           []int64
}

// ImportService runs a statement through normalize, dedup and classify, then
// appends the new rows to the ledger in one write.
type ImportService struct {
	store      LedgerStore
	filter     dedup.Filter
	classifier *classify.Classifier
	notify     notifier
	newBatchID func() string
}

func NewImportService(store LedgerStore, filter dedup.Filter, classifier *classify.Classifier, events EventPublisher, invalidator Invalidator) *ImportService {
	if classifier == nil {
		classifier = classify.Default()
	}
	return &ImportService{
		store:      store,
		filter:     filter,
		classifier: classifier,
		notify:     notifier{events: events, invalidator: invalidator},
		newBatchID: uuid.NewString,
	}
}

// ImportFile imports the CSV statement at path.
func (s *ImportService) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	raw, err := statement.ReadFile(path)
	if err != nil {
		return ImportResult{Source: path}, fmt.Errorf("read statement: %w", err)
	}
	return s.importRows(ctx, filepath.Base(path), raw)
}

// Import imports a CSV statement from r. source only labels logs and results.
func (s *ImportService) Import(ctx context.Context, source string, r io.Reader) (ImportResult, error) {
	raw, err := statement.Read(r)
	if err != nil {
		return ImportResult{Source: source}, fmt.Errorf("read statement: %w", err)
	}
	return s.importRows(ctx, source, raw)
}

func (s *ImportService) importRows(ctx context.Context, source string, raw []statement.RawRow) (ImportResult, error) {
	res := ImportResult{
		BatchID: s.newBatchID(),
		Source:  source,
		Read:    len(raw),
	}

	unique, rawDuplicates := statement.FirstPerKey(raw)
	rows, malformed := statement.NormalizeAll(unique)
	res.Malformed = malformed
	for _, m := range malformed {
		slog.WarnContext(ctx, "Skipping malformed statement row", "source", source, "line", m.Line, "error", m.Err)
	}

	stored, err := s.store.DedupKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("load stored keys: %w", err)
	}

	filtered := s.filter.Apply(rows, stored)
	res.BeforeCutoff = filtered.BeforeCutoff
	res.Duplicates = rawDuplicates + filtered.BatchDuplicates
	res.AlreadyStored = filtered.AlreadyStored

	fresh := filtered.Rows
	res.Reclassified = s.classifier.ClassifyAll(fresh)
	for i := range fresh {
		fresh[i].BatchID = res.BatchID
	}

	if len(fresh) == 0 {
		slog.InfoContext(ctx, "No new transactions in statement", "source", source, "rows_read", res.Read)
		return res, nil
	}

	ids, err := s.store.AppendTransactions(ctx, fresh)
	if err != nil {
		return res, fmt.Errorf("append transactions: %w", err)
	}
	res.IDs = ids
	res.Imported = len(ids)

	s.notify.changed(ctx, amqp.NewLedgerEvent(amqp.EventImportCompleted, res.BatchID, latestMonth(fresh), res.Imported))
	return res, nil
}

func latestMonth(rows []core.Transaction) string {
	var latest core.Date
	for _, r := range rows {
		if r.PostedDate.After(latest.Time) {
			latest = r.PostedDate
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.MonthYear()
}
