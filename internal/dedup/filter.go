// Package dedup drops statement rows that are already in the ledger.
package dedup

import (
	"ledger/internal/core"
)

// DefaultCutoff is the earliest posted date the importer accepts.
var DefaultCutoff = core.NewDate(2023, 9, 1)

// Filter keeps only genuinely new rows of an incoming batch. Identity is the
// (Description, PostedDate) pair and the first occurrence of a key wins.
type Filter struct {
	Cutoff core.Date
}

// Result is the outcome of a filter run with counts for each reason a row was dropped.
type Result struct {
	Rows            []core.Transaction
	BeforeCutoff    int
	BatchDuplicates int
	AlreadyStored   int
}

// New returns a filter with the given cutoff, or DefaultCutoff when zero.
func New(cutoff core.Date) Filter {
	if cutoff.IsZero() {
		cutoff = DefaultCutoff
	}
	return Filter{Cutoff: cutoff}
}

// Apply filters batch against the keys already stored. A nil or empty stored
// set is the bootstrap case and lets the whole collapsed batch through.
// Input order is preserved, so the same inputs always give the same output.
func (f Filter) Apply(batch []core.Transaction, stored []core.DedupKey) Result {
	seenStored := make(map[core.DedupKey]struct{}, len(stored))
	for _, k := range stored {
		seenStored[k] = struct{}{}
	}

	var res Result
	seenBatch := make(map[core.DedupKey]struct{}, len(batch))
	res.Rows = make([]core.Transaction, 0, len(batch))
	for _, tx := range batch {
		if !f.Cutoff.IsZero() && tx.PostedDate.Before(f.Cutoff.Time) {
			res.BeforeCutoff++
			continue
		}
		key := tx.Key()
		if _, dup := seenBatch[key]; dup {
			res.BatchDuplicates++
			continue
		}
		seenBatch[key] = struct{}{}
		if _, exists := seenStored[key]; exists {
			res.AlreadyStored++
			continue
		}
		res.Rows = append(res.Rows, tx)
	}
	return res
}
