package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Posted dates show up in several shapes depending on the bank.
var dateLayouts = []string{
	core.DateLayout,
	"1/2/2006",
	"1/2/06",
	"2006/01/02",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
}

// RowError reports a record that could not be normalized.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Normalize converts a raw record into a transaction with typed amount,
// balance and posted date. New rows always start unprocessed and unflagged.
// On error the returned transaction is the zero value.
func Normalize(raw RawRow) (core.Transaction, error) {
	posted, err := ParsePostedDate(raw.Get(ColPostedDate))
	if err != nil {
		return core.Transaction{}, RowError{Line: raw.Line, Err: err}
	}

	amount, err := core.ParseCurrency(raw.Get(ColAmount))
	if err != nil {
		return core.Transaction{}, RowError{Line: raw.Line, Err: fmt.Errorf("amount %q: %w", raw.Get(ColAmount), err)}
	}

	// Some exports leave the running balance blank on pending rows.
	balance := decimal.Zero
	if b := raw.Get(ColBalance); b != "" {
		balance, err = core.ParseCurrency(b)
		if err != nil {
			return core.Transaction{}, RowError{Line: raw.Line, Err: fmt.Errorf("balance %q: %w", b, err)}
		}
	}

	return core.Transaction{
		AccountNumber: raw.Get(ColAccountNumber),
		AccountType:   raw.Get(ColAccountType),
		PostedDate:    posted,
		Amount:        amount,
		Description:   raw.Get(ColDescription),
		CheckNumber:   raw.Get(ColCheckNumber),
		Category:      raw.Get(ColCategory),
		Balance:       balance,
		Labels:        raw.Get(ColLabels),
		Note:          raw.Get(ColNote),
		Processed:     core.ProcessedNo,
		Flagged:       core.FlagNone,
	}, nil
}

// NormalizeAll normalizes every row, collecting failures instead of stopping.
func NormalizeAll(rows []RawRow) ([]core.Transaction, []RowError) {
	out := make([]core.Transaction, 0, len(rows))
	var failed []RowError
	for _, raw := range rows {
		tx, err := Normalize(raw)
		if err != nil {
			if re, ok := err.(RowError); ok {
				failed = append(failed, re)
			} else {
				failed = append(failed, RowError{Line: raw.Line, Err: err})
			}
			continue
		}
		out = append(out, tx)
	}
	return out, failed
}

// FirstPerKey keeps the first raw row of every (Description, PostedDate) key
// and reports how many later rows it dropped. It runs before normalization so
// a malformed first row still claims its key. Dates that parse are compared
// in normalized form; others by their trimmed text.
func FirstPerKey(rows []RawRow) ([]RawRow, int) {
	seen := make(map[core.DedupKey]struct{}, len(rows))
	kept := make([]RawRow, 0, len(rows))
	dropped := 0
	for _, raw := range rows {
		key := core.DedupKey{Description: raw.Get(ColDescription), PostedDate: raw.Get(ColPostedDate)}
		if d, err := ParsePostedDate(key.PostedDate); err == nil {
			key.PostedDate = d.String()
		}
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, raw)
	}
	return kept, dropped
}

// ParsePostedDate accepts the date layouts seen in statement exports.
func ParsePostedDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, fmt.Errorf("%w: empty", core.ErrMalformedDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return core.Date{}, fmt.Errorf("%w: %q", core.ErrMalformedDate, s)
}
