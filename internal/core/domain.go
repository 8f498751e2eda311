package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProcessedNo  ProcessedStatus = "No"
	ProcessedYes ProcessedStatus = "Yes"

	FlagNone    FlagStatus = ""
	FlagFlagged FlagStatus = "Flagged"
)

// DateLayout is the ISO calendar date format used for persisted dates.
const DateLayout = "2006-01-02"

// MonthLayout is the format of BudgetProgress.MonthYear.
const MonthLayout = "2006-01"

type (
	ProcessedStatus string
	FlagStatus      string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID            int64 // assigned by the ledger store on import
		BatchID       string
		AccountNumber string
		AccountType   string
		PostedDate    Date
		Amount        decimal.Decimal
		Description   string
		CheckNumber   string
		Category      string
		Balance       decimal.Decimal
		Labels        string
		Note          string
		Processed     ProcessedStatus
		Flagged       FlagStatus
	}

	// NaturalKey locates a ledger row by business fields instead of its ID.
	// Flagged is only compared when MatchFlagged is set.
	NaturalKey struct {
		Category     string
		Description  string
		Amount       decimal.Decimal
		Balance      decimal.Decimal
		Flagged      FlagStatus
		MatchFlagged bool
	}

	BudgetGoal struct {
		ID           int64
		Category     string
		Goal         decimal.Decimal
		Active       bool
		DateAdded    Date
		DateModified Date // zero until the goal is first updated
	}

	BudgetProgress struct {
		Goal       decimal.Decimal
		Actual     decimal.Decimal
		Difference decimal.Decimal
		Category   string
		MonthYear  string // YYYY-MM
	}
)

var (
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidStatus    = errors.New("invalid processed status")
	ErrInvalidDate      = errors.New("date cannot be zero")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthYear returns the YYYY-MM bucket the date falls in.
func (d Date) MonthYear() string {
	return d.Format(MonthLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Valid reports whether s is one of the two processed states.
func (s ProcessedStatus) Valid() bool {
	return s == ProcessedNo || s == ProcessedYes
}

// DedupKey is the (Description, PostedDate) identity used to detect re-imports.
type DedupKey struct {
	Description string
	PostedDate  string
}

// Key returns the dedup identity of the transaction.
func (t Transaction) Key() DedupKey {
	return DedupKey{Description: t.Description, PostedDate: t.PostedDate.String()}
}

func (t Transaction) Validate() error {
	if err := t.PostedDate.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if !t.Processed.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// NaturalKey builds the legacy row-matching key for the transaction.
func (t Transaction) NaturalKey() NaturalKey {
	return NaturalKey{
		Category:    t.Category,
		Description: t.Description,
		Amount:      t.Amount,
		Balance:     t.Balance,
		Flagged:     t.Flagged,
	}
}

func (g BudgetGoal) Validate() error {
	if strings.TrimSpace(g.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
