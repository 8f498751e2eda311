package statement

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const sampleCSV = `Posted Date,Description,Amount,Balance,Check Number,Category,Labels,Note,AccountNumber,AccountType
05/02/2024,NETFLIX.COM 855-123,($15.49),"$1,234.56",,Entertainment,,,1111,Checking
2024-05-03,SCHNUCKS #123,($82.10),"$1,152.46",,Groceries,,,1111,Checking

05/04/2024,PAYROLL,"$2,000.00","$3,152.46",,Income,,,1111,Checking
`

func TestReadByHeader(t *testing.T) {
	rows, err := Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (blank line skipped), got %d", len(rows))
	}
	if rows[0].Get(ColDescription) != "NETFLIX.COM 855-123" {
		t.Fatalf("unexpected description %q", rows[0].Get(ColDescription))
	}
	if rows[0].Line != 2 {
		t.Fatalf("expected first data row on line 2, got %d", rows[0].Line)
	}
	if rows[2].Get(ColAmount) != "$2,000.00" {
		t.Fatalf("quoted amount not preserved: %q", rows[2].Get(ColAmount))
	}
}

func TestReadMissingOptionalColumns(t *testing.T) {
	in := "Posted Date,Description,Amount,Balance\n2024-01-02,COFFEE,($3.00),$10.00\n"
	rows, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rows[0].Get(ColAccountNumber) != "" || rows[0].Get(ColCheckNumber) != "" {
		t.Fatalf("absent columns should read empty")
	}
}

func TestReadRejectsMissingRequiredColumns(t *testing.T) {
	_, err := Read(strings.NewReader("Date,Description\n2024-01-01,x\n"))
	if err == nil || !strings.Contains(err.Error(), "Posted Date") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestReadEmpty(t *testing.T) {
	rows, err := Read(strings.NewReader(""))
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected empty result, got %v %v", rows, err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte("\ufeff"+sampleCSV), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 3 || rows[0].Get(ColPostedDate) != "05/02/2024" {
		t.Fatalf("BOM header not handled: %+v", rows)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNormalize(t *testing.T) {
	rows, err := Read(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	tx, err := Normalize(rows[0])
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tx.PostedDate.String() != "2024-05-02" {
		t.Errorf("posted date = %s", tx.PostedDate)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-15.49")) {
		t.Errorf("amount = %s", tx.Amount)
	}
	if !tx.Balance.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("balance = %s", tx.Balance)
	}
	if tx.Processed != core.ProcessedNo || tx.Flagged != core.FlagNone {
		t.Errorf("new rows must be unprocessed and unflagged: %q %q", tx.Processed, tx.Flagged)
	}
	if tx.AccountNumber != "1111" || tx.AccountType != "Checking" || tx.Category != "Entertainment" {
		t.Errorf("unexpected passthrough fields: %+v", tx)
	}
}

func TestNormalizeAllCollectsRowErrors(t *testing.T) {
	in := `Posted Date,Description,Amount,Balance
2024-01-02,GOOD,$1.00,$2.00
2024-01-03,BAD AMOUNT,one dollar,$2.00
not a date,BAD DATE,$1.00,$2.00
2024-01-04,BAD BALANCE,$1.00,lots
2024-01-05,NO BALANCE,$1.00,
`
	rows, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	txs, failed := NormalizeAll(rows)
	if len(txs) != 2 {
		t.Fatalf("expected 2 good rows, got %d", len(txs))
	}
	if len(failed) != 3 {
		t.Fatalf("expected 3 row errors, got %d", len(failed))
	}
	if !errors.Is(failed[0], core.ErrMalformedAmount) || failed[0].Line != 3 {
		t.Errorf("unexpected first failure: %v", failed[0])
	}
	if !errors.Is(failed[1], core.ErrMalformedDate) {
		t.Errorf("expected malformed date, got %v", failed[1])
	}
	if !errors.Is(failed[2], core.ErrMalformedAmount) {
		t.Errorf("expected malformed balance, got %v", failed[2])
	}
	if !txs[1].Balance.IsZero() {
		t.Errorf("blank balance should be zero, got %s", txs[1].Balance)
	}
}

func TestFirstPerKey(t *testing.T) {
	in := `Posted Date,Description,Amount,Balance
2024-01-03,SHELL OIL,oops,$2.00
2024-01-03,SHELL OIL,$1.00,$2.00
1/3/2024,SHELL OIL,$1.00,$2.00
2024-01-04,SHELL OIL,$1.00,$2.00
not a date,MYSTERY,$1.00,$2.00
not a date,MYSTERY,$5.00,$2.00
`
	rows, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	kept, dropped := FirstPerKey(rows)
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	lines := make([]int, len(kept))
	for i, r := range kept {
		lines[i] = r.Line
	}
	want := []int{2, 5, 6}
	if len(lines) != len(want) {
		t.Fatalf("kept lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("kept lines = %v, want %v", lines, want)
		}
	}

	// the malformed first row still owns its key, so nothing for 2024-01-03 survives
	txs, failed := NormalizeAll(kept)
	if len(failed) != 2 || len(txs) != 1 || txs[0].PostedDate.String() != "2024-01-04" {
		t.Errorf("normalized = %+v, failed = %v", txs, failed)
	}
}

func TestParsePostedDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-05-02", "2024-05-02", true},
		{"5/2/2024", "2024-05-02", true},
		{"05/02/2024", "2024-05-02", true},
		{"5/2/24", "2024-05-02", true},
		{"May 2, 2024", "2024-05-02", true},
		{"2024-05-02 00:00:00", "2024-05-02", true},
		{"", "", false},
		{"02.05.2024", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePostedDate(tc.in)
			if !tc.ok {
				if !errors.Is(err, core.ErrMalformedDate) {
					t.Fatalf("expected ErrMalformedDate, got %v", err)
				}
				return
			}
			if err != nil || got.String() != tc.want {
				t.Fatalf("got %s (err=%v), want %s", got, err, tc.want)
			}
		})
	}
}
