// Package statement reads bank statement exports and normalizes their rows
// into ledger transactions.
package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names as they appear in statement exports.
const (
	ColPostedDate    = "Posted Date"
	ColDescription   = "Description"
	ColAmount        = "Amount"
	ColBalance       = "Balance"
	ColCheckNumber   = "Check Number"
	ColCategory      = "Category"
	ColLabels        = "Labels"
	ColNote          = "Note"
	ColAccountNumber = "AccountNumber"
	ColAccountType   = "AccountType"
)

var requiredColumns = []string{ColPostedDate, ColDescription, ColAmount}

// RawRow is one CSV record keyed by header name. Absent columns read as "".
type RawRow struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of a column, or "" if the export lacks it.
func (r RawRow) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// ReadFile opens path and reads every record in it.
func ReadFile(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open statement %s: %w", path, err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read statement %s: %w", path, err)
	}
	return rows, nil
}

// Read parses a headed CSV export. Rows shorter than the header are padded
// with empty values rather than rejected.
func Read(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []RawRow{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read record: %w", err)
		}
		if isBlank(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, RawRow{Line: line, Fields: fields})
	}
	return rows, nil
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
