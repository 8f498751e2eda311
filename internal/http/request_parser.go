// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data
// and the JSON shapes exchanged with clients.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/services"
)

// maxBodyBytes bounds JSON bodies; statement uploads use maxUploadBytes.
const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 32 << 20
)

// decodeJSON reads one JSON object from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

// queryBool reads a boolean query parameter, returning def when absent.
func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type (
	transactionDTO struct {
		ID            int64           `json:"id"`
		BatchID       string          `json:"batch_id"`
		AccountNumber string          `json:"account_number,omitempty"`
		AccountType   string          `json:"account_type,omitempty"`
		PostedDate    string          `json:"posted_date"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
		CheckNumber   string          `json:"check_number,omitempty"`
		Category      string          `json:"category"`
		Balance       decimal.Decimal `json:"balance"`
		Labels        string          `json:"labels,omitempty"`
		Note          string          `json:"note,omitempty"`
		Processed     string          `json:"processed"`
		Flagged       bool            `json:"flagged"`
	}

	goalDTO struct {
		ID           int64           `json:"id"`
		Category     string          `json:"category"`
		Goal         decimal.Decimal `json:"goal"`
		Active       bool            `json:"active"`
		DateAdded    string          `json:"date_added"`
		DateModified string          `json:"date_modified,omitempty"`
	}

	progressDTO struct {
		Category   string          `json:"category"`
		MonthYear  string          `json:"month_year"`
		Goal       decimal.Decimal `json:"goal"`
		Actual     decimal.Decimal `json:"actual"`
		Difference decimal.Decimal `json:"difference"`
	}

	rowErrorDTO struct {
		Line  int    `json:"line"`
		Error string `json:"error"`
	}

	importResultDTO struct {
		OK            bool          `json:"ok"`
		BatchID       string        `json:"batch_id"`
		Source        string        `json:"source"`
		Read          int           `json:"read"`
		Malformed     []rowErrorDTO `json:"malformed"`
		BeforeCutoff  int           `json:"before_cutoff"`
		Duplicates    int           `json:"duplicates"`
		AlreadyStored int           `json:"already_stored"`
		Reclassified  int           `json:"reclassified"`
		Imported      int           `json:"imported"`
		IDs           []int64       `json:"ids"`
	}

	// naturalKeyRequest locates a row by its business fields.
	naturalKeyRequest struct {
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Balance     decimal.Decimal `json:"balance"`
	}

	categorizeByKeyRequest struct {
		naturalKeyRequest
		NewCategory string `json:"new_category"`
	}

	processedByKeyRequest struct {
		naturalKeyRequest
		Flagged   bool   `json:"flagged"`
		Processed string `json:"processed"`
	}

	categoryRequest struct {
		Category string `json:"category"`
	}

	processedRequest struct {
		Processed string `json:"processed"`
	}

	flagRequest struct {
		Flagged bool `json:"flagged"`
	}

	goalRequest struct {
		Category string          `json:"category"`
		Goal     decimal.Decimal `json:"goal"`
		Active   *bool           `json:"active"`
	}
)

func (k naturalKeyRequest) key() core.NaturalKey {
	return core.NaturalKey{
		Category:    sanitizeInput(k.Category),
		Description: k.Description,
		Amount:      k.Amount,
		Balance:     k.Balance,
	}
}

// active defaults to true when a new goal omits the field. Updates that omit
// it keep the stored value.
func (g goalRequest) active() bool {
	return g.Active == nil || *g.Active
}

func parseProcessed(s string) (core.ProcessedStatus, error) {
	status := core.ProcessedStatus(strings.TrimSpace(s))
	if !status.Valid() {
		return "", fmt.Errorf("processed must be %q or %q", core.ProcessedNo, core.ProcessedYes)
	}
	return status, nil
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		BatchID:       t.BatchID,
		AccountNumber: t.AccountNumber,
		AccountType:   t.AccountType,
		PostedDate:    t.PostedDate.String(),
		Amount:        t.Amount,
		Description:   t.Description,
		CheckNumber:   t.CheckNumber,
		Category:      t.Category,
		Balance:       t.Balance,
		Labels:        t.Labels,
		Note:          t.Note,
		Processed:     string(t.Processed),
		Flagged:       t.Flagged == core.FlagFlagged,
	}
}

func toTransactionDTOs(rows []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTransactionDTO(t))
	}
	return out
}

func toGoalDTOs(goals []core.BudgetGoal) []goalDTO {
	out := make([]goalDTO, 0, len(goals))
	for _, g := range goals {
		out = append(out, goalDTO{
			ID:           g.ID,
			Category:     g.Category,
			Goal:         g.Goal,
			Active:       g.Active,
			DateAdded:    g.DateAdded.String(),
			DateModified: g.DateModified.String(),
		})
	}
	return out
}

func toProgressDTOs(rows []core.BudgetProgress) []progressDTO {
	out := make([]progressDTO, 0, len(rows))
	for _, p := range rows {
		out = append(out, progressDTO{
			Category:   p.Category,
			MonthYear:  p.MonthYear,
			Goal:       p.Goal,
			Actual:     p.Actual,
			Difference: p.Difference,
		})
	}
	return out
}

func toImportResultDTO(res services.ImportResult, ok bool) importResultDTO {
	malformed := make([]rowErrorDTO, 0, len(res.Malformed))
	for _, e := range res.Malformed {
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		malformed = append(malformed, rowErrorDTO{Line: e.Line, Error: msg})
	}
	ids := res.IDs
	if ids == nil {
		ids = []int64{}
	}
	return importResultDTO{
		OK:            ok,
		BatchID:       res.BatchID,
		Source:        res.Source,
		Read:          res.Read,
		Malformed:     malformed,
		BeforeCutoff:  res.BeforeCutoff,
		Duplicates:    res.Duplicates,
		AlreadyStored: res.AlreadyStored,
		Reclassified:  res.Reclassified,
		Imported:      res.Imported,
		IDs:           ids,
	}
}
