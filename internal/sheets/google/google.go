package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the base tab name; the year is prefixed per export.
const DefaultSheetName = "Budget Progress"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Budget Progress"); code prefixes year.
	sheetBase string
}

// Ensure interface conformance
var (
	_ ports.ProgressExporter = (*Client)(nil)
	_ ports.ProgressReader   = (*Client)(nil)
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsFile is a service account key. When empty, GOOGLE_SERVICE_ACCOUNT_JSON
	// and then Application Default Credentials are used.
	CredentialsFile string
}

// New creates a Sheets client for the configured spreadsheet.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = DefaultSheetName
	}

	svc, err := newSheetsService(ctx, strings.TrimSpace(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsFile string) (*gsheet.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}

	switch inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); {
	case credentialsFile != "":
		slog.InfoContext(ctx, "Using service account credentials file", "path", credentialsFile)
		opts = append(opts, goption.WithCredentialsFile(credentialsFile))
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		opts = append(opts, goption.WithCredentialsJSON([]byte(inline)))
	default:
		slog.InfoContext(ctx, "Using application default credentials")
	}

	service, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// ExportProgress replaces the rows of month in the year's progress tab and
// rewrites the table ordered by month descending, then category.
func (c *Client) ExportProgress(ctx context.Context, month string, rows []core.BudgetProgress) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	year, err := monthYear(month)
	if err != nil {
		return "", err
	}
	sheetName := yearPrefixedName(c.sheetBase, year)
	if err := c.ensureSheet(ctx, sheetName); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:E", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rng, err)
	}
	existing, err := parseProgress(resp.Values)
	if err != nil {
		return "", err
	}
	values := progressValues(mergeMonth(existing, month, rows))

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", rng, err)
	}
	writeRange := fmt.Sprintf("%s!A1:E%d", sheetName, len(values))
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", writeRange, err)
	}

	slog.InfoContext(ctx, "Exported budget progress", "month", month, "rows", len(rows), "range", writeRange)
	return writeRange, nil
}

// ReadProgress returns the exported rows of month.
func (c *Client) ReadProgress(ctx context.Context, month string) ([]core.BudgetProgress, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	year, err := monthYear(month)
	if err != nil {
		return nil, err
	}
	rng := fmt.Sprintf("%s!A:E", yearPrefixedName(c.sheetBase, year))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	all, err := parseProgress(resp.Values)
	if err != nil {
		return nil, err
	}
	out := []core.BudgetProgress{}
	for _, p := range all {
		if p.MonthYear == month {
			out = append(out, p)
		}
	}
	return out, nil
}

// ensureSheet adds the tab when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	slog.InfoContext(ctx, "Created progress sheet", "sheet", title)
	return nil
}

// IsRetryable reports whether err is a rate limit or server side API failure.
func IsRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

func monthYear(month string) (int, error) {
	t, err := time.Parse(core.MonthLayout, month)
	if err != nil {
		return 0, fmt.Errorf("invalid month %q: %w", month, err)
	}
	return t.Year(), nil
}

// mergeMonth drops the old rows of month and adds rows, keeping the table ordered.
func mergeMonth(existing []core.BudgetProgress, month string, rows []core.BudgetProgress) []core.BudgetProgress {
	out := make([]core.BudgetProgress, 0, len(existing)+len(rows))
	for _, p := range existing {
		if p.MonthYear != month {
			out = append(out, p)
		}
	}
	out = append(out, rows...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MonthYear != out[j].MonthYear {
			return out[i].MonthYear > out[j].MonthYear
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
