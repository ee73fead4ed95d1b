package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cassa/internal/core"
	"cassa/internal/log"
	ports "cassa/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the base name of the ledger sheet. The current year is
// prefixed to it.
const DefaultSheetName = "Ledger"

const dateLayout = "2006-01-02"

var ledgerHeader = []any{"Date", "Kind", "Label", "Description", "Amount", "Method", "Ref"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
}

// Ensure interface conformance
var (
	_ ports.LedgerWriter = (*Client)(nil)
	_ ports.LedgerLister = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from GOOGLE_SPREADSHEET_ID and
// GOOGLE_SHEET_NAME using service account credentials.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

// New creates a Sheets client writing to "<year> <sheetName>" in the given
// spreadsheet.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, sheetName, time.Now().Year()), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, year int) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerSheet:   yearPrefixedName(sheetName, year),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials", log.FieldComponent, log.ComponentSheets)
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file",
			log.FieldComponent, log.ComponentSheets,
			"path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Append writes the entry to the next empty row of the ledger sheet. A header
// row is written first when the sheet is empty.
func (c *Client) Append(ctx context.Context, e core.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.ledgerSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.ledgerSheet, err)
	}

	nextRow := len(resp.Values) + 1
	rows := [][]any{entryRow(e)}
	if nextRow == 1 {
		rows = [][]any{ledgerHeader, entryRow(e)}
	}

	lastRow := nextRow + len(rows) - 1
	dataRange := fmt.Sprintf("%s!A%d:G%d", c.ledgerSheet, nextRow, lastRow)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	return fmt.Sprintf("%s!A%d:G%d", c.ledgerSheet, lastRow, lastRow), nil
}

func entryRow(e core.LedgerEntry) []any {
	return []any{
		e.Date.UTC().Format(dateLayout),
		e.Kind,
		e.Label,
		e.Description,
		e.Amount.Float64(),
		e.Method,
		e.RefID,
	}
}

// ListEntries scans the ledger sheet for rows dated in the given month.
// Rows that do not parse are skipped.
func (c *Client) ListEntries(ctx context.Context, year int, month int) ([]core.LedgerEntry, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}

	rng := fmt.Sprintf("%s!A:G", c.ledgerSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []core.LedgerEntry
	for _, row := range resp.Values {
		e, ok := parseRow(toStrings(row))
		if !ok {
			continue
		}
		if e.Date.Year() != year || int(e.Date.Month()) != month {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parseRow(cols []string) (core.LedgerEntry, bool) {
	if len(cols) < 5 {
		return core.LedgerEntry{}, false
	}
	date, err := time.Parse(dateLayout, cols[0])
	if err != nil {
		// header or free-form row
		return core.LedgerEntry{}, false
	}
	amount, err := core.ParseMoney(cols[4])
	if err != nil {
		return core.LedgerEntry{}, false
	}
	e := core.LedgerEntry{
		Kind:        cols[1],
		Date:        date,
		Label:       cols[2],
		Description: cols[3],
		Amount:      amount,
		Method:      safeGet(cols, 5),
	}
	if ref, err := strconv.ParseInt(safeGet(cols, 6), 10, 64); err == nil {
		e.RefID = ref
	}
	return e, true
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

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
