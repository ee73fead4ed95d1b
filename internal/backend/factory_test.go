package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/sheets/memory"
)

func testFactory() *DefaultFactory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg := &config.Config{ExportBackend: "sheets", GoogleSpreadsheetID: "abc", GoogleSheetName: "Ledger"}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != SheetsBackend || got.GoogleSpreadsheetID != "abc" || got.GoogleSheetName != "Ledger" {
		t.Errorf("unexpected config %+v", got)
	}

	if _, err := FromAppConfig(&config.Config{ExportBackend: "excel"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Type: MemoryBackend}, ""},
		{"sheets", Config{Type: SheetsBackend, GoogleSpreadsheetID: "x"}, ""},
		{"sheets without id", Config{Type: SheetsBackend}, "Spreadsheet ID is required"},
		{"unknown", Config{Type: "sqlite"}, "invalid backend type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	res, err := testFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	ctx := context.Background()
	entry := core.LedgerEntry{
		Kind:   core.EntryIncome,
		RefID:  1,
		Date:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Label:  "Salary",
		Amount: core.Money{Cents: 250000},
	}
	if _, err := res.Backend.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := res.Backend.ListEntries(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(got) != 1 || got[0].Label != "Salary" {
		t.Errorf("ListEntries = %+v", got)
	}
}

func TestCreateBackend_Sheets(t *testing.T) {
	f := testFactory()
	var gotID, gotName string
	f.newSheets = func(_ context.Context, id, name string) (Backend, error) {
		gotID, gotName = id, name
		return memory.New(), nil
	}

	res, err := f.CreateBackend(context.Background(), Config{Type: SheetsBackend, GoogleSpreadsheetID: "sheet-1", GoogleSheetName: "Ledger"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Backend == nil || gotID != "sheet-1" || gotName != "Ledger" {
		t.Errorf("sheets client built with %q/%q", gotID, gotName)
	}

	f.newSheets = func(context.Context, string, string) (Backend, error) {
		return nil, errors.New("no credentials")
	}
	if _, err := f.CreateBackend(context.Background(), Config{Type: SheetsBackend, GoogleSpreadsheetID: "sheet-1"}); err == nil ||
		!strings.Contains(err.Error(), "no credentials") {
		t.Errorf("expected wrapped client error, got %v", err)
	}
}

func TestBackendResult_CloseNil(t *testing.T) {
	var r *BackendResult
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil result: %v", err)
	}
}
