package memory

import (
	"context"
	"testing"
	"time"

	"cassa/internal/core"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, core.LedgerEntry{
		Kind:   core.EntryExpense,
		RefID:  1,
		Date:   time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
		Label:  "Food",
		Amount: core.Money{Cents: 123},
	})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	ref, err = s.Append(ctx, core.LedgerEntry{
		Kind:   core.EntryIncome,
		RefID:  2,
		Date:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Label:  "Salary",
		Amount: core.Money{Cents: 100000},
	})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	june, err := s.ListEntries(ctx, 2025, 6)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(june) != 1 || june[0].Label != "Food" {
		t.Fatalf("unexpected june entries: %+v", june)
	}

	if _, err := s.ListEntries(ctx, 2025, 13); err == nil {
		t.Fatal("expected error for invalid month")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
}

func TestMemoryStoreRejectsInvalidEntry(t *testing.T) {
	s := New()
	_, err := s.Append(context.Background(), core.LedgerEntry{Kind: "refund", Date: time.Now(), Label: "x"})
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s.Len() != 0 {
		t.Error("invalid entries must not be stored")
	}
}
