package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cassa/internal/core"
	ports "cassa/internal/sheets"
)

var (
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerLister = (*Store)(nil)
)

// Store keeps exported ledger entries in memory. It backs local runs and
// tests where no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	items []core.LedgerEntry
}

func New() *Store {
	return &Store{}
}

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) ListEntries(_ context.Context, year int, month int) ([]core.LedgerEntry, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.LedgerEntry
	for _, e := range s.items {
		d := e.Date.UTC()
		if d.Year() == year && d.Month() == time.Month(month) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports how many entries were appended.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
