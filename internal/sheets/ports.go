package sheets

import (
	"context"

	"cassa/internal/core"
)

// Ports for outbound export adapters.
type (
	LedgerWriter interface {
		Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}

	// LedgerLister returns the exported entries dated in the given month.
	LedgerLister interface {
		ListEntries(ctx context.Context, year int, month int) ([]core.LedgerEntry, error)
	}
)
