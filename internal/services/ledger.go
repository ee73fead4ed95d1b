package services

import (
	"context"
	"fmt"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

// maxWindowDays caps a trailing window. Longer windows start at the zero
// time and cover every record.
const maxWindowDays = 700_000

// windowStart returns the start of a trailing window of days ending at now.
func windowStart(now time.Time, days int) time.Time {
	if days > maxWindowDays {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// ExpenseService records and queries expenses over trailing windows.
type ExpenseService struct {
	storage *storage.SQLiteRepository
	ledger  *storage.LedgerTable
	clock   core.Clock
}

func NewExpenseService(storage *storage.SQLiteRepository, clock core.Clock) *ExpenseService {
	return &ExpenseService{storage: storage, ledger: storage.Expenses(), clock: clock}
}

// Add records an expense and queues an expense.recorded event in the same
// transaction. Amounts are not sign checked.
func (s *ExpenseService) Add(ctx context.Context, e core.NewExpense) (int64, error) {
	now := s.clock.Now()
	e = e.WithDefaults(now)
	if err := e.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if id, err = tx.InsertExpense(ctx, e); err != nil {
			return err
		}
		return enqueueEntry(ctx, tx, amqp.EventExpenseRecorded, core.LedgerEntry{
			Kind:        core.EntryExpense,
			RefID:       id,
			Date:        e.Date,
			Label:       e.Category,
			Description: e.Description,
			Amount:      e.Amount,
			Method:      e.PaymentMethod,
		}, now)
	})
	if err != nil {
		return 0, fmt.Errorf("add expense: %w", err)
	}
	return id, nil
}

// GetRecent returns expenses from the last days, newest first.
func (s *ExpenseService) GetRecent(ctx context.Context, days int) ([]core.Expense, error) {
	if err := core.ValidateDays(days); err != nil {
		return nil, err
	}
	recs, err := s.ledger.Recent(ctx, windowStart(s.clock.Now(), days))
	if err != nil {
		return nil, err
	}
	return toExpenses(recs), nil
}

// TotalsByCategory sums expenses from the last days per category.
func (s *ExpenseService) TotalsByCategory(ctx context.Context, days int) (core.Breakdown, error) {
	if err := core.ValidateDays(days); err != nil {
		return nil, err
	}
	totals, err := s.ledger.TotalsByKey(ctx, windowStart(s.clock.Now(), days))
	return core.Breakdown(totals), err
}

func (s *ExpenseService) Total(ctx context.Context, days int) (core.Money, error) {
	if err := core.ValidateDays(days); err != nil {
		return core.Money{}, err
	}
	return s.ledger.Total(ctx, windowStart(s.clock.Now(), days))
}

// Top returns the limit largest expenses from the last days.
func (s *ExpenseService) Top(ctx context.Context, limit, days int) ([]core.Expense, error) {
	if err := validateTop(limit, days); err != nil {
		return nil, err
	}
	recs, err := s.ledger.Top(ctx, limit, windowStart(s.clock.Now(), days))
	if err != nil {
		return nil, err
	}
	return toExpenses(recs), nil
}

func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	if err := s.ledger.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// IncomeService mirrors ExpenseService for income, grouped by source.
type IncomeService struct {
	storage *storage.SQLiteRepository
	ledger  *storage.LedgerTable
	clock   core.Clock
}

func NewIncomeService(storage *storage.SQLiteRepository, clock core.Clock) *IncomeService {
	return &IncomeService{storage: storage, ledger: storage.Income(), clock: clock}
}

func (s *IncomeService) Add(ctx context.Context, i core.NewIncome) (int64, error) {
	now := s.clock.Now()
	i = i.WithDefaults(now)
	if err := i.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if id, err = tx.InsertIncome(ctx, i); err != nil {
			return err
		}
		return enqueueEntry(ctx, tx, amqp.EventIncomeRecorded, core.LedgerEntry{
			Kind:        core.EntryIncome,
			RefID:       id,
			Date:        i.Date,
			Label:       i.Source,
			Description: i.Description,
			Amount:      i.Amount,
			Method:      i.IncomeType,
		}, now)
	})
	if err != nil {
		return 0, fmt.Errorf("add income: %w", err)
	}
	return id, nil
}

func (s *IncomeService) GetRecent(ctx context.Context, days int) ([]core.Income, error) {
	if err := core.ValidateDays(days); err != nil {
		return nil, err
	}
	recs, err := s.ledger.Recent(ctx, windowStart(s.clock.Now(), days))
	if err != nil {
		return nil, err
	}
	return toIncome(recs), nil
}

// TotalsBySource sums income from the last days per source.
func (s *IncomeService) TotalsBySource(ctx context.Context, days int) (core.Breakdown, error) {
	if err := core.ValidateDays(days); err != nil {
		return nil, err
	}
	totals, err := s.ledger.TotalsByKey(ctx, windowStart(s.clock.Now(), days))
	return core.Breakdown(totals), err
}

func (s *IncomeService) Total(ctx context.Context, days int) (core.Money, error) {
	if err := core.ValidateDays(days); err != nil {
		return core.Money{}, err
	}
	return s.ledger.Total(ctx, windowStart(s.clock.Now(), days))
}

func (s *IncomeService) Top(ctx context.Context, limit, days int) ([]core.Income, error) {
	if err := validateTop(limit, days); err != nil {
		return nil, err
	}
	recs, err := s.ledger.Top(ctx, limit, windowStart(s.clock.Now(), days))
	if err != nil {
		return nil, err
	}
	return toIncome(recs), nil
}

func (s *IncomeService) Delete(ctx context.Context, id int64) error {
	if err := s.ledger.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return nil
}

func validateTop(limit, days int) error {
	if limit < 1 {
		return &core.ValidationError{Field: "limit", Message: "must be at least 1"}
	}
	return core.ValidateDays(days)
}

func toExpenses(recs []storage.LedgerRecord) []core.Expense {
	out := make([]core.Expense, len(recs))
	for i, r := range recs {
		out[i] = core.Expense{
			ID:            r.ID,
			Category:      r.Key,
			Amount:        r.Amount,
			Description:   r.Description,
			Date:          r.Date,
			PaymentMethod: r.Kind,
		}
	}
	return out
}

func toIncome(recs []storage.LedgerRecord) []core.Income {
	out := make([]core.Income, len(recs))
	for i, r := range recs {
		out[i] = core.Income{
			ID:          r.ID,
			Source:      r.Key,
			Amount:      r.Amount,
			Description: r.Description,
			Date:        r.Date,
			IncomeType:  r.Kind,
		}
	}
	return out
}
