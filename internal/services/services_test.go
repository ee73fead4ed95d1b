package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cassa/internal/core"
	"cassa/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	repo      *storage.SQLiteRepository
	clock     *core.MockClock
	inventory *InventoryService
	cart      *CartService
	expenses  *ExpenseService
	income    *IncomeService
	analytics *AnalyticsService
	reports   *ReportService
}

func newTestEnv(t *testing.T, opts ...CartOption) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "cassa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := core.NewMockClock(testNow)
	env := &testEnv{
		repo:      repo,
		clock:     clock,
		inventory: NewInventoryService(repo, clock),
		cart:      NewCartService(repo, clock, opts...),
		expenses:  NewExpenseService(repo, clock),
		income:    NewIncomeService(repo, clock),
	}
	env.analytics = NewAnalyticsService(env.expenses, env.income, env.inventory, clock)
	env.reports = NewReportService(env.analytics, env.expenses, clock)
	return env
}

func (e *testEnv) product(t *testing.T, name string, price float64, qty int) int64 {
	t.Helper()
	id, err := e.inventory.AddProduct(context.Background(), core.NewProduct{
		Name: name, Price: core.MoneyFromFloat(price), Quantity: qty,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) expense(t *testing.T, category string, amount float64, at time.Time) int64 {
	t.Helper()
	id, err := e.expenses.Add(context.Background(), core.NewExpense{
		Category: category, Amount: core.MoneyFromFloat(amount), Date: at,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) incomeEntry(t *testing.T, source string, amount float64, at time.Time) int64 {
	t.Helper()
	id, err := e.income.Add(context.Background(), core.NewIncome{
		Source: source, Amount: core.MoneyFromFloat(amount), Date: at,
	})
	require.NoError(t, err)
	return id
}

func daysAgo(d int) time.Time {
	return testNow.Add(-time.Duration(d) * 24 * time.Hour)
}
