package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"cassa/internal/core"
)

const (
	DefaultWindowDays  = 30
	DefaultTopLimit    = 5
	DefaultTrendMonths = 6

	// trendBucket is the fixed width of a monthly trend bucket. Buckets are
	// not aligned to calendar months.
	trendBucket = 30 * 24 * time.Hour
	maxTrend    = 120
)

// AnalyticsService composes read-only views over the ledgers and inventory.
type AnalyticsService struct {
	expenses  *ExpenseService
	income    *IncomeService
	inventory *InventoryService
	clock     core.Clock
}

func NewAnalyticsService(expenses *ExpenseService, income *IncomeService, inventory *InventoryService, clock core.Clock) *AnalyticsService {
	return &AnalyticsService{expenses: expenses, income: income, inventory: inventory, clock: clock}
}

// FinancialSummary reports totals, balance and savings rate for the last
// days. The savings rate is zero when there is no positive income.
func (s *AnalyticsService) FinancialSummary(ctx context.Context, days int) (core.FinancialSummary, error) {
	income, err := s.income.Total(ctx, days)
	if err != nil {
		return core.FinancialSummary{}, err
	}
	expenses, err := s.expenses.Total(ctx, days)
	if err != nil {
		return core.FinancialSummary{}, err
	}

	balance := income.Sub(expenses)
	return core.FinancialSummary{
		PeriodDays:    days,
		TotalIncome:   income,
		TotalExpenses: expenses,
		Balance:       balance,
		SavingsRate:   core.Percent(balance, income),
	}, nil
}

func (s *AnalyticsService) ExpenseBreakdown(ctx context.Context, days int) (core.Breakdown, error) {
	return s.expenses.TotalsByCategory(ctx, days)
}

func (s *AnalyticsService) IncomeBreakdown(ctx context.Context, days int) (core.Breakdown, error) {
	return s.income.TotalsBySource(ctx, days)
}

func (s *AnalyticsService) TopExpenses(ctx context.Context, limit, days int) ([]core.Expense, error) {
	return s.expenses.Top(ctx, limit, days)
}

func (s *AnalyticsService) TopIncomeSources(ctx context.Context, limit, days int) ([]core.Income, error) {
	return s.income.Top(ctx, limit, days)
}

func (s *AnalyticsService) ProductAnalytics(ctx context.Context) (core.ProductAnalytics, error) {
	return s.inventory.Analytics(ctx)
}

// MonthlyTrend returns one point per fixed 30-day bucket counting back from
// now, oldest first. Bucket bounds are inclusive, so an entry dated exactly
// on a boundary is counted in both neighbouring buckets.
func (s *AnalyticsService) MonthlyTrend(ctx context.Context, months int) ([]core.TrendPoint, error) {
	if months < 1 || months > maxTrend {
		return nil, &core.ValidationError{Field: "months", Message: "must be between 1 and 120"}
	}

	now := s.clock.Now()
	points := make([]core.TrendPoint, 0, months)
	for i := months; i >= 1; i-- {
		start := now.Add(-time.Duration(i) * trendBucket)
		end := start.Add(trendBucket)

		income, err := s.income.ledger.TotalBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		expenses, err := s.expenses.ledger.TotalBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}

		points = append(points, core.TrendPoint{
			Month:    start.Format("January 2006"),
			Income:   income,
			Expenses: expenses,
			Balance:  income.Sub(expenses),
		})
	}
	return points, nil
}

// DailySummary totals one UTC calendar day given as YYYY-MM-DD. An empty
// date means today.
func (s *AnalyticsService) DailySummary(ctx context.Context, date string) (core.DailySummary, error) {
	day := s.clock.Now()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return core.DailySummary{}, &core.ValidationError{Field: "date", Message: "must be formatted as YYYY-MM-DD"}
		}
		day = parsed
	}

	income, err := s.income.ledger.TotalOn(ctx, day)
	if err != nil {
		return core.DailySummary{}, err
	}
	expenses, err := s.expenses.ledger.TotalOn(ctx, day)
	if err != nil {
		return core.DailySummary{}, err
	}

	return core.DailySummary{
		Date:     day.UTC().Format("2006-01-02"),
		Income:   income,
		Expenses: expenses,
		Balance:  income.Sub(expenses),
	}, nil
}

// Dashboard gathers every view for the last days concurrently.
func (s *AnalyticsService) Dashboard(ctx context.Context, days int) (core.Dashboard, error) {
	if err := core.ValidateDays(days); err != nil {
		return core.Dashboard{}, err
	}

	var d core.Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.Summary, err = s.FinancialSummary(gctx, days)
		return err
	})
	g.Go(func() (err error) {
		d.ExpenseBreakdown, err = s.ExpenseBreakdown(gctx, days)
		return err
	})
	g.Go(func() (err error) {
		d.IncomeBreakdown, err = s.IncomeBreakdown(gctx, days)
		return err
	})
	g.Go(func() (err error) {
		d.MonthlyTrend, err = s.MonthlyTrend(gctx, DefaultTrendMonths)
		return err
	})
	g.Go(func() (err error) {
		d.TopExpenses, err = s.TopExpenses(gctx, DefaultTopLimit, days)
		return err
	})
	g.Go(func() (err error) {
		d.TopIncome, err = s.TopIncomeSources(gctx, DefaultTopLimit, days)
		return err
	})
	g.Go(func() (err error) {
		d.ProductAnalytics, err = s.ProductAnalytics(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}
	return d, nil
}
