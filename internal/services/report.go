package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"cassa/internal/core"
)

// DefaultExportDays is the window of the expenses CSV export.
const DefaultExportDays = 365

// ReportService formats analytics for export.
type ReportService struct {
	analytics *AnalyticsService
	expenses  *ExpenseService
	clock     core.Clock
}

func NewReportService(analytics *AnalyticsService, expenses *ExpenseService, clock core.Clock) *ReportService {
	return &ReportService{analytics: analytics, expenses: expenses, clock: clock}
}

// Report gathers the default analytics views into one document.
func (s *ReportService) Report(ctx context.Context) (core.Report, error) {
	d, err := s.analytics.Dashboard(ctx, DefaultWindowDays)
	if err != nil {
		return core.Report{}, fmt.Errorf("build report: %w", err)
	}
	return core.Report{
		GeneratedAt:      s.clock.Now(),
		Summary:          d.Summary,
		ExpenseBreakdown: d.ExpenseBreakdown,
		IncomeBreakdown:  d.IncomeBreakdown,
		MonthlyTrend:     d.MonthlyTrend,
		ProductAnalytics: d.ProductAnalytics,
		TopExpenses:      d.TopExpenses,
		TopIncome:        d.TopIncome,
	}, nil
}

var expenseCSVHeader = []string{"id", "category", "amount", "description", "date", "payment_method"}

// WriteExpensesCSV writes the expenses of the last days to w. It returns
// core.ErrNothingToExport without writing anything when there are none.
func (s *ReportService) WriteExpensesCSV(ctx context.Context, w io.Writer, days int) error {
	expenses, err := s.expenses.GetRecent(ctx, days)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		return core.ErrNothingToExport
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(expenseCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.Category,
			e.Amount.String(),
			e.Description,
			e.Date.Format("2006-01-02T15:04:05Z07:00"),
			e.PaymentMethod,
		}); err != nil {
			return fmt.Errorf("write csv row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// VisualizationData shapes the default breakdowns and trend for charts.
// Pie slices are sorted by label.
func (s *ReportService) VisualizationData(ctx context.Context) (core.VisualizationData, error) {
	expenses, err := s.analytics.ExpenseBreakdown(ctx, DefaultWindowDays)
	if err != nil {
		return core.VisualizationData{}, err
	}
	income, err := s.analytics.IncomeBreakdown(ctx, DefaultWindowDays)
	if err != nil {
		return core.VisualizationData{}, err
	}
	trend, err := s.analytics.MonthlyTrend(ctx, DefaultTrendMonths)
	if err != nil {
		return core.VisualizationData{}, err
	}

	v := core.VisualizationData{
		ExpensePie: pieChart(expenses),
		IncomePie:  pieChart(income),
	}
	for _, p := range trend {
		v.Trend.Months = append(v.Trend.Months, p.Month)
		v.Trend.Income = append(v.Trend.Income, p.Income.Float64())
		v.Trend.Expenses = append(v.Trend.Expenses, p.Expenses.Float64())
		v.Trend.Balance = append(v.Trend.Balance, p.Balance.Float64())
	}
	return v, nil
}

func pieChart(b core.Breakdown) core.PieChart {
	labels := make([]string, 0, len(b))
	for k := range b {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	pc := core.PieChart{Labels: labels, Values: make([]float64, len(labels))}
	for i, k := range labels {
		pc.Values[i] = b[k].Float64()
	}
	return pc
}
