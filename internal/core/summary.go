package core

import "time"

// FinancialSummary aggregates income and expenses over a trailing window.
type FinancialSummary struct {
	PeriodDays    int     `json:"period_days"`
	TotalIncome   Money   `json:"total_income"`
	TotalExpenses Money   `json:"total_expenses"`
	Balance       Money   `json:"balance"`
	SavingsRate   float64 `json:"savings_rate"`
}

// Breakdown maps a category or source to its summed amount.
type Breakdown map[string]Money

// ProductAnalytics describes the current inventory.
type ProductAnalytics struct {
	TotalProducts       int       `json:"total_products"`
	TotalInventoryValue Money     `json:"total_inventory_value"`
	LowStockProducts    []Product `json:"low_stock_products"`
	LowStockCount       int       `json:"low_stock_count"`
	Categories          []string  `json:"categories"`
}

// TrendPoint is one fixed 30-day bucket of the monthly trend.
type TrendPoint struct {
	Month    string `json:"month"`
	Income   Money  `json:"income"`
	Expenses Money  `json:"expenses"`
	Balance  Money  `json:"balance"`
}

// DailySummary holds totals for a single UTC calendar day.
type DailySummary struct {
	Date     string `json:"date"`
	Income   Money  `json:"income"`
	Expenses Money  `json:"expenses"`
	Balance  Money  `json:"balance"`
}

// Dashboard is the composite view served by the dashboard endpoint.
type Dashboard struct {
	Summary          FinancialSummary `json:"summary"`
	ExpenseBreakdown Breakdown        `json:"expense_breakdown"`
	IncomeBreakdown  Breakdown        `json:"income_breakdown"`
	MonthlyTrend     []TrendPoint     `json:"monthly_trend"`
	TopExpenses      []Expense        `json:"top_expenses"`
	TopIncome        []Income         `json:"top_income"`
	ProductAnalytics ProductAnalytics `json:"product_analytics"`
}

// Report is the full analytics export.
type Report struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	Summary          FinancialSummary `json:"financial_summary"`
	ExpenseBreakdown Breakdown        `json:"expense_breakdown"`
	IncomeBreakdown  Breakdown        `json:"income_breakdown"`
	MonthlyTrend     []TrendPoint     `json:"monthly_trend"`
	ProductAnalytics ProductAnalytics `json:"product_analytics"`
	TopExpenses      []Expense        `json:"top_expenses"`
	TopIncome        []Income         `json:"top_income"`
}

// PieChart and LineChart are chart-ready payloads.
type PieChart struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type LineChart struct {
	Months   []string  `json:"months"`
	Income   []float64 `json:"income"`
	Expenses []float64 `json:"expenses"`
	Balance  []float64 `json:"balance"`
}

type VisualizationData struct {
	ExpensePie PieChart  `json:"pie_chart_expenses"`
	IncomePie  PieChart  `json:"pie_chart_income"`
	Trend      LineChart `json:"line_chart_trend"`
}
