package http

import (
	"context"
	"net/http"
	"strings"

	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/services"
)

// handleDashboard serves the combined analytics view, from cache when a
// fresh copy exists.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, services.DefaultWindowDays)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	d, err := s.getDashboard(r.Context(), days)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, d)
}

func (s *Server) handleVisualizationData(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Reports.VisualizationData(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Reports.Report(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpExport, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, services.DefaultWindowDays)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	summary, err := s.svc.Analytics.FinancialSummary(r.Context(), days)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleExpenseBreakdown(w http.ResponseWriter, r *http.Request) {
	s.writeBreakdown(w, r, s.svc.Analytics.ExpenseBreakdown)
}

func (s *Server) handleIncomeBreakdown(w http.ResponseWriter, r *http.Request) {
	s.writeBreakdown(w, r, s.svc.Analytics.IncomeBreakdown)
}

func (s *Server) writeBreakdown(w http.ResponseWriter, r *http.Request, get func(ctx context.Context, days int) (core.Breakdown, error)) {
	days, err := parseDays(r, services.DefaultWindowDays)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	b, err := get(r.Context(), days)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	if b == nil {
		b = core.Breakdown{}
	}
	writeJSON(w, b)
}

// topParams reads ?limit= and ?days= for the ranking views.
func topParams(r *http.Request) (limit, days int, err error) {
	if limit, err = parseIntQuery(r, "limit", services.DefaultTopLimit); err != nil {
		return 0, 0, err
	}
	if days, err = parseDays(r, services.DefaultWindowDays); err != nil {
		return 0, 0, err
	}
	return limit, days, nil
}

func (s *Server) handleTopExpenses(w http.ResponseWriter, r *http.Request) {
	limit, days, err := topParams(r)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpList, err)
		return
	}
	top, err := s.svc.Analytics.TopExpenses(r.Context(), limit, days)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpList, err)
		return
	}
	if top == nil {
		top = []core.Expense{}
	}
	writeJSON(w, top)
}

func (s *Server) handleTopIncome(w http.ResponseWriter, r *http.Request) {
	limit, days, err := topParams(r)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpList, err)
		return
	}
	top, err := s.svc.Analytics.TopIncomeSources(r.Context(), limit, days)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpList, err)
		return
	}
	if top == nil {
		top = []core.Income{}
	}
	writeJSON(w, top)
}

func (s *Server) handleProductAnalytics(w http.ResponseWriter, r *http.Request) {
	pa, err := s.svc.Analytics.ProductAnalytics(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, pa)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	months, err := parseIntQuery(r, "months", services.DefaultTrendMonths)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	points, err := s.svc.Analytics.MonthlyTrend(r.Context(), months)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, points)
}

// handleDaily totals a single day given as ?date=YYYY-MM-DD, today by default.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	daily, err := s.svc.Analytics.DailySummary(r.Context(), date)
	if err != nil {
		s.writeError(w, r, log.ComponentAnalytics, log.OpRead, err)
		return
	}
	writeJSON(w, daily)
}

func (s *Server) handleOutboxStats(w http.ResponseWriter, r *http.Request) {
	if s.svc.Outbox == nil {
		ErrorResponse(http.StatusServiceUnavailable, "event publishing is disabled").Write(w)
		return
	}
	stats, err := s.svc.Outbox.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentOutbox, log.OpRead, err)
		return
	}
	writeJSON(w, stats)
}

// handleOutboxRetry moves failed events back to pending.
func (s *Server) handleOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if s.svc.Outbox == nil {
		ErrorResponse(http.StatusServiceUnavailable, "event publishing is disabled").Write(w)
		return
	}
	n, err := s.svc.Outbox.RetryFailed(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentOutbox, log.OpUpdate, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Outbox events requeued", "count", n)

	NewJSONResponse().
		Success("Failed events requeued").
		Field("requeued", n).
		Write(w)
}
