package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, services.DefaultWindowDays)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpList, err)
		return
	}
	expenses, err := s.svc.Expenses.GetRecent(r.Context(), days)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpList, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}
	e, err := req.toDomain()
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}

	id, err := s.svc.Expenses.Add(r.Context(), e)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}
	s.mutated()

	s.events.LogLedgerEntry(r.Context(), core.LedgerEntry{
		Kind:   core.EntryExpense,
		RefID:  id,
		Label:  e.Category,
		Amount: e.Amount,
	})

	NewJSONResponse().
		Status(http.StatusCreated).
		Success("Expense added successfully").
		Field("expense_id", id).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpDelete, err)
		return
	}
	if err := s.svc.Expenses.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpDelete, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Expense deleted successfully").
		Field("expense_id", id).
		Write(w)
}

// handleExportExpensesCSV streams the recent expenses as a CSV attachment.
// The file is rendered in memory first so a failure still yields a JSON error.
func (s *Server) handleExportExpensesCSV(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, services.DefaultExportDays)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Reports.WriteExpensesCSV(r.Context(), &buf, days); err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpExport, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses_%dd.csv"`, days))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r, services.DefaultWindowDays)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpList, err)
		return
	}
	income, err := s.svc.Income.GetRecent(r.Context(), days)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpList, err)
		return
	}
	if income == nil {
		income = []core.Income{}
	}
	writeJSON(w, income)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req createIncomeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}
	in, err := req.toDomain()
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}

	id, err := s.svc.Income.Add(r.Context(), in)
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpCreate, err)
		return
	}
	s.mutated()

	s.events.LogLedgerEntry(r.Context(), core.LedgerEntry{
		Kind:   core.EntryIncome,
		RefID:  id,
		Label:  in.Source,
		Amount: in.Amount,
	})

	NewJSONResponse().
		Status(http.StatusCreated).
		Success("Income added successfully").
		Field("income_id", id).
		Write(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpDelete, err)
		return
	}
	if err := s.svc.Income.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, log.ComponentLedger, log.OpDelete, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Income deleted successfully").
		Field("income_id", id).
		Write(w)
}
