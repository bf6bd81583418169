package http

import (
	"net/http"

	"syndic/internal/core"
)

type expenseRequest struct {
	Amount      string `json:"amount"`
	ExpenseDate string `json:"expense_date"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	ExpenseDate string `json:"expense_date"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func expenseToResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		AmountCents: e.Amount.Cents,
		ExpenseDate: e.ExpenseDate.Format("2006-01-02"),
		Category:    e.Category,
		Description: e.Description,
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	date, err := parseDate(req.ExpenseDate)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	expense := core.Expense{
		OrganizationID: org,
		Amount:         amount,
		ExpenseDate:    date,
		Category:       sanitizeInput(req.Category),
		Description:    sanitizeInput(req.Description),
	}
	if err := expense.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.CreateExpense(r.Context(), &expense); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.reports.Invalidate(org)
	writeJSON(w, http.StatusCreated, expenseToResponse(expense))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	expenses, err := s.store.ListExpenses(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseToResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	expenses, err := s.store.ListExpenses(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	var expense core.Expense
	found := false
	for _, e := range expenses {
		if e.ID == id {
			expense = e
			found = true
			break
		}
	}
	if !found {
		writeError(w, r, http.StatusNotFound, core.ErrNotFound)
		return
	}

	if req.Amount != "" {
		amount, err := core.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		expense.Amount = amount
	}
	if req.ExpenseDate != "" {
		date, err := parseDate(req.ExpenseDate)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		expense.ExpenseDate = date
	}
	if req.Category != "" {
		expense.Category = sanitizeInput(req.Category)
	}
	if req.Description != "" {
		expense.Description = sanitizeInput(req.Description)
	}
	if err := expense.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.UpdateExpense(r.Context(), expense); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.reports.Invalidate(org)
	writeJSON(w, http.StatusOK, expenseToResponse(expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteExpense(r.Context(), org, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.reports.Invalidate(org)
	w.WriteHeader(http.StatusNoContent)
}
