package http

import (
	"net/http"

	"syndic/internal/billing"
	"syndic/internal/core"
)

type allocateRequest struct {
	ApartmentID int64  `json:"apartment_id"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
	Description string `json:"description"`
	StartMonth  string `json:"start_month"`
}

type allocateResponse struct {
	MonthsCovered      []string `json:"months_covered"`
	SkippedMonths      []string `json:"skipped_months"`
	TotalRecordedCents int64    `json:"total_recorded_cents"`
	CreditUsedCents    int64    `json:"credit_used_cents"`
	CreditBalanceCents int64    `json:"credit_balance_cents"`
	StartMonth         string   `json:"start_month,omitempty"`
	Manual             bool     `json:"manual"`
	Banked             bool     `json:"banked"`
}

func (s *Server) handleAllocatePayment(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req allocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	date, err := parseDate(req.PaymentDate)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	result, err := s.payments.Allocate(r.Context(), billing.AllocationRequest{
		OrganizationID: org,
		ApartmentID:    req.ApartmentID,
		Amount:         amount,
		PaymentDate:    date,
		Description:    sanitizeInput(req.Description),
		StartMonth:     sanitizeInput(req.StartMonth),
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := allocateResponse{
		MonthsCovered:      monthStrings(result.MonthsCovered),
		SkippedMonths:      monthStrings(result.Skipped),
		TotalRecordedCents: result.TotalRecorded.Cents,
		CreditUsedCents:    result.CreditUsed.Cents,
		CreditBalanceCents: result.CreditBalance.Cents,
		Manual:             result.Manual,
		Banked:             result.Banked,
	}
	if !result.Banked {
		resp.StartMonth = result.StartMonth.String()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func monthStrings(months []core.MonthKey) []string {
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	return out
}

type paymentResponse struct {
	ID              int64  `json:"id"`
	ApartmentID     int64  `json:"apartment_id"`
	AmountCents     int64  `json:"amount_cents"`
	PaymentDate     string `json:"payment_date"`
	MonthPaid       string `json:"month_paid"`
	CreditUsedCents int64  `json:"credit_used_cents"`
	Description     string `json:"description"`
}

func paymentToResponse(p core.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		ApartmentID:     p.ApartmentID,
		AmountCents:     p.Amount.Cents,
		PaymentDate:     p.PaymentDate.Format("2006-01-02"),
		MonthPaid:       p.MonthPaid.String(),
		CreditUsedCents: p.CreditUsed.Cents,
		Description:     p.Description,
	}
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	payments, err := s.store.ListPayments(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentToResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type paymentUpdateRequest struct {
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
	MonthPaid   string `json:"month_paid"`
	Description string `json:"description"`
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
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
	var req paymentUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.store.PaymentByID(r.Context(), org, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if req.Amount != "" {
		amount, err := core.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		p.Amount = amount
	}
	if req.PaymentDate != "" {
		date, err := parseDate(req.PaymentDate)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		p.PaymentDate = date
	}
	if req.MonthPaid != "" {
		month, err := core.ParseMonthKey(req.MonthPaid)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		p.MonthPaid = month
	}
	if req.Description != "" {
		p.Description = sanitizeInput(req.Description)
	}

	if err := s.payments.UpdatePayment(r.Context(), p); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentToResponse(p))
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
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
	if err := s.payments.DeletePayment(r.Context(), org, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
