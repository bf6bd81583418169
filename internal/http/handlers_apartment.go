package http

import (
	"net/http"
	"time"

	"syndic/internal/core"
)

type blockRequest struct {
	Name string `json:"name"`
}

type blockResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	block := core.Block{
		OrganizationID: org,
		Name:           sanitizeInput(req.Name),
	}
	if err := block.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.CreateBlock(r.Context(), &block); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, blockResponse{ID: block.ID, Name: block.Name})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	blocks, err := s.store.ListBlocks(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]blockResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockResponse{ID: b.ID, Name: b.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

type apartmentRequest struct {
	BlockID    int64  `json:"block_id"`
	Number     string `json:"number"`
	MonthlyFee string `json:"monthly_fee"`
}

type apartmentResponse struct {
	ID                 int64     `json:"id"`
	BlockID            int64     `json:"block_id"`
	Number             string    `json:"number"`
	MonthlyFeeCents    int64     `json:"monthly_fee_cents"`
	CreditBalanceCents int64     `json:"credit_balance_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

func apartmentToResponse(apt core.Apartment) apartmentResponse {
	return apartmentResponse{
		ID:                 apt.ID,
		BlockID:            apt.BlockID,
		Number:             apt.Number,
		MonthlyFeeCents:    apt.MonthlyFee.Cents,
		CreditBalanceCents: apt.CreditBalance.Cents,
		CreatedAt:          apt.CreatedAt,
	}
}

func (s *Server) handleCreateApartment(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req apartmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fee, err := core.ParseAmount(req.MonthlyFee)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	apt := core.Apartment{
		OrganizationID: org,
		BlockID:        req.BlockID,
		Number:         sanitizeInput(req.Number),
		MonthlyFee:     fee,
	}
	if err := apt.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.CreateApartment(r.Context(), &apt); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, apartmentToResponse(apt))
}

func (s *Server) handleListApartments(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	apartments, err := s.store.ListApartments(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]apartmentResponse, 0, len(apartments))
	for _, apt := range apartments {
		out = append(out, apartmentToResponse(apt))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateApartment(w http.ResponseWriter, r *http.Request) {
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
	var req apartmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	apt, err := s.store.ApartmentByID(r.Context(), org, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if req.Number != "" {
		apt.Number = sanitizeInput(req.Number)
	}
	if req.BlockID != 0 {
		apt.BlockID = req.BlockID
	}
	if req.MonthlyFee != "" {
		fee, err := core.ParseAmount(req.MonthlyFee)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		apt.MonthlyFee = fee
	}
	if err := apt.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.store.UpdateApartment(r.Context(), apt); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.reports.Invalidate(org)
	writeJSON(w, http.StatusOK, apartmentToResponse(apt))
}

func (s *Server) handleDeleteApartment(w http.ResponseWriter, r *http.Request) {
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
	if err := s.store.DeleteApartment(r.Context(), org, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.reports.Invalidate(org)
	w.WriteHeader(http.StatusNoContent)
}

type billingStatusResponse struct {
	ApartmentID        int64  `json:"apartment_id"`
	UnpaidMonths       int    `json:"unpaid_months"`
	NextUnpaidMonth    string `json:"next_unpaid_month"`
	MonthlyFeeCents    int64  `json:"monthly_fee_cents"`
	CreditBalanceCents int64  `json:"credit_balance_cents"`
}

func (s *Server) handleBillingStatus(w http.ResponseWriter, r *http.Request) {
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
	status, err := s.payments.Status(r.Context(), org, id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, billingStatusResponse{
		ApartmentID:        status.ApartmentID,
		UnpaidMonths:       status.UnpaidMonths,
		NextUnpaidMonth:    status.NextUnpaid.String(),
		MonthlyFeeCents:    status.MonthlyFee.Cents,
		CreditBalanceCents: status.CreditBalance.Cents,
	})
}
