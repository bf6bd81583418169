package http

import (
	"net/http"
	"time"

	"syndic/internal/core"
)

type organizationRequest struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type organizationResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func organizationToResponse(org core.Organization) organizationResponse {
	return organizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		Email:     org.Email,
		Phone:     org.Phone,
		Address:   org.Address,
		Active:    org.Active,
		CreatedAt: org.CreatedAt,
	}
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	org := core.Organization{
		Name:    sanitizeInput(req.Name),
		Slug:    sanitizeInput(req.Slug),
		Email:   sanitizeInput(req.Email),
		Phone:   sanitizeInput(req.Phone),
		Address: sanitizeInput(req.Address),
		Active:  true,
	}
	if err := org.Validate(); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	if err := s.store.CreateOrganization(r.Context(), &org); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, organizationToResponse(org))
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.ListOrganizations(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]organizationResponse, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, organizationToResponse(org))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	org, err := s.store.OrganizationByID(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, organizationToResponse(org))
}
