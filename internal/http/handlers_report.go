package http

import (
	"net/http"
	"time"

	"syndic/internal/core"
)

type treasuryRowResponse struct {
	ApartmentID int64            `json:"apartment_id"`
	Label       string           `json:"label"`
	CashCents   map[string]int64 `json:"cash_cents"`
}

type treasuryResponse struct {
	Months        []string              `json:"months"`
	Rows          []treasuryRowResponse `json:"rows"`
	ExpensesCents map[string]int64      `json:"expenses_cents"`
	BalanceCents  map[string]int64      `json:"balance_cents"`
}

func (s *Server) handleTreasuryReport(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	report, err := s.reports.Treasury(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := treasuryResponse{
		Months:        monthStrings(report.Months),
		Rows:          make([]treasuryRowResponse, 0, len(report.Rows)),
		ExpensesCents: moneyByMonth(report.Expenses),
		BalanceCents:  moneyByMonth(report.Balance),
	}
	for _, row := range report.Rows {
		resp.Rows = append(resp.Rows, treasuryRowResponse{
			ApartmentID: row.ApartmentID,
			Label:       row.Label,
			CashCents:   moneyByMonth(row.Months),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func moneyByMonth(m map[core.MonthKey]core.Money) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k.String()] = v.Cents
	}
	return out
}

type coverageRowResponse struct {
	ApartmentID        int64           `json:"apartment_id"`
	Label              string          `json:"label"`
	MonthlyFeeCents    int64           `json:"monthly_fee_cents"`
	CreditBalanceCents int64           `json:"credit_balance_cents"`
	Covered            map[string]bool `json:"covered"`
	UnpaidCount        int             `json:"unpaid_count"`
}

type coverageResponse struct {
	Months []string              `json:"months"`
	Rows   []coverageRowResponse `json:"rows"`
}

func (s *Server) handleCoverageReport(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	report, err := s.reports.Coverage(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := coverageResponse{
		Months: monthStrings(report.Months),
		Rows:   make([]coverageRowResponse, 0, len(report.Rows)),
	}
	for _, row := range report.Rows {
		covered := make(map[string]bool, len(row.Covered))
		for k, v := range row.Covered {
			covered[k.String()] = v
		}
		resp.Rows = append(resp.Rows, coverageRowResponse{
			ApartmentID:        row.ApartmentID,
			Label:              row.Label,
			MonthlyFeeCents:    row.MonthlyFee.Cents,
			CreditBalanceCents: row.CreditBalance.Cents,
			Covered:            covered,
			UnpaidCount:        row.UnpaidCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type dashboardResponse struct {
	Apartments         int   `json:"apartments"`
	Blocks             int   `json:"blocks"`
	TotalCreditCents   int64 `json:"total_credit_cents"`
	UnpaidApartments   int   `json:"unpaid_apartments"`
	ActiveAlerts       int   `json:"active_alerts"`
	MonthRevenueCents  int64 `json:"month_revenue_cents"`
	MonthExpensesCents int64 `json:"month_expenses_cents"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	summary, err := s.reports.Summary(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Apartments:         summary.Apartments,
		Blocks:             summary.Blocks,
		TotalCreditCents:   summary.TotalCredit.Cents,
		UnpaidApartments:   summary.UnpaidCount,
		ActiveAlerts:       summary.ActiveAlerts,
		MonthRevenueCents:  summary.MonthRevenue.Cents,
		MonthExpensesCents: summary.MonthExpenses.Cents,
	})
}

type alertResponse struct {
	ID           int64     `json:"id"`
	ApartmentID  int64     `json:"apartment_id"`
	MonthsUnpaid int       `json:"months_unpaid"`
	AlertDate    time.Time `json:"alert_date"`
	EmailSent    bool      `json:"email_sent"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	alerts, err := s.store.ListAlerts(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			ID:           a.ID,
			ApartmentID:  a.ApartmentID,
			MonthsUnpaid: a.MonthsUnpaid,
			AlertDate:    a.AlertDate,
			EmailSent:    a.EmailSent,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMarkAlertSent flips the alert's sent flag, for deployments that
// dispatch notifications outside the worker.
func (s *Server) handleMarkAlertSent(w http.ResponseWriter, r *http.Request) {
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
	if err := s.store.MarkAlertSent(r.Context(), org, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScanAlerts triggers an on-demand unpaid scan for the calling
// organization, outside the worker's schedule.
func (s *Server) handleScanAlerts(w http.ResponseWriter, r *http.Request) {
	org, err := orgID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	raised, err := s.detector.ScanOrganization(r.Context(), org)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"alerts_raised": raised})
}
