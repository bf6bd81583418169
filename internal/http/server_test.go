package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"syndic/internal/billing"
	"syndic/internal/core"
	"syndic/internal/services"
	"syndic/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	alloc := billing.New(store)
	payments := services.NewPaymentService(store, alloc, nil)
	reports := services.NewReportService(store, alloc, nil)
	payments.OnChange(reports.Invalidate)
	detector := services.NewAlertDetector(store, alloc, services.NewThresholdPolicy(), nil)
	return NewServer(":0", store, payments, reports, detector)
}

func doJSON(t *testing.T, srv *Server, method, path string, orgID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if orgID > 0 {
		req.Header.Set(orgHeader, fmt.Sprintf("%d", orgID))
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func createOrg(t *testing.T, srv *Server, name, slug string) organizationResponse {
	t.Helper()
	rr := doJSON(t, srv, http.MethodPost, "/api/organizations", 0,
		fmt.Sprintf(`{"name":%q,"slug":%q,"email":"board@example.org"}`, name, slug))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create organization: %d %s", rr.Code, rr.Body.String())
	}
	var org organizationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &org); err != nil {
		t.Fatalf("decode organization: %v", err)
	}
	return org
}

func createApartment(t *testing.T, srv *Server, orgID, blockID int64, number string) apartmentResponse {
	t.Helper()
	rr := doJSON(t, srv, http.MethodPost, "/api/apartments", orgID,
		fmt.Sprintf(`{"block_id":%d,"number":%q,"monthly_fee":"100.00"}`, blockID, number))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create apartment: %d %s", rr.Code, rr.Body.String())
	}
	var apt apartmentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &apt); err != nil {
		t.Fatalf("decode apartment: %v", err)
	}
	return apt
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := doJSON(t, srv, http.MethodGet, path, 0, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestMissingOrganizationHeader(t *testing.T) {
	srv := newTestServer(t)
	rr := doJSON(t, srv, http.MethodGet, "/api/apartments", 0, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without org header, got %d", rr.Code)
	}
}

func TestPaymentFlow(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Les Pins", "les-pins")

	rr := doJSON(t, srv, http.MethodPost, "/api/blocks", org.ID, `{"name":"A"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create block: %d %s", rr.Code, rr.Body.String())
	}
	var block blockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &block); err != nil {
		t.Fatalf("decode block: %v", err)
	}

	apt := createApartment(t, srv, org.ID, block.ID, "12")
	if apt.MonthlyFeeCents != 10000 {
		t.Fatalf("monthly fee %d, want 10000", apt.MonthlyFeeCents)
	}

	// 250.00 against a 100.00 fee: two whole months covered, 50.00 banked.
	rr = doJSON(t, srv, http.MethodPost, "/api/payments", org.ID,
		fmt.Sprintf(`{"apartment_id":%d,"amount":"250.00","payment_date":%q}`, apt.ID, today()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("allocate payment: %d %s", rr.Code, rr.Body.String())
	}
	var alloc allocateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &alloc); err != nil {
		t.Fatalf("decode allocation: %v", err)
	}
	if len(alloc.MonthsCovered) != 2 || alloc.CreditBalanceCents != 5000 {
		t.Fatalf("allocation = %+v, want 2 months and 5000 credit", alloc)
	}
	thisMonth := core.MonthOf(time.Now().UTC())
	if alloc.MonthsCovered[0] != thisMonth.String() {
		t.Fatalf("first covered month %s, want %s", alloc.MonthsCovered[0], thisMonth)
	}

	rr = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/apartments/%d/billing", apt.ID), org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("billing status: %d %s", rr.Code, rr.Body.String())
	}
	var status billingStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode billing status: %v", err)
	}
	if status.UnpaidMonths != 0 {
		t.Fatalf("unpaid months %d, want 0", status.UnpaidMonths)
	}
	if status.CreditBalanceCents != 5000 {
		t.Fatalf("credit %d, want 5000", status.CreditBalanceCents)
	}
	if want := thisMonth.Next().Next().String(); status.NextUnpaidMonth != want {
		t.Fatalf("next unpaid %s, want %s", status.NextUnpaidMonth, want)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/payments", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list payments: %d", rr.Code)
	}
	var payments []paymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payments); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("got %d payments, want 2", len(payments))
	}
}

func TestAllocateValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Sud", "residence-sud")
	apt := createApartment(t, srv, org.ID, 0, "1")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad amount", fmt.Sprintf(`{"apartment_id":%d,"amount":"abc","payment_date":%q}`, apt.ID, today()), http.StatusUnprocessableEntity},
		{"zero amount", fmt.Sprintf(`{"apartment_id":%d,"amount":"0","payment_date":%q}`, apt.ID, today()), http.StatusUnprocessableEntity},
		{"bad date", fmt.Sprintf(`{"apartment_id":%d,"amount":"100.00","payment_date":"yesterday"}`, apt.ID), http.StatusUnprocessableEntity},
		{"bad start month", fmt.Sprintf(`{"apartment_id":%d,"amount":"100.00","payment_date":%q,"start_month":"2024-13"}`, apt.ID, today()), http.StatusUnprocessableEntity},
		{"signed start month", fmt.Sprintf(`{"apartment_id":%d,"amount":"100.00","payment_date":%q,"start_month":"2024-+9"}`, apt.ID, today()), http.StatusUnprocessableEntity},
		{"unknown apartment", fmt.Sprintf(`{"apartment_id":9999,"amount":"100.00","payment_date":%q}`, today()), http.StatusNotFound},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/payments", org.ID, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestUpdatePaymentConflict(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Nord", "residence-nord")
	apt := createApartment(t, srv, org.ID, 0, "7")

	rr := doJSON(t, srv, http.MethodPost, "/api/payments", org.ID,
		fmt.Sprintf(`{"apartment_id":%d,"amount":"200.00","payment_date":%q}`, apt.ID, today()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("allocate: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/payments", org.ID, "")
	var payments []paymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payments); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("got %d payments, want 2", len(payments))
	}

	// Move one payment onto the other's month.
	rr = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/payments/%d", payments[0].ID), org.ID,
		fmt.Sprintf(`{"month_paid":%q}`, payments[1].MonthPaid))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate month, got %d (body %s)", rr.Code, rr.Body.String())
	}
}

func TestReportsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Est", "residence-est")
	apt := createApartment(t, srv, org.ID, 0, "3")

	rr := doJSON(t, srv, http.MethodPost, "/api/payments", org.ID,
		fmt.Sprintf(`{"apartment_id":%d,"amount":"100.00","payment_date":%q}`, apt.ID, today()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("allocate: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, srv, http.MethodPost, "/api/expenses", org.ID,
		fmt.Sprintf(`{"amount":"30.00","expense_date":%q,"category":"maintenance","description":"elevator"}`, today()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", rr.Code, rr.Body.String())
	}

	thisMonth := core.MonthOf(time.Now().UTC()).String()

	rr = doJSON(t, srv, http.MethodGet, "/api/reports/treasury", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("treasury: %d %s", rr.Code, rr.Body.String())
	}
	var treasury treasuryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &treasury); err != nil {
		t.Fatalf("decode treasury: %v", err)
	}
	if len(treasury.Months) != 12 {
		t.Fatalf("treasury months %d, want 12", len(treasury.Months))
	}
	if treasury.BalanceCents[thisMonth] != 7000 {
		t.Fatalf("balance for %s = %d, want 7000", thisMonth, treasury.BalanceCents[thisMonth])
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/reports/coverage", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("coverage: %d %s", rr.Code, rr.Body.String())
	}
	var coverage coverageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &coverage); err != nil {
		t.Fatalf("decode coverage: %v", err)
	}
	if len(coverage.Months) != 15 {
		t.Fatalf("coverage months %d, want 15", len(coverage.Months))
	}
	if len(coverage.Rows) != 1 || coverage.Rows[0].UnpaidCount != 0 {
		t.Fatalf("coverage rows = %+v", coverage.Rows)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/dashboard", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", rr.Code, rr.Body.String())
	}
	var dash dashboardResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Apartments != 1 || dash.MonthRevenueCents != 10000 || dash.MonthExpensesCents != 3000 {
		t.Fatalf("dashboard = %+v", dash)
	}
}

func TestAlertScanEndpoint(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Ouest", "residence-ouest")

	// One unpaid month is below the alert threshold: no alert raised.
	createApartment(t, srv, org.ID, 0, "5")

	rr := doJSON(t, srv, http.MethodPost, "/api/alerts/scan", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("scan: %d %s", rr.Code, rr.Body.String())
	}
	var result map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode scan result: %v", err)
	}
	if result["alerts_raised"] != 0 {
		t.Fatalf("raised %d alerts, want 0", result["alerts_raised"])
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/alerts", org.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list alerts: %d", rr.Code)
	}
}

func TestApartmentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	org := createOrg(t, srv, "Residence Centre", "residence-centre")
	apt := createApartment(t, srv, org.ID, 0, "9")

	rr := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/apartments/%d", apt.ID), org.ID,
		`{"monthly_fee":"120.00"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update apartment: %d %s", rr.Code, rr.Body.String())
	}
	var updated apartmentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode apartment: %v", err)
	}
	if updated.MonthlyFeeCents != 12000 {
		t.Fatalf("monthly fee %d, want 12000", updated.MonthlyFeeCents)
	}
	if updated.Number != "9" {
		t.Fatalf("number %q changed by fee update", updated.Number)
	}

	rr = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/apartments/%d", apt.ID), org.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete apartment: %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/apartments/%d/billing", apt.ID), org.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("billing after delete: %d, want 404", rr.Code)
	}
}

func TestOrganizationIsolation(t *testing.T) {
	srv := newTestServer(t)
	first := createOrg(t, srv, "First", "first")
	second := createOrg(t, srv, "Second", "second")
	apt := createApartment(t, srv, first.ID, 0, "1")

	// The second organization must not see or touch the first's apartment.
	rr := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/apartments/%d/billing", apt.ID), second.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-org billing: %d, want 404", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodPost, "/api/payments", second.ID,
		fmt.Sprintf(`{"apartment_id":%d,"amount":"100.00","payment_date":%q}`, apt.ID, today()))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-org allocation: %d, want 404", rr.Code)
	}
}
