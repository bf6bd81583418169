package services

import (
	"context"
	"testing"
	"time"

	"syndic/internal/billing"
	"syndic/internal/core"
	"syndic/internal/storage/memory"
)

func TestReportServiceTreasuryCaching(t *testing.T) {
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC) }
	alloc := billing.New(store, billing.WithClock(clock))
	apt := seedApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "1")

	reports := NewReportService(store, alloc, nil)
	reports.now = clock
	payments := NewPaymentService(store, alloc, nil)
	payments.OnChange(reports.Invalidate)
	ctx := context.Background()

	first, err := reports.Treasury(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if len(first.Months) != 12 {
		t.Fatalf("treasury window has %d months, want 12", len(first.Months))
	}

	if _, err := payments.Allocate(ctx, billing.AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 10000},
		PaymentDate:    core.NewDate(2024, 4, 10),
	}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// The mutation invalidated the cache; the rebuilt report sees the
	// new cash in April.
	second, err := reports.Treasury(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("treasury after payment: %v", err)
	}
	april := core.NewMonthKey(2024, time.April)
	if len(second.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(second.Rows))
	}
	if got := second.Rows[0].Months[april].Cents; got != 10000 {
		t.Fatalf("April cash %d, want 10000", got)
	}
	if got := second.Balance[april].Cents; got != 10000 {
		t.Fatalf("April balance %d, want 10000", got)
	}
}

func TestReportServiceCoverageMatrix(t *testing.T) {
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC) }
	alloc := billing.New(store, billing.WithClock(clock))
	apt := seedApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "1")
	ctx := context.Background()

	if _, err := alloc.AllocatePayment(ctx, billing.AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 20000},
		PaymentDate:    core.NewDate(2024, 2, 1),
	}); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	reports := NewReportService(store, alloc, nil)
	reports.now = clock
	report, err := reports.Coverage(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	// 12 past months plus 3 lookahead.
	if len(report.Months) != 15 {
		t.Fatalf("coverage window has %d months, want 15", len(report.Months))
	}
	if len(report.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(report.Rows))
	}
	row := report.Rows[0]
	if !row.Covered[core.NewMonthKey(2024, time.January)] {
		t.Fatalf("January should be covered")
	}
	if row.Covered[core.NewMonthKey(2024, time.March)] {
		t.Fatalf("March should not be covered")
	}
	if row.UnpaidCount != 2 {
		t.Fatalf("unpaid count %d, want 2", row.UnpaidCount)
	}
}

func TestReportServiceSummary(t *testing.T) {
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC) }
	alloc := billing.New(store, billing.WithClock(clock))
	apt := seedApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), "1")
	ctx := context.Background()

	if _, err := alloc.AllocatePayment(ctx, billing.AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 10500},
		PaymentDate:    core.NewDate(2024, 4, 10),
	}); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	expense := core.Expense{
		OrganizationID: apt.OrganizationID,
		Amount:         core.Money{Cents: 3000},
		ExpenseDate:    core.NewDate(2024, 4, 12),
		Category:       "maintenance",
	}
	if err := store.CreateExpense(ctx, &expense); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	reports := NewReportService(store, alloc, nil)
	reports.now = clock
	summary, err := reports.Summary(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Apartments != 1 {
		t.Fatalf("apartments %d, want 1", summary.Apartments)
	}
	if summary.TotalCredit.Cents != 500 {
		t.Fatalf("total credit %d, want 500", summary.TotalCredit.Cents)
	}
	if summary.UnpaidCount != 1 {
		t.Fatalf("unpaid apartments %d, want 1", summary.UnpaidCount)
	}
	if summary.MonthRevenue.Cents != 10000 {
		t.Fatalf("month revenue %d, want 10000", summary.MonthRevenue.Cents)
	}
	if summary.MonthExpenses.Cents != 3000 {
		t.Fatalf("month expenses %d, want 3000", summary.MonthExpenses.Cents)
	}
}
