package core

import (
	"testing"
	"time"
)

func TestLastNMonths(t *testing.T) {
	today := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	months := LastNMonths(today, 3)
	want := []MonthKey{{2023, time.December}, {2024, time.January}, {2024, time.February}}
	if len(months) != len(want) {
		t.Fatalf("got %d months", len(months))
	}
	for i := range want {
		if months[i] != want[i] {
			t.Fatalf("month %d: got %v want %v", i, months[i], want[i])
		}
	}
}

func TestReportWindow(t *testing.T) {
	today := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	months := ReportWindow(today, 12, 3)
	if len(months) != 15 {
		t.Fatalf("got %d months, want 15", len(months))
	}
	if months[0] != (MonthKey{2023, time.July}) {
		t.Fatalf("window start %v", months[0])
	}
	if months[len(months)-1] != (MonthKey{2024, time.September}) {
		t.Fatalf("window end %v", months[len(months)-1])
	}
}

func TestBuildTreasuryReport(t *testing.T) {
	today := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	apartments := []Apartment{
		{ID: 1, BlockID: 10, Number: "1", MonthlyFee: Money{Cents: 10000}},
		{ID: 2, BlockID: 10, Number: "2", MonthlyFee: Money{Cents: 10000}},
	}
	blocks := map[int64]string{10: "A"}
	payments := []Payment{
		// Two months covered by one cash event in February.
		{ApartmentID: 1, Amount: Money{Cents: 10000}, PaymentDate: NewDate(2024, 2, 5), MonthPaid: MonthKey{2024, time.January}},
		{ApartmentID: 1, Amount: Money{Cents: 10000}, PaymentDate: NewDate(2024, 2, 5), MonthPaid: MonthKey{2024, time.February}},
		{ApartmentID: 2, Amount: Money{Cents: 10000}, PaymentDate: NewDate(2024, 3, 1), MonthPaid: MonthKey{2024, time.March}},
		// Outside the 12-month window: ignored.
		{ApartmentID: 2, Amount: Money{Cents: 10000}, PaymentDate: NewDate(2020, 1, 1), MonthPaid: MonthKey{2020, time.January}},
	}
	expenses := []Expense{
		{Amount: Money{Cents: 3000}, ExpenseDate: NewDate(2024, 2, 12), Category: "Eau"},
	}

	report := BuildTreasuryReport(apartments, blocks, payments, expenses, today)

	if len(report.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(report.Rows))
	}
	if report.Rows[0].Label != "A-1" {
		t.Fatalf("label got %q", report.Rows[0].Label)
	}
	feb := MonthKey{2024, time.February}
	if got := report.Rows[0].Months[feb].Cents; got != 20000 {
		t.Fatalf("apartment 1 february cash got %d", got)
	}
	if got := report.Expenses[feb].Cents; got != 3000 {
		t.Fatalf("february expenses got %d", got)
	}
	if got := report.Balance[feb].Cents; got != 17000 {
		t.Fatalf("february balance got %d", got)
	}
	mar := MonthKey{2024, time.March}
	if got := report.Balance[mar].Cents; got != 10000 {
		t.Fatalf("march balance got %d", got)
	}
}

func TestBuildCoverageReport(t *testing.T) {
	today := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	apartments := []Apartment{
		{ID: 1, BlockID: 10, Number: "3", MonthlyFee: Money{Cents: 10000}, CreditBalance: Money{Cents: 5000}},
	}
	paid := map[int64]map[MonthKey]bool{
		1: {
			{2024, time.January}:  true,
			{2024, time.February}: true,
		},
	}
	counts := map[int64]int{1: 2}

	report := BuildCoverageReport(apartments, map[int64]string{10: "B"}, paid, counts, today)

	if len(report.Months) != 15 {
		t.Fatalf("window size got %d", len(report.Months))
	}
	row := report.Rows[0]
	if !row.Covered[MonthKey{2024, time.January}] {
		t.Fatalf("january should be covered")
	}
	if row.Covered[MonthKey{2024, time.March}] {
		t.Fatalf("march should not be covered")
	}
	if row.UnpaidCount != 2 {
		t.Fatalf("unpaid count got %d", row.UnpaidCount)
	}
	if row.CreditBalance.Cents != 5000 {
		t.Fatalf("credit got %d", row.CreditBalance.Cents)
	}
}
