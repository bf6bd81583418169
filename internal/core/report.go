package core

import "time"

// This file holds the pure aggregation math behind the treasury and
// coverage reports. Callers fetch the raw records and pass them in; no
// I/O happens here.

// CashFlowRow is one apartment's cash received per calendar month of the
// payment date (not the month covered).
type CashFlowRow struct {
	ApartmentID int64
	Label       string
	Months      map[MonthKey]Money
}

// TreasuryReport is the cash view over a window of months: money in per
// apartment, money out, and the running balance per month.
type TreasuryReport struct {
	Months   []MonthKey
	Rows     []CashFlowRow
	Expenses map[MonthKey]Money
	Balance  map[MonthKey]Money
}

// CoverageRow summarizes one apartment's covered months inside the report
// window plus its overall billing position.
type CoverageRow struct {
	ApartmentID   int64
	Label         string
	MonthlyFee    Money
	CreditBalance Money
	Covered       map[MonthKey]bool
	UnpaidCount   int
}

// CoverageReport is the covered/uncovered month matrix over the past
// twelve months and a short future window.
type CoverageReport struct {
	Months []MonthKey
	Rows   []CoverageRow
}

// LastNMonths returns the n month keys ending at the month of today,
// oldest first.
func LastNMonths(today time.Time, n int) []MonthKey {
	end := MonthOf(today)
	months := make([]MonthKey, 0, n)
	for i := n - 1; i >= 0; i-- {
		months = append(months, end.AddMonths(-i))
	}
	return months
}

// ReportWindow returns last n months plus ahead future months, oldest
// first. The coverage report uses n=12, ahead=3.
func ReportWindow(today time.Time, n, ahead int) []MonthKey {
	months := LastNMonths(today, n)
	end := MonthOf(today)
	for i := 1; i <= ahead; i++ {
		months = append(months, end.AddMonths(i))
	}
	return months
}

// BuildTreasuryReport aggregates payments and expenses into the monthly
// cash view. Labels resolve through blockNames as "block-number".
func BuildTreasuryReport(apartments []Apartment, blockNames map[int64]string, payments []Payment, expenses []Expense, today time.Time) TreasuryReport {
	months := LastNMonths(today, 12)
	inWindow := make(map[MonthKey]bool, len(months))
	for _, m := range months {
		inWindow[m] = true
	}

	report := TreasuryReport{
		Months:   months,
		Expenses: make(map[MonthKey]Money, len(months)),
		Balance:  make(map[MonthKey]Money, len(months)),
	}

	byApartment := make(map[int64]map[MonthKey]Money, len(apartments))
	for _, apt := range apartments {
		row := make(map[MonthKey]Money, len(months))
		for _, m := range months {
			row[m] = Money{}
		}
		byApartment[apt.ID] = row
	}
	for _, p := range payments {
		m := MonthOf(p.PaymentDate.Time)
		if !inWindow[m] {
			continue
		}
		if row, ok := byApartment[p.ApartmentID]; ok {
			row[m] = row[m].Add(p.Amount)
		}
	}
	for _, apt := range apartments {
		report.Rows = append(report.Rows, CashFlowRow{
			ApartmentID: apt.ID,
			Label:       apartmentLabel(apt, blockNames),
			Months:      byApartment[apt.ID],
		})
	}

	for _, m := range months {
		report.Expenses[m] = Money{}
	}
	for _, e := range expenses {
		m := MonthOf(e.ExpenseDate.Time)
		if !inWindow[m] {
			continue
		}
		report.Expenses[m] = report.Expenses[m].Add(e.Amount)
	}

	for _, m := range months {
		var in int64
		for _, row := range report.Rows {
			in += row.Months[m].Cents
		}
		report.Balance[m] = Money{Cents: in - report.Expenses[m].Cents}
	}
	return report
}

// BuildCoverageReport lays out which window months are covered for each
// apartment. Paid month sets and unpaid counts come from the billing
// engine; this function only arranges them.
func BuildCoverageReport(apartments []Apartment, blockNames map[int64]string, paidByApartment map[int64]map[MonthKey]bool, unpaidCounts map[int64]int, today time.Time) CoverageReport {
	months := ReportWindow(today, 12, 3)
	report := CoverageReport{Months: months}
	for _, apt := range apartments {
		paid := paidByApartment[apt.ID]
		covered := make(map[MonthKey]bool, len(months))
		for _, m := range months {
			covered[m] = paid[m]
		}
		report.Rows = append(report.Rows, CoverageRow{
			ApartmentID:   apt.ID,
			Label:         apartmentLabel(apt, blockNames),
			MonthlyFee:    apt.MonthlyFee,
			CreditBalance: apt.CreditBalance,
			Covered:       covered,
			UnpaidCount:   unpaidCounts[apt.ID],
		})
	}
	return report
}

func apartmentLabel(apt Apartment, blockNames map[int64]string) string {
	if name, ok := blockNames[apt.BlockID]; ok && name != "" {
		return name + "-" + apt.Number
	}
	return apt.Number
}
