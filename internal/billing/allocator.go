package billing

import (
	"context"
	"fmt"
	"log/slog"

	"syndic/internal/core"
)

// AllocationRequest is one cash payment to spread over whole months.
// StartMonth, when non-empty, must be a "YYYY-MM" key and forces manual
// mode: allocation starts there verbatim. Left empty, the engine starts
// at the first unpaid month (auto mode).
type AllocationRequest struct {
	OrganizationID int64
	ApartmentID    int64
	Amount         core.Money
	PaymentDate    core.Date
	Description    string
	StartMonth     string
}

// AllocationResult reports what a single allocation did. The presentation
// layer turns this into user-facing messages; the engine never formats
// text beyond the payment descriptions it records.
type AllocationResult struct {
	// MonthsCovered lists the months newly covered, in order.
	MonthsCovered []core.MonthKey
	// Skipped lists candidate months that were already covered and
	// whose fee went back into the remainder pool.
	Skipped []core.MonthKey
	// TotalRecorded is the cash amount written as payment records
	// (fee times months newly covered).
	TotalRecorded core.Money
	// CreditUsed is the prior credit balance folded into the pool.
	CreditUsed core.Money
	// CreditBalance is the apartment's residual credit after this call.
	CreditBalance core.Money
	// StartMonth is the month the walk began at; zero when the whole
	// pool was banked as credit.
	StartMonth core.MonthKey
	// Manual is true when the caller supplied the start month.
	Manual bool
	// Banked is true when the pool covered no whole month and became
	// credit in full.
	Banked bool
}

// AllocatePayment converts a cash amount plus the apartment's existing
// credit into whole-month payment records and a residual credit balance.
//
// The pool is amount + full existing credit. pool/fee whole months are
// walked from the starting month; months already covered are skipped and
// their fee returned to the remainder (the anti-double-booking guard).
// Whatever is left below one fee after the walk becomes the new credit
// balance. All new payments and the balance update persist atomically.
func (a *Allocator) AllocatePayment(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if err := req.Amount.Validate(); err != nil {
		return nil, fmt.Errorf("payment amount: %w", err)
	}
	if err := req.PaymentDate.Validate(); err != nil {
		return nil, fmt.Errorf("payment date: %w", err)
	}
	var startMonth core.MonthKey
	manual := req.StartMonth != ""
	if manual {
		parsed, err := core.ParseMonthKey(req.StartMonth)
		if err != nil {
			return nil, fmt.Errorf("start month %q: %w", req.StartMonth, err)
		}
		startMonth = parsed
	}

	// One allocation at a time per apartment: the credit read and the
	// balance write below must not interleave with another allocation.
	defer a.locks.lock(req.ApartmentID).Unlock()

	apt, err := a.repo.ApartmentByID(ctx, req.OrganizationID, req.ApartmentID)
	if err != nil {
		return nil, fmt.Errorf("load apartment: %w", err)
	}

	if err := apt.MonthlyFee.Validate(); err != nil {
		return nil, fmt.Errorf("apartment monthly fee: %w", err)
	}

	creditUsed := apt.CreditBalance
	pool := req.Amount.Add(creditUsed)
	fee := apt.MonthlyFee.Cents
	monthsToPay := pool.Cents / fee
	remainder := pool.Cents % fee

	if monthsToPay == 0 {
		// The pool does not cover a single month: bank everything.
		apt.CreditBalance = pool
		if err := a.repo.SaveAllocation(ctx, apt, nil); err != nil {
			return nil, fmt.Errorf("save credit: %w", err)
		}
		slog.InfoContext(ctx, "Payment banked as credit",
			"apartment_id", apt.ID,
			"organization_id", apt.OrganizationID,
			"amount_cents", req.Amount.Cents,
			"credit_balance_cents", pool.Cents)
		return &AllocationResult{
			CreditUsed:    creditUsed,
			CreditBalance: pool,
			Manual:        manual,
			Banked:        true,
		}, nil
	}

	paid, err := a.repo.PaidMonths(ctx, apt.ID)
	if err != nil {
		return nil, fmt.Errorf("load paid months: %w", err)
	}
	if !manual {
		today := a.now()
		horizon := core.MonthOf(today).AddMonths(a.lookahead)
		startMonth = firstUnpaid(billingStart(apt, today), horizon, paid)
	}

	description := req.Description
	if description == "" {
		description = "Redevance"
	}

	result := &AllocationResult{StartMonth: startMonth, Manual: manual, CreditUsed: creditUsed}
	var newPayments []core.Payment
	for i := int64(0); i < monthsToPay; i++ {
		month := startMonth.AddMonths(int(i))
		if paid[month] {
			// Already covered: no record, the fee flows back into
			// the remainder to be carried as credit.
			remainder += fee
			result.Skipped = append(result.Skipped, month)
			continue
		}
		rowCredit := core.Money{}
		if i == 0 {
			rowCredit = creditUsed
		}
		newPayments = append(newPayments, core.Payment{
			OrganizationID: apt.OrganizationID,
			ApartmentID:    apt.ID,
			Amount:         apt.MonthlyFee,
			PaymentDate:    req.PaymentDate,
			MonthPaid:      month,
			CreditUsed:     rowCredit,
			Description:    fmt.Sprintf("%s %s", description, month),
		})
		result.MonthsCovered = append(result.MonthsCovered, month)
		result.TotalRecorded.Cents += fee
	}

	apt.CreditBalance = core.Money{Cents: remainder}
	if err := a.repo.SaveAllocation(ctx, apt, newPayments); err != nil {
		return nil, fmt.Errorf("save allocation: %w", err)
	}
	result.CreditBalance = apt.CreditBalance

	slog.InfoContext(ctx, "Payment allocated",
		"apartment_id", apt.ID,
		"organization_id", apt.OrganizationID,
		"amount_cents", req.Amount.Cents,
		"credit_used_cents", creditUsed.Cents,
		"months_covered", len(result.MonthsCovered),
		"months_skipped", len(result.Skipped),
		"start_month", startMonth.String(),
		"manual", manual,
		"credit_balance_cents", remainder)

	return result, nil
}
