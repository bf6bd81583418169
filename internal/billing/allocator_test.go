package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"syndic/internal/core"
	"syndic/internal/storage/memory"
)

// checkConservation verifies that no money appears or disappears:
// cash in plus prior credit equals recorded payments plus new credit.
func checkConservation(t *testing.T, amount, priorCredit core.Money, res *AllocationResult) {
	t.Helper()
	in := amount.Cents + priorCredit.Cents
	out := res.TotalRecorded.Cents + res.CreditBalance.Cents
	if in != out {
		t.Fatalf("money not conserved: in %d, out %d", in, out)
	}
}

func TestAllocateSequence(t *testing.T) {
	// Fee 100.00, created 2024-01-01, today 2024-04-01. Three payments
	// in a row: 250 covers Jan+Feb with 50 credit, 60 pools to 110 and
	// covers Mar with 10 credit, 40 pools to 50 and is banked whole.
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))
	ctx := context.Background()

	pay := func(cents int64) *AllocationResult {
		t.Helper()
		res, err := alloc.AllocatePayment(ctx, AllocationRequest{
			OrganizationID: apt.OrganizationID,
			ApartmentID:    apt.ID,
			Amount:         core.Money{Cents: cents},
			PaymentDate:    core.NewDate(2024, 4, 1),
		})
		if err != nil {
			t.Fatalf("allocate %d: %v", cents, err)
		}
		return res
	}

	res := pay(25000)
	if len(res.MonthsCovered) != 2 || res.MonthsCovered[0].String() != "2024-01" || res.MonthsCovered[1].String() != "2024-02" {
		t.Fatalf("first payment covered %v, want [2024-01 2024-02]", res.MonthsCovered)
	}
	if res.CreditBalance.Cents != 5000 {
		t.Fatalf("first payment credit %d, want 5000", res.CreditBalance.Cents)
	}
	if res.CreditUsed.Cents != 0 || res.Manual || res.Banked {
		t.Fatalf("unexpected flags on first payment: %+v", res)
	}
	checkConservation(t, core.Money{Cents: 25000}, core.Money{}, res)

	res = pay(6000)
	if len(res.MonthsCovered) != 1 || res.MonthsCovered[0].String() != "2024-03" {
		t.Fatalf("second payment covered %v, want [2024-03]", res.MonthsCovered)
	}
	if res.CreditUsed.Cents != 5000 {
		t.Fatalf("second payment credit used %d, want 5000", res.CreditUsed.Cents)
	}
	if res.CreditBalance.Cents != 1000 {
		t.Fatalf("second payment credit %d, want 1000", res.CreditBalance.Cents)
	}
	checkConservation(t, core.Money{Cents: 6000}, core.Money{Cents: 5000}, res)

	res = pay(4000)
	if !res.Banked || len(res.MonthsCovered) != 0 {
		t.Fatalf("third payment should bank the pool, got %+v", res)
	}
	if res.CreditBalance.Cents != 5000 {
		t.Fatalf("banked credit %d, want 5000", res.CreditBalance.Cents)
	}
	checkConservation(t, core.Money{Cents: 4000}, core.Money{Cents: 1000}, res)

	// Only three payment records exist: Jan, Feb, Mar.
	payments, err := store.ListPayments(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("got %d payment records, want 3", len(payments))
	}
	count, err := alloc.UnpaidMonthCount(ctx, apt.OrganizationID, apt.ID)
	if err != nil {
		t.Fatalf("unpaid count: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d unpaid months, want 1 (April)", count)
	}
}

func TestAllocateManualSkipsPaidMonth(t *testing.T) {
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))
	ctx := context.Background()

	// Cover January first.
	_, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 10000},
		PaymentDate:    core.NewDate(2024, 1, 5),
	})
	if err != nil {
		t.Fatalf("seed allocation: %v", err)
	}

	// Manual restart at January: the paid month is skipped and its fee
	// refunded to the remainder, never double-booked.
	res, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 20000},
		PaymentDate:    core.NewDate(2024, 4, 1),
		StartMonth:     "2024-01",
	})
	if err != nil {
		t.Fatalf("manual allocation: %v", err)
	}
	if !res.Manual {
		t.Fatalf("expected manual mode")
	}
	if len(res.Skipped) != 1 || res.Skipped[0].String() != "2024-01" {
		t.Fatalf("skipped %v, want [2024-01]", res.Skipped)
	}
	if len(res.MonthsCovered) != 1 || res.MonthsCovered[0].String() != "2024-02" {
		t.Fatalf("covered %v, want [2024-02]", res.MonthsCovered)
	}
	if res.CreditBalance.Cents != 10000 {
		t.Fatalf("credit %d, want 10000 (the refunded fee)", res.CreditBalance.Cents)
	}
	checkConservation(t, core.Money{Cents: 20000}, core.Money{}, res)
}

func TestAllocateRecordsCreditOnFirstMonth(t *testing.T) {
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))
	ctx := context.Background()

	if _, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 10500},
		PaymentDate:    core.NewDate(2024, 1, 5),
	}); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if _, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 19500},
		PaymentDate:    core.NewDate(2024, 2, 5),
	}); err != nil {
		t.Fatalf("second allocation: %v", err)
	}

	payments, err := store.ListPayments(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	byMonth := map[string]core.Payment{}
	for _, p := range payments {
		byMonth[p.MonthPaid.String()] = p
	}
	// The second pool's credit of 500 is stamped on its first covered
	// month only.
	if got := byMonth["2024-02"].CreditUsed.Cents; got != 500 {
		t.Fatalf("February credit used %d, want 500", got)
	}
	if got := byMonth["2024-03"].CreditUsed.Cents; got != 0 {
		t.Fatalf("March credit used %d, want 0", got)
	}
	if got := byMonth["2024-02"].Description; got != "Redevance 2024-02" {
		t.Fatalf("description %q, want %q", got, "Redevance 2024-02")
	}
}

func TestAllocateCreditUnreportedWhenFirstMonthSkipped(t *testing.T) {
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))
	ctx := context.Background()

	// Cover January, then bank 5000 as credit.
	if _, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 10000},
		PaymentDate:    core.NewDate(2024, 1, 5),
	}); err != nil {
		t.Fatalf("seed allocation: %v", err)
	}
	if _, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 5000},
		PaymentDate:    core.NewDate(2024, 1, 20),
	}); err != nil {
		t.Fatalf("banking allocation: %v", err)
	}

	// Manual restart on the covered January: the stamping slot is the
	// skipped month, so no row reports the folded-in credit even though
	// the pool arithmetic consumed it.
	res, err := alloc.AllocatePayment(ctx, AllocationRequest{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		Amount:         core.Money{Cents: 15000},
		PaymentDate:    core.NewDate(2024, 4, 1),
		StartMonth:     "2024-01",
	})
	if err != nil {
		t.Fatalf("manual allocation: %v", err)
	}
	if res.CreditUsed.Cents != 5000 {
		t.Fatalf("credit used %d, want 5000", res.CreditUsed.Cents)
	}
	if len(res.MonthsCovered) != 1 || res.MonthsCovered[0].String() != "2024-02" {
		t.Fatalf("covered %v, want [2024-02]", res.MonthsCovered)
	}
	if res.CreditBalance.Cents != 10000 {
		t.Fatalf("credit balance %d, want 10000", res.CreditBalance.Cents)
	}

	payments, err := store.ListPayments(ctx, apt.OrganizationID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	for _, p := range payments {
		if p.MonthPaid.String() == "2024-02" && p.CreditUsed.Cents != 0 {
			t.Fatalf("February row reports credit %d, want 0", p.CreditUsed.Cents)
		}
	}
	checkConservation(t, core.Money{Cents: 15000}, core.Money{Cents: 5000}, res)
}

func TestAllocateConcurrentSameApartment(t *testing.T) {
	// Eight goroutines pay one fee each against the same apartment.
	// Per-apartment serialization must yield eight distinct months.
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = alloc.AllocatePayment(context.Background(), AllocationRequest{
				OrganizationID: apt.OrganizationID,
				ApartmentID:    apt.ID,
				Amount:         core.Money{Cents: 10000},
				PaymentDate:    core.NewDate(2024, 4, 1),
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}

	payments, err := store.ListPayments(context.Background(), apt.OrganizationID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != n {
		t.Fatalf("got %d payment records, want %d", len(payments), n)
	}
	seen := map[core.MonthKey]bool{}
	for _, p := range payments {
		if seen[p.MonthPaid] {
			t.Fatalf("month %s covered twice", p.MonthPaid)
		}
		seen[p.MonthPaid] = true
	}
}

func TestAllocateInvalidInput(t *testing.T) {
	store := memory.New()
	apt := newApartment(t, store, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	alloc := New(store, WithClock(fixedClock(2024, time.April, 1)))
	ctx := context.Background()

	cases := []struct {
		req  AllocationRequest
		want error
	}{
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, PaymentDate: core.NewDate(2024, 4, 1)}, core.ErrInvalidAmount},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, Amount: core.Money{Cents: -100}, PaymentDate: core.NewDate(2024, 4, 1)}, core.ErrInvalidAmount},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, Amount: core.Money{Cents: 10000}, PaymentDate: core.NewDate(2024, 4, 1), StartMonth: "2024-13"}, core.ErrInvalidMonth},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, Amount: core.Money{Cents: 10000}, PaymentDate: core.NewDate(2024, 4, 1), StartMonth: "january"}, core.ErrInvalidMonth},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, Amount: core.Money{Cents: 10000}, PaymentDate: core.NewDate(2024, 4, 1), StartMonth: "2024-+9"}, core.ErrInvalidMonth},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: apt.ID, Amount: core.Money{Cents: 10000}, PaymentDate: core.NewDate(2024, 4, 1), StartMonth: "+024-01"}, core.ErrInvalidMonth},
		{AllocationRequest{OrganizationID: apt.OrganizationID, ApartmentID: 9999, Amount: core.Money{Cents: 10000}, PaymentDate: core.NewDate(2024, 4, 1)}, core.ErrNotFound},
	}
	for i, c := range cases {
		_, err := alloc.AllocatePayment(ctx, c.req)
		if !errors.Is(err, c.want) {
			t.Fatalf("case %d: got %v, want %v", i, err, c.want)
		}
	}
}
