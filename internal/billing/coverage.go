// Package billing implements the allocation engine: deciding which
// calendar months a cash payment covers, carrying the residual credit
// between payments, and answering coverage questions ("how many months
// are owed", "which month is next").
//
// The engine owns no storage; it reads and writes apartments and
// payments through the Repository interface supplied by the caller.
package billing

import (
	"context"
	"fmt"
	"time"

	"syndic/internal/core"
)

// DefaultLookahead is how many months past today NextUnpaidMonth scans
// before falling through to the month after the horizon.
const DefaultLookahead = 3

// Repository is the narrow persistence seam the engine needs. The
// production implementation is SQLite-backed; tests use the in-memory
// store. SaveAllocation must be atomic: either all payments and the
// updated credit balance land, or none do.
type Repository interface {
	ApartmentByID(ctx context.Context, orgID, apartmentID int64) (core.Apartment, error)
	PaidMonths(ctx context.Context, apartmentID int64) (map[core.MonthKey]bool, error)
	SaveAllocation(ctx context.Context, apartment core.Apartment, payments []core.Payment) error
}

// Allocator is the billing engine. Safe for concurrent use; allocations
// on the same apartment are serialized internally.
type Allocator struct {
	repo      Repository
	now       func() time.Time
	lookahead int
	locks     apartmentLocks
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithClock overrides the engine's notion of "today". Tests pin it to a
// fixed date.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// WithLookahead overrides the next-unpaid scan horizon.
func WithLookahead(months int) Option {
	return func(a *Allocator) { a.lookahead = months }
}

// New creates an allocator over the given repository.
func New(repo Repository, opts ...Option) *Allocator {
	a := &Allocator{
		repo:      repo,
		now:       time.Now,
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// UnpaidMonthCount walks every month from the apartment's billing start
// through the current month and counts the ones without a payment. The
// walk tolerates gaps: back-dated entries, edits and deletions may leave
// holes anywhere in the history.
//
// The result is a month count, not a currency amount; callers that need
// an amount due multiply by the fee themselves.
func (a *Allocator) UnpaidMonthCount(ctx context.Context, orgID, apartmentID int64) (int, error) {
	apt, err := a.repo.ApartmentByID(ctx, orgID, apartmentID)
	if err != nil {
		return 0, fmt.Errorf("load apartment: %w", err)
	}
	paid, err := a.repo.PaidMonths(ctx, apt.ID)
	if err != nil {
		return 0, fmt.Errorf("load paid months: %w", err)
	}
	today := a.now()
	return countUnpaid(billingStart(apt, today), core.MonthOf(today), paid), nil
}

// NextUnpaidMonth returns the first uncovered month from the apartment's
// billing start, scanning up to lookahead months past today. If every
// month through the horizon is covered it returns the month right after
// the horizon, so the caller always gets a usable target.
func (a *Allocator) NextUnpaidMonth(ctx context.Context, orgID, apartmentID int64) (core.MonthKey, error) {
	apt, err := a.repo.ApartmentByID(ctx, orgID, apartmentID)
	if err != nil {
		return core.MonthKey{}, fmt.Errorf("load apartment: %w", err)
	}
	paid, err := a.repo.PaidMonths(ctx, apt.ID)
	if err != nil {
		return core.MonthKey{}, fmt.Errorf("load paid months: %w", err)
	}
	today := a.now()
	horizon := core.MonthOf(today).AddMonths(a.lookahead)
	return firstUnpaid(billingStart(apt, today), horizon, paid), nil
}

// billingStart is the first month of the apartment's billing timeline:
// the month it was created, or the current month when the creation date
// is missing.
func billingStart(apt core.Apartment, today time.Time) core.MonthKey {
	if apt.CreatedAt.IsZero() {
		return core.MonthOf(today)
	}
	return core.MonthOf(apt.CreatedAt)
}

func countUnpaid(start, end core.MonthKey, paid map[core.MonthKey]bool) int {
	count := 0
	for m := start; !m.After(end); m = m.Next() {
		if !paid[m] {
			count++
		}
	}
	return count
}

func firstUnpaid(start, horizon core.MonthKey, paid map[core.MonthKey]bool) core.MonthKey {
	for m := start; !m.After(horizon); m = m.Next() {
		if !paid[m] {
			return m
		}
	}
	return horizon.Next()
}
