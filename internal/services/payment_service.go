// Package services orchestrates the billing engine, storage and AMQP.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"syndic/internal/amqp"
	"syndic/internal/billing"
	"syndic/internal/core"
	"syndic/internal/metrics"
	"syndic/internal/repo"
)

// PaymentService runs payment allocations and fans the outcome out to
// metrics and the message broker. The AMQP client may be nil; event
// publishing is best-effort and never fails the allocation.
type PaymentService struct {
	store      repo.Store
	allocator  *billing.Allocator
	amqpClient *amqp.Client
	onChange   func(orgID int64)
}

func NewPaymentService(store repo.Store, allocator *billing.Allocator, amqpClient *amqp.Client) *PaymentService {
	return &PaymentService{
		store:      store,
		allocator:  allocator,
		amqpClient: amqpClient,
	}
}

// OnChange registers a callback fired after any successful mutation,
// used to invalidate cached reports for the organization.
func (s *PaymentService) OnChange(fn func(orgID int64)) {
	s.onChange = fn
}

// Allocate runs the payment allocator and publishes the outcome.
func (s *PaymentService) Allocate(ctx context.Context, req billing.AllocationRequest) (*billing.AllocationResult, error) {
	mode := "auto"
	if req.StartMonth != "" {
		mode = "manual"
	}

	result, err := s.allocator.AllocatePayment(ctx, req)
	if err != nil {
		metrics.AllocationsTotal.WithLabelValues(mode, "error").Inc()
		return nil, err
	}

	outcome := "allocated"
	if result.Banked {
		outcome = "banked"
	}
	metrics.AllocationsTotal.WithLabelValues(mode, outcome).Inc()
	metrics.MonthsCoveredTotal.Add(float64(len(result.MonthsCovered)))
	metrics.MonthsSkippedTotal.Add(float64(len(result.Skipped)))

	s.publishAllocated(ctx, req, result)
	s.notifyChange(req.OrganizationID)
	return result, nil
}

// BillingStatus is the coverage view of one apartment.
type BillingStatus struct {
	ApartmentID   int64
	UnpaidMonths  int
	NextUnpaid    core.MonthKey
	MonthlyFee    core.Money
	CreditBalance core.Money
}

// Status reports the apartment's unpaid-month count, the month a new
// payment would cover first, and the residual credit.
func (s *PaymentService) Status(ctx context.Context, orgID, apartmentID int64) (BillingStatus, error) {
	count, err := s.allocator.UnpaidMonthCount(ctx, orgID, apartmentID)
	if err != nil {
		return BillingStatus{}, fmt.Errorf("unpaid month count: %w", err)
	}
	next, err := s.allocator.NextUnpaidMonth(ctx, orgID, apartmentID)
	if err != nil {
		return BillingStatus{}, fmt.Errorf("next unpaid month: %w", err)
	}
	apt, err := s.store.ApartmentByID(ctx, orgID, apartmentID)
	if err != nil {
		return BillingStatus{}, fmt.Errorf("load apartment: %w", err)
	}
	return BillingStatus{
		ApartmentID:   apartmentID,
		UnpaidMonths:  count,
		NextUnpaid:    next,
		MonthlyFee:    apt.MonthlyFee,
		CreditBalance: apt.CreditBalance,
	}, nil
}

// UpdatePayment edits a recorded payment. Moving it onto a month the
// apartment already covers fails with core.ErrMonthAlreadyPaid.
func (s *PaymentService) UpdatePayment(ctx context.Context, p core.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdatePayment(ctx, p); err != nil {
		return err
	}
	s.notifyChange(p.OrganizationID)
	return nil
}

// DeletePayment removes a payment record, reopening its month.
func (s *PaymentService) DeletePayment(ctx context.Context, orgID, id int64) error {
	if err := s.store.DeletePayment(ctx, orgID, id); err != nil {
		return err
	}
	s.notifyChange(orgID)
	return nil
}

func (s *PaymentService) publishAllocated(ctx context.Context, req billing.AllocationRequest, result *billing.AllocationResult) {
	if s.amqpClient == nil {
		return
	}

	months := make([]string, len(result.MonthsCovered))
	for i, m := range result.MonthsCovered {
		months[i] = m.String()
	}
	msg := &amqp.PaymentAllocatedMessage{
		OrganizationID:     req.OrganizationID,
		ApartmentID:        req.ApartmentID,
		MonthsCovered:      months,
		TotalRecordedCents: result.TotalRecorded.Cents,
		CreditBalanceCents: result.CreditBalance.Cents,
		Timestamp:          time.Now(),
	}
	if err := s.amqpClient.PublishPaymentAllocated(ctx, msg); err != nil {
		// The allocation is already persisted; losing the event only
		// costs the audit trail entry.
		slog.ErrorContext(ctx, "Failed to publish allocation event",
			"apartment_id", req.ApartmentID,
			"error", err)
	}
}

func (s *PaymentService) notifyChange(orgID int64) {
	if s.onChange != nil {
		s.onChange(orgID)
	}
}
