package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"syndic/internal/amqp"
	"syndic/internal/billing"
	"syndic/internal/core"
	"syndic/internal/metrics"
	"syndic/internal/repo"
)

// AlertDetector scans apartments for unpaid-month counts that cross the
// policy threshold and records an alert for each hit. The scan is
// idempotent within the policy's cooldown window.
type AlertDetector struct {
	store      repo.Store
	allocator  *billing.Allocator
	policy     AlertPolicy
	amqpClient *amqp.Client
	now        func() time.Time
}

func NewAlertDetector(store repo.Store, allocator *billing.Allocator, policy AlertPolicy, amqpClient *amqp.Client) *AlertDetector {
	return &AlertDetector{
		store:      store,
		allocator:  allocator,
		policy:     policy,
		amqpClient: amqpClient,
		now:        time.Now,
	}
}

// ScanAll scans every active organization and returns the number of
// alerts raised.
func (d *AlertDetector) ScanAll(ctx context.Context) (int, error) {
	orgs, err := d.store.ListOrganizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list organizations: %w", err)
	}

	total := 0
	for _, org := range orgs {
		if !org.Active {
			continue
		}
		raised, err := d.ScanOrganization(ctx, org.ID)
		if err != nil {
			// One broken tenant must not stop the sweep.
			slog.ErrorContext(ctx, "Organization scan failed",
				"organization_id", org.ID,
				"error", err)
			continue
		}
		total += raised
	}
	return total, nil
}

// ScanOrganization checks every apartment of one organization.
func (d *AlertDetector) ScanOrganization(ctx context.Context, orgID int64) (int, error) {
	apartments, err := d.store.ListApartments(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list apartments: %w", err)
	}

	raised := 0
	for _, apt := range apartments {
		ok, err := d.checkApartment(ctx, apt)
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}

	if raised > 0 {
		slog.InfoContext(ctx, "Unpaid scan finished",
			"organization_id", orgID,
			"apartments", len(apartments),
			"alerts_raised", raised)
	}
	return raised, nil
}

func (d *AlertDetector) checkApartment(ctx context.Context, apt core.Apartment) (bool, error) {
	count, err := d.allocator.UnpaidMonthCount(ctx, apt.OrganizationID, apt.ID)
	if err != nil {
		return false, fmt.Errorf("unpaid count for apartment %d: %w", apt.ID, err)
	}

	var last *core.UnpaidAlert
	latest, err := d.store.LatestAlert(ctx, apt.ID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		// never alerted
	case err != nil:
		return false, fmt.Errorf("latest alert for apartment %d: %w", apt.ID, err)
	default:
		last = &latest
	}

	if !d.policy.ShouldRaise(count, last, d.now()) {
		return false, nil
	}

	alert := core.UnpaidAlert{
		OrganizationID: apt.OrganizationID,
		ApartmentID:    apt.ID,
		MonthsUnpaid:   count,
		AlertDate:      d.now(),
	}
	if err := d.store.CreateAlert(ctx, &alert); err != nil {
		return false, fmt.Errorf("create alert for apartment %d: %w", apt.ID, err)
	}
	metrics.AlertsRaisedTotal.Inc()

	d.publishRaised(ctx, alert)
	return true, nil
}

func (d *AlertDetector) publishRaised(ctx context.Context, alert core.UnpaidAlert) {
	if d.amqpClient == nil {
		return
	}
	msg := amqp.NewAlertRaisedMessage(alert.ID, alert.OrganizationID, alert.ApartmentID, alert.MonthsUnpaid)
	if err := d.amqpClient.PublishAlertRaised(ctx, msg); err != nil {
		// The alert row exists; the worker will still see EmailSent=false.
		slog.ErrorContext(ctx, "Failed to publish alert event",
			"alert_id", alert.ID,
			"error", err)
	}
}
