// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for deciding when an
// apartment's unpaid months warrant a new alert. The default policy is
// threshold-plus-cooldown; tenants with different escalation rules get
// their own implementation.

package services

import (
	"time"

	"syndic/internal/core"
)

// AlertPolicy is the strategy interface for raising unpaid alerts.
type AlertPolicy interface {
	// ShouldRaise returns true if a new alert is warranted given the
	// current unpaid-month count and the most recent alert on record
	// (nil when the apartment has never been alerted).
	ShouldRaise(monthsUnpaid int, lastAlert *core.UnpaidAlert, now time.Time) bool
}

// ThresholdPolicy raises an alert once the unpaid-month count reaches
// MinMonths, at most once per Cooldown window.
type ThresholdPolicy struct {
	MinMonths int
	Cooldown  time.Duration
}

// NewThresholdPolicy returns the default policy: three unpaid months,
// one alert per 30 days.
func NewThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		MinMonths: 3,
		Cooldown:  30 * 24 * time.Hour,
	}
}

// ShouldRaise implements AlertPolicy.
func (p ThresholdPolicy) ShouldRaise(monthsUnpaid int, lastAlert *core.UnpaidAlert, now time.Time) bool {
	if monthsUnpaid < p.MinMonths {
		return false
	}
	if lastAlert == nil {
		return true
	}
	return now.Sub(lastAlert.AlertDate) >= p.Cooldown
}
