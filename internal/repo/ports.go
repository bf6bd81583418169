// Package repo declares the persistence ports of the application.
// Implementations live in internal/storage (SQLite) and
// internal/storage/memory (tests, ephemeral deployments).
package repo

import (
	"context"

	"syndic/internal/billing"
	"syndic/internal/core"
)

type (
	Organizations interface {
		CreateOrganization(ctx context.Context, org *core.Organization) error
		OrganizationByID(ctx context.Context, id int64) (core.Organization, error)
		ListOrganizations(ctx context.Context) ([]core.Organization, error)
	}

	Blocks interface {
		CreateBlock(ctx context.Context, block *core.Block) error
		ListBlocks(ctx context.Context, orgID int64) ([]core.Block, error)
	}

	Apartments interface {
		CreateApartment(ctx context.Context, apt *core.Apartment) error
		UpdateApartment(ctx context.Context, apt core.Apartment) error
		// DeleteApartment cascades to the apartment's payments.
		DeleteApartment(ctx context.Context, orgID, id int64) error
		ListApartments(ctx context.Context, orgID int64) ([]core.Apartment, error)
	}

	Payments interface {
		PaymentByID(ctx context.Context, orgID, id int64) (core.Payment, error)
		ListPayments(ctx context.Context, orgID int64) ([]core.Payment, error)
		UpdatePayment(ctx context.Context, p core.Payment) error
		DeletePayment(ctx context.Context, orgID, id int64) error
	}

	Expenses interface {
		CreateExpense(ctx context.Context, e *core.Expense) error
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, orgID, id int64) error
		ListExpenses(ctx context.Context, orgID int64) ([]core.Expense, error)
	}

	Alerts interface {
		CreateAlert(ctx context.Context, alert *core.UnpaidAlert) error
		// LatestAlert returns the most recent alert for the apartment,
		// or core.ErrNotFound when none exists.
		LatestAlert(ctx context.Context, apartmentID int64) (core.UnpaidAlert, error)
		ListAlerts(ctx context.Context, orgID int64) ([]core.UnpaidAlert, error)
		MarkAlertSent(ctx context.Context, orgID, id int64) error
	}
)

// Store is the full persistence surface: the CRUD ports above plus the
// billing engine's repository seam (apartment lookup, paid-month sets
// and the atomic allocation write).
type Store interface {
	Organizations
	Blocks
	Apartments
	Payments
	Expenses
	Alerts
	billing.Repository

	Close() error
}
