package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	// Organization is one syndic client. Every other record is scoped to
	// exactly one organization; there is no cross-tenant access.
	Organization struct {
		ID        int64
		Name      string
		Slug      string
		Email     string
		Phone     string
		Address   string
		Active    bool
		CreatedAt time.Time
	}

	// Block groups apartments inside a building.
	Block struct {
		ID             int64
		OrganizationID int64
		Name           string
	}

	// Apartment carries the monthly fee and the residual credit balance.
	// CreatedAt defines the start of the billing timeline: coverage is
	// reasoned about from the month of creation onward. CreditBalance is
	// mutated only by the payment allocator.
	Apartment struct {
		ID             int64
		OrganizationID int64
		BlockID        int64
		Number         string
		MonthlyFee     Money
		CreditBalance  Money
		CreatedAt      time.Time
	}

	// Payment records coverage of one calendar month for one apartment.
	// At most one payment exists per (apartment, month) pair; partial
	// months are never recorded. CreditUsed is informational: how much of
	// the apartment's prior credit was folded into the transaction that
	// created this record.
	Payment struct {
		ID             int64
		OrganizationID int64
		ApartmentID    int64
		Amount         Money
		PaymentDate    Date
		MonthPaid      MonthKey
		CreditUsed     Money
		Description    string
	}

	// Expense is an organization-level outgoing amount, used by the
	// treasury report.
	Expense struct {
		ID             int64
		OrganizationID int64
		Amount         Money
		ExpenseDate    Date
		Category       string
		Description    string
	}

	// UnpaidAlert marks an apartment whose unpaid-month count crossed the
	// alert threshold. EmailSent is flipped once the event has been
	// processed downstream.
	UnpaidAlert struct {
		ID             int64
		OrganizationID int64
		ApartmentID    int64
		MonthsUnpaid   int
		AlertDate      time.Time
		EmailSent      bool
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyNumber      = errors.New("empty apartment number")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty expense category")
	ErrNotFound         = errors.New("not found")
	ErrMonthAlreadyPaid = errors.New("month already paid")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (o Organization) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(o.Slug) == "" {
		return errors.New("empty organization slug")
	}
	if !strings.Contains(o.Email, "@") {
		return errors.New("invalid organization email")
	}
	return nil
}

func (b Block) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if len(b.Name) > 50 {
		return errors.New("block name too long (max 50 characters)")
	}
	return nil
}

func (a Apartment) Validate() error {
	if strings.TrimSpace(a.Number) == "" {
		return ErrEmptyNumber
	}
	if len(a.Number) > 20 {
		return errors.New("apartment number too long (max 20 characters)")
	}
	if err := a.MonthlyFee.Validate(); err != nil {
		return err
	}
	if a.CreditBalance.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p Payment) Validate() error {
	if err := p.PaymentDate.Validate(); err != nil {
		return err
	}
	if err := p.MonthPaid.Validate(); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if len(p.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.ExpenseDate.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Category) > 120 {
		return errors.New("category too long (max 120 characters)")
	}
	if len(e.Description) > 300 {
		return errors.New("description too long (max 300 characters)")
	}
	return nil
}
