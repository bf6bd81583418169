// Package storage persists the syndic domain in SQLite via database/sql
// and hand-written queries. Schema changes go through the embedded
// golang-migrate migrations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"syndic/internal/core"

	_ "modernc.org/sqlite"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timeFormat, "2006-01-02 15:04:05", dateFormat} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
// modernc.org/sqlite surfaces no typed error for this.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- organizations ---

func (r *SQLiteRepository) CreateOrganization(ctx context.Context, org *core.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (name, slug, email, phone, address, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.Name, org.Slug, org.Email, org.Phone, org.Address, org.Active, org.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	org.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("organization id: %w", err)
	}

	slog.InfoContext(ctx, "Organization created",
		"id", org.ID,
		"slug", org.Slug,
		"name", org.Name)
	return nil
}

func (r *SQLiteRepository) OrganizationByID(ctx context.Context, id int64) (core.Organization, error) {
	var (
		org       core.Organization
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, email, phone, address, active, created_at
		 FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &org.Slug, &org.Email, &org.Phone, &org.Address, &org.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Organization{}, core.ErrNotFound
	}
	if err != nil {
		return core.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	org.CreatedAt = parseTimestamp(createdAt)
	return org, nil
}

func (r *SQLiteRepository) ListOrganizations(ctx context.Context) ([]core.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, email, phone, address, active, created_at
		 FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []core.Organization
	for rows.Next() {
		var (
			org       core.Organization
			createdAt string
		)
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.Email, &org.Phone, &org.Address, &org.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		org.CreatedAt = parseTimestamp(createdAt)
		out = append(out, org)
	}
	return out, rows.Err()
}

// --- blocks ---

func (r *SQLiteRepository) CreateBlock(ctx context.Context, block *core.Block) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO blocks (organization_id, name) VALUES (?, ?)`,
		block.OrganizationID, block.Name)
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	block.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("block id: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListBlocks(ctx context.Context, orgID int64) ([]core.Block, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, name FROM blocks WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []core.Block
	for rows.Next() {
		var b core.Block
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.Name); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- apartments ---

func (r *SQLiteRepository) CreateApartment(ctx context.Context, apt *core.Apartment) error {
	if apt.CreatedAt.IsZero() {
		apt.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO apartments (organization_id, block_id, number, monthly_fee_cents, credit_balance_cents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		apt.OrganizationID, apt.BlockID, apt.Number, apt.MonthlyFee.Cents, apt.CreditBalance.Cents,
		apt.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("create apartment: %w", err)
	}
	apt.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("apartment id: %w", err)
	}

	slog.InfoContext(ctx, "Apartment created",
		"id", apt.ID,
		"organization_id", apt.OrganizationID,
		"number", apt.Number,
		"monthly_fee_cents", apt.MonthlyFee.Cents)
	return nil
}

func (r *SQLiteRepository) UpdateApartment(ctx context.Context, apt core.Apartment) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE apartments SET block_id = ?, number = ?, monthly_fee_cents = ?, credit_balance_cents = ?
		 WHERE id = ? AND organization_id = ?`,
		apt.BlockID, apt.Number, apt.MonthlyFee.Cents, apt.CreditBalance.Cents, apt.ID, apt.OrganizationID)
	if err != nil {
		return fmt.Errorf("update apartment: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteApartment(ctx context.Context, orgID, id int64) error {
	// Payments and alerts go with it through ON DELETE CASCADE.
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM apartments WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete apartment: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Apartment deleted", "id", id, "organization_id", orgID)
	return nil
}

func (r *SQLiteRepository) ApartmentByID(ctx context.Context, orgID, apartmentID int64) (core.Apartment, error) {
	return scanApartment(r.db.QueryRowContext(ctx,
		`SELECT id, organization_id, block_id, number, monthly_fee_cents, credit_balance_cents, created_at
		 FROM apartments WHERE id = ? AND organization_id = ?`, apartmentID, orgID))
}

func (r *SQLiteRepository) ListApartments(ctx context.Context, orgID int64) ([]core.Apartment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, block_id, number, monthly_fee_cents, credit_balance_cents, created_at
		 FROM apartments WHERE organization_id = ? ORDER BY block_id, number`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list apartments: %w", err)
	}
	defer rows.Close()

	var out []core.Apartment
	for rows.Next() {
		apt, err := scanApartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, apt)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApartment(row rowScanner) (core.Apartment, error) {
	var (
		apt       core.Apartment
		createdAt string
	)
	err := row.Scan(&apt.ID, &apt.OrganizationID, &apt.BlockID, &apt.Number,
		&apt.MonthlyFee.Cents, &apt.CreditBalance.Cents, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Apartment{}, core.ErrNotFound
	}
	if err != nil {
		return core.Apartment{}, fmt.Errorf("scan apartment: %w", err)
	}
	apt.CreatedAt = parseTimestamp(createdAt)
	return apt, nil
}

// --- payments ---

func (r *SQLiteRepository) PaymentByID(ctx context.Context, orgID, id int64) (core.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		`SELECT id, organization_id, apartment_id, amount_cents, payment_date, month_paid, credit_used_cents, description
		 FROM payments WHERE id = ? AND organization_id = ?`, id, orgID))
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, orgID int64) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, apartment_id, amount_cents, payment_date, month_paid, credit_used_cents, description
		 FROM payments WHERE organization_id = ? ORDER BY payment_date DESC, id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdatePayment(ctx context.Context, p core.Payment) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET amount_cents = ?, payment_date = ?, month_paid = ?, description = ?
		 WHERE id = ? AND organization_id = ?`,
		p.Amount.Cents, p.PaymentDate.Format(dateFormat), p.MonthPaid.String(), p.Description,
		p.ID, p.OrganizationID)
	if isUniqueViolation(err) {
		return fmt.Errorf("month %s: %w", p.MonthPaid, core.ErrMonthAlreadyPaid)
	}
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeletePayment(ctx context.Context, orgID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM payments WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Payment deleted", "id", id, "organization_id", orgID)
	return nil
}

func scanPayment(row rowScanner) (core.Payment, error) {
	var (
		p           core.Payment
		paymentDate string
		monthPaid   string
	)
	err := row.Scan(&p.ID, &p.OrganizationID, &p.ApartmentID, &p.Amount.Cents,
		&paymentDate, &monthPaid, &p.CreditUsed.Cents, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.ErrNotFound
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	p.PaymentDate = core.Date{Time: parseTimestamp(paymentDate)}
	if err := p.MonthPaid.UnmarshalText([]byte(monthPaid)); err != nil {
		return core.Payment{}, fmt.Errorf("parse month %q: %w", monthPaid, err)
	}
	return p, nil
}

// --- billing ---

func (r *SQLiteRepository) PaidMonths(ctx context.Context, apartmentID int64) (map[core.MonthKey]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month_paid FROM payments WHERE apartment_id = ?`, apartmentID)
	if err != nil {
		return nil, fmt.Errorf("paid months: %w", err)
	}
	defer rows.Close()

	paid := make(map[core.MonthKey]bool)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		var k core.MonthKey
		if err := k.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("parse month %q: %w", s, err)
		}
		paid[k] = true
	}
	return paid, rows.Err()
}

// SaveAllocation writes the payment rows and the apartment's new credit
// balance in one transaction. The UNIQUE(apartment_id, month_paid)
// constraint backs up the allocator's skip logic: a concurrent write to
// the same month fails the whole transaction instead of double-booking.
func (r *SQLiteRepository) SaveAllocation(ctx context.Context, apartment core.Apartment, payments []core.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin allocation: %w", err)
	}
	defer tx.Rollback()

	for _, p := range payments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payments (organization_id, apartment_id, amount_cents, payment_date, month_paid, credit_used_cents, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.OrganizationID, p.ApartmentID, p.Amount.Cents, p.PaymentDate.Format(dateFormat),
			p.MonthPaid.String(), p.CreditUsed.Cents, p.Description)
		if isUniqueViolation(err) {
			return fmt.Errorf("month %s: %w", p.MonthPaid, core.ErrMonthAlreadyPaid)
		}
		if err != nil {
			return fmt.Errorf("insert payment for %s: %w", p.MonthPaid, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE apartments SET credit_balance_cents = ? WHERE id = ? AND organization_id = ?`,
		apartment.CreditBalance.Cents, apartment.ID, apartment.OrganizationID)
	if err != nil {
		return fmt.Errorf("update credit balance: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocation: %w", err)
	}

	slog.InfoContext(ctx, "Allocation saved",
		"apartment_id", apartment.ID,
		"months", len(payments),
		"credit_balance_cents", apartment.CreditBalance.Cents)
	return nil
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (organization_id, amount_cents, expense_date, category, description)
		 VALUES (?, ?, ?, ?, ?)`,
		e.OrganizationID, e.Amount.Cents, e.ExpenseDate.Format(dateFormat), e.Category, e.Description)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"id", e.ID,
		"organization_id", e.OrganizationID,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount_cents = ?, expense_date = ?, category = ?, description = ?
		 WHERE id = ? AND organization_id = ?`,
		e.Amount.Cents, e.ExpenseDate.Format(dateFormat), e.Category, e.Description, e.ID, e.OrganizationID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, orgID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, orgID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, amount_cents, expense_date, category, description
		 FROM expenses WHERE organization_id = ? ORDER BY expense_date DESC, id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e           core.Expense
			expenseDate string
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Amount.Cents, &expenseDate, &e.Category, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.ExpenseDate = core.Date{Time: parseTimestamp(expenseDate)}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- alerts ---

func (r *SQLiteRepository) CreateAlert(ctx context.Context, alert *core.UnpaidAlert) error {
	if alert.AlertDate.IsZero() {
		alert.AlertDate = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO unpaid_alerts (organization_id, apartment_id, months_unpaid, alert_date, email_sent)
		 VALUES (?, ?, ?, ?, ?)`,
		alert.OrganizationID, alert.ApartmentID, alert.MonthsUnpaid,
		alert.AlertDate.Format(timeFormat), alert.EmailSent)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	alert.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("alert id: %w", err)
	}

	slog.InfoContext(ctx, "Unpaid alert created",
		"id", alert.ID,
		"apartment_id", alert.ApartmentID,
		"months_unpaid", alert.MonthsUnpaid)
	return nil
}

func (r *SQLiteRepository) LatestAlert(ctx context.Context, apartmentID int64) (core.UnpaidAlert, error) {
	return scanAlert(r.db.QueryRowContext(ctx,
		`SELECT id, organization_id, apartment_id, months_unpaid, alert_date, email_sent
		 FROM unpaid_alerts WHERE apartment_id = ? ORDER BY alert_date DESC, id DESC LIMIT 1`, apartmentID))
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, orgID int64) ([]core.UnpaidAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, apartment_id, months_unpaid, alert_date, email_sent
		 FROM unpaid_alerts WHERE organization_id = ? ORDER BY alert_date DESC, id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []core.UnpaidAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkAlertSent(ctx context.Context, orgID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE unpaid_alerts SET email_sent = 1 WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return requireRow(res)
}

func scanAlert(row rowScanner) (core.UnpaidAlert, error) {
	var (
		a         core.UnpaidAlert
		alertDate string
	)
	err := row.Scan(&a.ID, &a.OrganizationID, &a.ApartmentID, &a.MonthsUnpaid, &alertDate, &a.EmailSent)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UnpaidAlert{}, core.ErrNotFound
	}
	if err != nil {
		return core.UnpaidAlert{}, fmt.Errorf("scan alert: %w", err)
	}
	a.AlertDate = parseTimestamp(alertDate)
	return a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
