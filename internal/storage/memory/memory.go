// Package memory provides an in-memory implementation of the repo ports.
// It backs tests and the DATA_BACKEND=memory mode; nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"syndic/internal/core"
)

// Store keeps every record in maps guarded by one mutex. Allocation
// writes are atomic by construction: the unique-month check and the
// inserts happen under the same lock.
type Store struct {
	mu sync.Mutex

	orgs       map[int64]core.Organization
	blocks     map[int64]core.Block
	apartments map[int64]core.Apartment
	payments   map[int64]core.Payment
	expenses   map[int64]core.Expense
	alerts     map[int64]core.UnpaidAlert

	nextID int64
}

func New() *Store {
	return &Store{
		orgs:       make(map[int64]core.Organization),
		blocks:     make(map[int64]core.Block),
		apartments: make(map[int64]core.Apartment),
		payments:   make(map[int64]core.Payment),
		expenses:   make(map[int64]core.Expense),
		alerts:     make(map[int64]core.UnpaidAlert),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// --- organizations ---

func (s *Store) CreateOrganization(_ context.Context, org *core.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org.ID = s.id()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	s.orgs[org.ID] = *org
	return nil
}

func (s *Store) OrganizationByID(_ context.Context, id int64) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return core.Organization{}, core.ErrNotFound
	}
	return org, nil
}

func (s *Store) ListOrganizations(_ context.Context) ([]core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- blocks ---

func (s *Store) CreateBlock(_ context.Context, block *core.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	block.ID = s.id()
	s.blocks[block.ID] = *block
	return nil
}

func (s *Store) ListBlocks(_ context.Context, orgID int64) ([]core.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Block
	for _, b := range s.blocks {
		if b.OrganizationID == orgID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- apartments ---

func (s *Store) CreateApartment(_ context.Context, apt *core.Apartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	apt.ID = s.id()
	if apt.CreatedAt.IsZero() {
		apt.CreatedAt = time.Now().UTC()
	}
	s.apartments[apt.ID] = *apt
	return nil
}

func (s *Store) UpdateApartment(_ context.Context, apt core.Apartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apartments[apt.ID]
	if !ok || existing.OrganizationID != apt.OrganizationID {
		return core.ErrNotFound
	}
	s.apartments[apt.ID] = apt
	return nil
}

func (s *Store) DeleteApartment(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	apt, ok := s.apartments[id]
	if !ok || apt.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.apartments, id)
	for pid, p := range s.payments {
		if p.ApartmentID == id {
			delete(s.payments, pid)
		}
	}
	for aid, a := range s.alerts {
		if a.ApartmentID == id {
			delete(s.alerts, aid)
		}
	}
	return nil
}

func (s *Store) ApartmentByID(_ context.Context, orgID, apartmentID int64) (core.Apartment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apt, ok := s.apartments[apartmentID]
	if !ok || apt.OrganizationID != orgID {
		return core.Apartment{}, core.ErrNotFound
	}
	return apt, nil
}

func (s *Store) ListApartments(_ context.Context, orgID int64) ([]core.Apartment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Apartment
	for _, apt := range s.apartments {
		if apt.OrganizationID == orgID {
			out = append(out, apt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- payments ---

func (s *Store) PaymentByID(_ context.Context, orgID, id int64) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.OrganizationID != orgID {
		return core.Payment{}, core.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(_ context.Context, orgID int64) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Payment
	for _, p := range s.payments {
		if p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdatePayment(_ context.Context, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.payments[p.ID]
	if !ok || existing.OrganizationID != p.OrganizationID {
		return core.ErrNotFound
	}
	if p.MonthPaid != existing.MonthPaid {
		for _, other := range s.payments {
			if other.ID != p.ID && other.ApartmentID == p.ApartmentID && other.MonthPaid == p.MonthPaid {
				return fmt.Errorf("payment for %s: %w", p.MonthPaid, core.ErrMonthAlreadyPaid)
			}
		}
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) DeletePayment(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) PaidMonths(_ context.Context, apartmentID int64) (map[core.MonthKey]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paid := make(map[core.MonthKey]bool)
	for _, p := range s.payments {
		if p.ApartmentID == apartmentID {
			paid[p.MonthPaid] = true
		}
	}
	return paid, nil
}

// SaveAllocation writes the updated credit balance and the new payment
// rows as one unit. A duplicate (apartment, month) pair fails the whole
// call and leaves nothing written.
func (s *Store) SaveAllocation(_ context.Context, apartment core.Apartment, payments []core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	apt, ok := s.apartments[apartment.ID]
	if !ok || apt.OrganizationID != apartment.OrganizationID {
		return core.ErrNotFound
	}
	for _, p := range payments {
		for _, existing := range s.payments {
			if existing.ApartmentID == p.ApartmentID && existing.MonthPaid == p.MonthPaid {
				return fmt.Errorf("payment for %s: %w", p.MonthPaid, core.ErrMonthAlreadyPaid)
			}
		}
	}
	apt.CreditBalance = apartment.CreditBalance
	s.apartments[apartment.ID] = apt
	for _, p := range payments {
		p.ID = s.id()
		s.payments[p.ID] = p
	}
	return nil
}

// --- expenses ---

func (s *Store) CreateExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	s.expenses[e.ID] = *e
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[e.ID]
	if !ok || existing.OrganizationID != e.OrganizationID {
		return core.ErrNotFound
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, orgID int64) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.OrganizationID == orgID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- alerts ---

func (s *Store) CreateAlert(_ context.Context, alert *core.UnpaidAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.ID = s.id()
	if alert.AlertDate.IsZero() {
		alert.AlertDate = time.Now().UTC()
	}
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *Store) LatestAlert(_ context.Context, apartmentID int64) (core.UnpaidAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest core.UnpaidAlert
	found := false
	for _, a := range s.alerts {
		if a.ApartmentID != apartmentID {
			continue
		}
		if !found || a.AlertDate.After(latest.AlertDate) {
			latest = a
			found = true
		}
	}
	if !found {
		return core.UnpaidAlert{}, core.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListAlerts(_ context.Context, orgID int64) ([]core.UnpaidAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.UnpaidAlert
	for _, a := range s.alerts {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkAlertSent(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.OrganizationID != orgID {
		return core.ErrNotFound
	}
	a.EmailSent = true
	s.alerts[id] = a
	return nil
}
