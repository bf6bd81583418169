package services

import (
	"context"
	"fmt"
	"time"

	"syndic/internal/billing"
	"syndic/internal/cache"
	"syndic/internal/core"
	"syndic/internal/repo"
)

const (
	reportCacheSize = 64
	reportCacheTTL  = 5 * time.Minute
)

// Dashboard is the landing-page summary for one organization.
type Dashboard struct {
	Apartments    int
	Blocks        int
	TotalCredit   core.Money
	UnpaidCount   int
	ActiveAlerts  int
	MonthRevenue  core.Money
	MonthExpenses core.Money
}

// ReportService assembles the treasury and coverage reports from raw
// rows. Reports are recomputed from payments on every miss; the cache
// only smooths over bursts and is invalidated on any mutation.
type ReportService struct {
	store         repo.Store
	allocator     *billing.Allocator
	treasuryCache *cache.LRUCache[core.TreasuryReport]
	coverageCache *cache.LRUCache[core.CoverageReport]
	now           func() time.Time
}

func NewReportService(store repo.Store, allocator *billing.Allocator, manager *cache.Manager) *ReportService {
	s := &ReportService{
		store:         store,
		allocator:     allocator,
		treasuryCache: cache.NewLRUCache[core.TreasuryReport](reportCacheSize, reportCacheTTL),
		coverageCache: cache.NewLRUCache[core.CoverageReport](reportCacheSize, reportCacheTTL),
		now:           time.Now,
	}
	if manager != nil {
		manager.Register(s.treasuryCache)
		manager.Register(s.coverageCache)
	}
	return s
}

// Invalidate drops every cached report of the organization. Wired as
// the OnChange hook of the mutating services.
func (s *ReportService) Invalidate(orgID int64) {
	s.treasuryCache.DeletePrefix(fmt.Sprintf("treasury:%d", orgID))
	s.coverageCache.DeletePrefix(fmt.Sprintf("coverage:%d", orgID))
}

// Treasury builds the 12-month cash-flow report: payments bucketed by
// the date money arrived, expenses and running balance alongside.
func (s *ReportService) Treasury(ctx context.Context, orgID int64) (core.TreasuryReport, error) {
	key := fmt.Sprintf("treasury:%d", orgID)
	if report, ok := s.treasuryCache.Get(key); ok {
		return report, nil
	}

	apartments, blockNames, err := s.loadApartments(ctx, orgID)
	if err != nil {
		return core.TreasuryReport{}, err
	}
	payments, err := s.store.ListPayments(ctx, orgID)
	if err != nil {
		return core.TreasuryReport{}, fmt.Errorf("list payments: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, orgID)
	if err != nil {
		return core.TreasuryReport{}, fmt.Errorf("list expenses: %w", err)
	}

	report := core.BuildTreasuryReport(apartments, blockNames, payments, expenses, s.now())
	s.treasuryCache.Set(key, report)
	return report, nil
}

// Coverage builds the paid/unpaid matrix over the past 12 and next 3
// months for every apartment.
func (s *ReportService) Coverage(ctx context.Context, orgID int64) (core.CoverageReport, error) {
	key := fmt.Sprintf("coverage:%d", orgID)
	if report, ok := s.coverageCache.Get(key); ok {
		return report, nil
	}

	apartments, blockNames, err := s.loadApartments(ctx, orgID)
	if err != nil {
		return core.CoverageReport{}, err
	}

	paidByApartment := make(map[int64]map[core.MonthKey]bool, len(apartments))
	unpaidCounts := make(map[int64]int, len(apartments))
	for _, apt := range apartments {
		paid, err := s.store.PaidMonths(ctx, apt.ID)
		if err != nil {
			return core.CoverageReport{}, fmt.Errorf("paid months for apartment %d: %w", apt.ID, err)
		}
		paidByApartment[apt.ID] = paid

		count, err := s.allocator.UnpaidMonthCount(ctx, orgID, apt.ID)
		if err != nil {
			return core.CoverageReport{}, fmt.Errorf("unpaid count for apartment %d: %w", apt.ID, err)
		}
		unpaidCounts[apt.ID] = count
	}

	report := core.BuildCoverageReport(apartments, blockNames, paidByApartment, unpaidCounts, s.now())
	s.coverageCache.Set(key, report)
	return report, nil
}

// Summary builds the dashboard counters; never cached, the queries are
// cheap.
func (s *ReportService) Summary(ctx context.Context, orgID int64) (Dashboard, error) {
	apartments, _, err := s.loadApartments(ctx, orgID)
	if err != nil {
		return Dashboard{}, err
	}
	blocks, err := s.store.ListBlocks(ctx, orgID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list blocks: %w", err)
	}
	payments, err := s.store.ListPayments(ctx, orgID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list payments: %w", err)
	}
	expenses, err := s.store.ListExpenses(ctx, orgID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list expenses: %w", err)
	}
	alerts, err := s.store.ListAlerts(ctx, orgID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list alerts: %w", err)
	}

	d := Dashboard{
		Apartments: len(apartments),
		Blocks:     len(blocks),
	}
	for _, apt := range apartments {
		d.TotalCredit = d.TotalCredit.Add(apt.CreditBalance)
		count, err := s.allocator.UnpaidMonthCount(ctx, orgID, apt.ID)
		if err != nil {
			return Dashboard{}, fmt.Errorf("unpaid count for apartment %d: %w", apt.ID, err)
		}
		if count > 0 {
			d.UnpaidCount++
		}
	}

	thisMonth := core.MonthOf(s.now())
	for _, p := range payments {
		if core.MonthOf(p.PaymentDate.Time) == thisMonth {
			d.MonthRevenue = d.MonthRevenue.Add(p.Amount)
		}
	}
	for _, e := range expenses {
		if core.MonthOf(e.ExpenseDate.Time) == thisMonth {
			d.MonthExpenses = d.MonthExpenses.Add(e.Amount)
		}
	}
	for _, a := range alerts {
		if !a.EmailSent {
			d.ActiveAlerts++
		}
	}
	return d, nil
}

func (s *ReportService) loadApartments(ctx context.Context, orgID int64) ([]core.Apartment, map[int64]string, error) {
	apartments, err := s.store.ListApartments(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("list apartments: %w", err)
	}
	blocks, err := s.store.ListBlocks(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("list blocks: %w", err)
	}
	blockNames := make(map[int64]string, len(blocks))
	for _, b := range blocks {
		blockNames[b.ID] = b.Name
	}
	return apartments, blockNames, nil
}
