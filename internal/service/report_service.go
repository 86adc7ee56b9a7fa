package service

import (
	"context"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

// AgingBucket groups open balances by how late they are
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	Aging61To90  AgingBucket = "61-90"
	AgingOver90  AgingBucket = "90+"
)

// AgingBuckets lists the buckets in display order
var AgingBuckets = []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, Aging61To90, AgingOver90}

func agingBucket(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return AgingCurrent
	case daysOverdue <= 30:
		return Aging1To30
	case daysOverdue <= 60:
		return Aging31To60
	case daysOverdue <= 90:
		return Aging61To90
	default:
		return AgingOver90
	}
}

// Receivables summarizes what the owner is owed and what is still unbilled.
// All amounts are cents.
type Receivables struct {
	Outstanding     int64
	Overdue         int64
	OpenInvoices    int
	OverdueInvoices int
	Aging           map[AgingBucket]int64
	Drafts          int64

	UnbilledValue   int64
	UnbilledMinutes int64
	// UnpricedMinutes is billable time with no resolvable rate
	UnpricedMinutes int64
}

// ReportService provides receivable summaries
type ReportService interface {
	Receivables(ctx context.Context, owner int64) (*Receivables, error)
	RevenueByMonth(ctx context.Context, owner int64, year int) (map[time.Month]int64, error)
}

type reportService struct {
	base
}

// NewReportService creates a new report service
func NewReportService(d Deps) ReportService {
	return &reportService{base: newBase(d)}
}

func (s *reportService) Receivables(ctx context.Context, owner int64) (*Receivables, error) {
	now := s.now()
	out := &Receivables{Aging: make(map[AgingBucket]int64, len(AgingBuckets))}

	invoices, err := s.Store.Invoices().List(ctx, repository.InvoiceFilter{UserID: owner})
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		status := domain.DeriveStatus(inv, now)
		if status == domain.InvoiceStatusDraft {
			out.Drafts += inv.Total
			continue
		}
		if !status.AwaitingPayment() {
			continue
		}
		balance := inv.BalanceDue()
		out.Outstanding += balance
		out.OpenInvoices++
		if status == domain.InvoiceStatusOverdue {
			out.Overdue += balance
			out.OverdueInvoices++
		}
		out.Aging[agingBucket(inv.DaysOverdue(now))] += balance
	}

	entries, err := s.Store.Entries().List(ctx, repository.EntryFilter{UserID: owner, UnbilledOnly: true})
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsBillable || entry.IsRunning() {
			continue
		}
		rate, err := resolveEntryRate(ctx, s.Store, entry)
		if err != nil {
			return nil, err
		}
		if rate == nil {
			out.UnpricedMinutes += entry.DurationMinutes
			continue
		}
		out.UnbilledMinutes += entry.DurationMinutes
		out.UnbilledValue += hoursValue(entry.DurationMinutes, *rate)
	}
	return out, nil
}

// RevenueByMonth sums completed payments received in year
func (s *reportService) RevenueByMonth(ctx context.Context, owner int64, year int) (map[time.Month]int64, error) {
	invoices, err := s.Store.Invoices().List(ctx, repository.InvoiceFilter{UserID: owner})
	if err != nil {
		return nil, err
	}

	revenue := make(map[time.Month]int64)
	for _, inv := range invoices {
		if inv.AmountPaid == 0 {
			continue
		}
		payments, err := s.Store.Payments().ListByInvoice(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			if p.Status == domain.PaymentStatusCompleted && p.CreatedAt.Year() == year {
				revenue[p.CreatedAt.Month()] += p.Amount
			}
		}
	}
	return revenue, nil
}
