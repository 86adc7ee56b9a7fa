package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
)

// GeneralWork labels grouped time that has no project
const GeneralWork = "General work"

// TimeInvoiceRequest turns time entries into a draft invoice
type TimeInvoiceRequest struct {
	ClientID       int64
	ProjectID      *int64
	EntryIDs       []int64
	GroupByProject bool
	IssueDate      *time.Time
	DueDate        *time.Time
	TaxRate        *decimal.Decimal
	Discount       int64
	Notes          string
}

// MilestoneInvoiceRequest turns completed milestones into a draft invoice
type MilestoneInvoiceRequest struct {
	ProjectID    int64
	MilestoneIDs []int64
	IssueDate    *time.Time
	DueDate      *time.Time
	TaxRate      *decimal.Decimal
	Discount     int64
	Notes        string
}

// ConverterService creates invoices from tracked work
type ConverterService interface {
	// FromTimeEntries bills the eligible entries among req.EntryIDs. Entries
	// that cannot be billed are skipped; if none remain it fails with
	// domain.ErrNoBillableEntries.
	FromTimeEntries(ctx context.Context, owner int64, req TimeInvoiceRequest) (*domain.Invoice, error)

	// FromMilestones bills completed milestones as one line each
	FromMilestones(ctx context.Context, owner int64, req MilestoneInvoiceRequest) (*domain.Invoice, error)
}

type converterService struct {
	base
}

func NewConverterService(d Deps) ConverterService {
	return &converterService{base: newBase(d)}
}

// billableEntry is an entry that passed the filters, with its resolved rate
type billableEntry struct {
	entry   *domain.TimeEntry
	project *domain.Project
	rate    int64
}

// rateLookup caches the projects consulted while resolving rates
type rateLookup struct {
	tx       repository.Store
	projects map[int64]*domain.Project
}

func (l *rateLookup) project(ctx context.Context, id *int64) (*domain.Project, error) {
	if id == nil {
		return nil, nil
	}
	if p, ok := l.projects[*id]; ok {
		return p, nil
	}
	p, err := l.tx.Projects().GetByID(ctx, *id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	l.projects[*id] = p
	return p, nil
}

// selectBillable applies the conversion filters to the requested entries
func selectBillable(ctx context.Context, tx repository.Store, owner int64, client *domain.Client, req TimeInvoiceRequest) ([]billableEntry, error) {
	lookup := &rateLookup{tx: tx, projects: map[int64]*domain.Project{}}
	seen := make(map[int64]bool, len(req.EntryIDs))
	selected := make([]billableEntry, 0, len(req.EntryIDs))

	for _, id := range req.EntryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		entry, err := tx.Entries().GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if entry.UserID != owner || entry.ClientID != client.ID || !entry.IsBillable ||
			entry.IsLocked() || entry.IsRunning() || entry.IsDeleted {
			continue
		}
		// Under a minute of work would render a zero-quantity line.
		if !money.HoursFromMinutes(entry.DurationMinutes).IsPositive() {
			continue
		}
		if req.ProjectID != nil && (entry.ProjectID == nil || *entry.ProjectID != *req.ProjectID) {
			continue
		}

		project, err := lookup.project(ctx, entry.ProjectID)
		if err != nil {
			return nil, err
		}
		rate := domain.ResolveRate(entry, project, client)
		if rate == nil {
			continue
		}
		selected = append(selected, billableEntry{entry: entry, project: project, rate: *rate})
	}
	return selected, nil
}

// entryLines renders one line per entry at its own rate
func entryLines(selected []billableEntry) []*domain.InvoiceItem {
	items := make([]*domain.InvoiceItem, 0, len(selected))
	for _, b := range selected {
		desc := b.entry.Description
		if desc == "" {
			desc = fmt.Sprintf("Work on %s", b.entry.StartTime.Format("2006-01-02"))
		}
		item := domain.NewInvoiceItem(desc, money.HoursFromMinutes(b.entry.DurationMinutes), b.rate)
		id := b.entry.ID
		item.TimeEntryID = &id
		items = append(items, item)
	}
	return items
}

// projectLines buckets entries by project, summing minutes and billing each
// bucket at the highest rate found in it. Buckets keep first-seen order.
func projectLines(selected []billableEntry) []*domain.InvoiceItem {
	type bucket struct {
		label   string
		minutes int64
		rate    int64
	}
	order := make([]int64, 0)
	buckets := make(map[int64]*bucket)

	for _, b := range selected {
		var key int64
		label := GeneralWork
		if b.entry.ProjectID != nil {
			key = *b.entry.ProjectID
			if b.project != nil {
				label = b.project.Name
			}
		}
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{label: label}
			buckets[key] = bk
			order = append(order, key)
		}
		bk.minutes += b.entry.DurationMinutes
		if b.rate > bk.rate {
			bk.rate = b.rate
		}
	}

	items := make([]*domain.InvoiceItem, 0, len(order))
	for _, key := range order {
		bk := buckets[key]
		items = append(items, domain.NewInvoiceItem(bk.label, money.HoursFromMinutes(bk.minutes), bk.rate))
	}
	return items
}

func (s *converterService) FromTimeEntries(ctx context.Context, owner int64, req TimeInvoiceRequest) (*domain.Invoice, error) {
	issue, due := s.datesFor(req.IssueDate, req.DueDate)
	taxRate := s.Settings.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	var inv *domain.Invoice
	var billed int
	err := s.retry(ctx, "invoice_from_time", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			client, err := ownedClient(ctx, tx, owner, req.ClientID)
			if err != nil {
				return err
			}
			if req.ProjectID != nil {
				if err := checkProject(ctx, tx, owner, req.ClientID, *req.ProjectID); err != nil {
					return err
				}
			}

			selected, err := selectBillable(ctx, tx, owner, client, req)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return domain.ErrNoBillableEntries
			}

			items := entryLines(selected)
			if req.GroupByProject {
				items = projectLines(selected)
			}

			inv = domain.NewInvoice(owner, client.ID, req.ProjectID, issue, due)
			inv.Notes = req.Notes
			if err := inv.SetItems(items); err != nil {
				return err
			}
			if err := inv.SetAmounts(taxRate, req.Discount); err != nil {
				return err
			}
			if err := insertInvoice(ctx, tx, s.Settings.NumberPrefix, inv); err != nil {
				return err
			}

			ids := make([]int64, 0, len(selected))
			for _, b := range selected {
				ids = append(ids, b.entry.ID)
			}
			billed = len(ids)
			return tx.Entries().MarkBilled(ctx, ids, inv.ID)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.InvoiceCreated("time")
	s.publish(ctx, events.InvoiceCreated, invoiceEvent(inv))
	s.Logger.Info().
		Int64("invoice_id", inv.ID).
		Str("number", inv.InvoiceNumber).
		Int("entries", billed).
		Int("skipped", len(req.EntryIDs)-billed).
		Msg("invoice created from time entries")
	return inv, nil
}

func (s *converterService) FromMilestones(ctx context.Context, owner int64, req MilestoneInvoiceRequest) (*domain.Invoice, error) {
	issue, due := s.datesFor(req.IssueDate, req.DueDate)
	taxRate := s.Settings.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	var inv *domain.Invoice
	err := s.retry(ctx, "invoice_from_milestones", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			project, err := tx.Projects().GetByID(ctx, req.ProjectID)
			if err != nil {
				return err
			}
			if project.UserID != owner {
				return domain.NotFound("project", req.ProjectID)
			}

			items := make([]*domain.InvoiceItem, 0, len(req.MilestoneIDs))
			ids := make([]int64, 0, len(req.MilestoneIDs))
			seen := make(map[int64]bool)
			for _, id := range req.MilestoneIDs {
				if seen[id] {
					continue
				}
				seen[id] = true
				m, err := tx.Milestones().GetByID(ctx, id)
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if m.UserID != owner || m.ProjectID != project.ID || !m.IsBillable() {
					continue
				}
				item := domain.NewInvoiceItem(m.Name, decimal.NewFromInt(1), m.Amount)
				mid := m.ID
				item.MilestoneID = &mid
				items = append(items, item)
				ids = append(ids, m.ID)
			}
			if len(items) == 0 {
				return domain.Validation("milestone_ids", "no billable milestones")
			}

			projectID := project.ID
			inv = domain.NewInvoice(owner, project.ClientID, &projectID, issue, due)
			inv.Notes = req.Notes
			if err := inv.SetItems(items); err != nil {
				return err
			}
			if err := inv.SetAmounts(taxRate, req.Discount); err != nil {
				return err
			}
			if err := insertInvoice(ctx, tx, s.Settings.NumberPrefix, inv); err != nil {
				return err
			}
			return tx.Milestones().MarkInvoiced(ctx, ids, inv.ID)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.InvoiceCreated("milestones")
	s.publish(ctx, events.InvoiceCreated, invoiceEvent(inv))
	return inv, nil
}
