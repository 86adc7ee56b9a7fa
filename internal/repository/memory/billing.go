package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) Create(ctx context.Context, inv *domain.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if inv.InvoiceNumber == "" {
		return domain.Validation("invoice_number", "invoice number is required")
	}
	defer r.s.lock()()
	st := r.s.st()
	for _, other := range st.invoices {
		if other.InvoiceNumber == inv.InvoiceNumber {
			return domain.Concurrency("create invoice", fmt.Errorf("invoice number %s is taken", inv.InvoiceNumber))
		}
	}
	if inv.Version == 0 {
		inv.Version = 1
	}
	inv.ID = st.id()
	st.putItems(inv.ID, inv.Items)
	row := *inv
	row.Items = nil
	st.invoices[inv.ID] = row
	return nil
}

func (st *state) putItems(invoiceID int64, items []*domain.InvoiceItem) {
	rows := make([]domain.InvoiceItem, 0, len(items))
	for pos, it := range items {
		it.InvoiceID = invoiceID
		it.Position = pos
		if it.ID == 0 {
			it.ID = st.id()
		}
		rows = append(rows, *it)
	}
	st.items[invoiceID] = rows
}

func (st *state) loadInvoice(id int64, withItems bool) (*domain.Invoice, bool) {
	row, ok := st.invoices[id]
	if !ok {
		return nil, false
	}
	inv := row
	inv.Items = make([]*domain.InvoiceItem, 0)
	if withItems {
		for _, it := range st.items[id] {
			it := it
			inv.Items = append(inv.Items, &it)
		}
	}
	return &inv, true
}

func (r invoiceRepo) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	defer r.s.lock()()
	inv, ok := r.s.st().loadInvoice(id, true)
	if !ok {
		return nil, domain.NotFound("invoice", id)
	}
	return inv, nil
}

func (r invoiceRepo) GetByNumber(ctx context.Context, userID int64, number string) (*domain.Invoice, error) {
	defer r.s.lock()()
	st := r.s.st()
	for id, row := range st.invoices {
		if row.UserID == userID && row.InvoiceNumber == number {
			inv, _ := st.loadInvoice(id, true)
			return inv, nil
		}
	}
	return nil, &domain.Error{Kind: domain.ErrNotFound, Message: fmt.Sprintf("invoice %s not found", number)}
}

func (r invoiceRepo) List(ctx context.Context, f repository.InvoiceFilter) ([]*domain.Invoice, error) {
	defer r.s.lock()()
	st := r.s.st()
	out := make([]*domain.Invoice, 0)
	for id, row := range st.invoices {
		if row.UserID != f.UserID || (f.ClientID != nil && row.ClientID != *f.ClientID) || (f.Status != nil && row.Status != *f.Status) {
			continue
		}
		inv, _ := st.loadInvoice(id, false)
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.After(out[j].IssueDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r invoiceRepo) ListPastDue(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error) {
	defer r.s.lock()()
	st := r.s.st()
	out := make([]*domain.Invoice, 0)
	for id, row := range st.invoices {
		if (row.Status == domain.InvoiceStatusSent || row.Status == domain.InvoiceStatusViewed) && row.DueDate.Before(cutoff) {
			inv, _ := st.loadInvoice(id, false)
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r invoiceRepo) Update(ctx context.Context, inv *domain.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	cur, ok := st.invoices[inv.ID]
	if !ok {
		return domain.NotFound("invoice", inv.ID)
	}
	if cur.Version != inv.Version {
		return domain.Concurrency("update invoice", fmt.Errorf("invoice %d changed since version %d", inv.ID, inv.Version))
	}
	inv.Version++
	inv.UpdatedAt = time.Now().UTC()
	row := *inv
	row.Items = nil
	st.invoices[inv.ID] = row
	return nil
}

func (r invoiceRepo) ReplaceItems(ctx context.Context, invoiceID int64, items []*domain.InvoiceItem) error {
	defer r.s.lock()()
	st := r.s.st()
	for _, it := range items {
		it.ID = 0
	}
	st.putItems(invoiceID, items)
	return nil
}

func (r invoiceRepo) Delete(ctx context.Context, id int64) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.invoices[id]; !ok {
		return domain.NotFound("invoice", id)
	}
	delete(st.invoices, id)
	delete(st.items, id)
	for pid, p := range st.payments {
		if p.InvoiceID == id {
			delete(st.payments, pid)
		}
	}
	for rid, rem := range st.reminders {
		if rem.InvoiceID == id {
			delete(st.reminders, rid)
		}
	}
	return nil
}

func (r invoiceRepo) NextSequence(ctx context.Context, userID int64, year int) (int64, error) {
	defer r.s.lock()()
	st := r.s.st()
	key := sequenceKey{userID: userID, year: year}
	st.sequences[key]++
	return st.sequences[key], nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.invoices[p.InvoiceID]; !ok {
		return domain.NotFound("invoice", p.InvoiceID)
	}
	p.ID = st.id()
	st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.Payment, error) {
	defer r.s.lock()()
	out := make([]*domain.Payment, 0)
	for _, p := range r.s.st().payments {
		if p.InvoiceID == invoiceID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r paymentRepo) CountByInvoice(ctx context.Context, invoiceID int64) (int, error) {
	payments, err := r.ListByInvoice(ctx, invoiceID)
	return len(payments), err
}

type reminderRepo struct{ s *Store }

func (r reminderRepo) Create(ctx context.Context, rem *domain.ReminderSchedule) error {
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.invoices[rem.InvoiceID]; !ok {
		return domain.NotFound("invoice", rem.InvoiceID)
	}
	rem.ID = st.id()
	st.reminders[rem.ID] = *rem
	return nil
}

func (r reminderRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]*domain.ReminderSchedule, error) {
	defer r.s.lock()()
	out := make([]*domain.ReminderSchedule, 0)
	for _, rem := range r.s.st().reminders {
		if rem.InvoiceID == invoiceID {
			rem := rem
			out = append(out, &rem)
		}
	}
	sortReminders(out)
	return out, nil
}

func (r reminderRepo) CancelScheduled(ctx context.Context, invoiceID int64, at time.Time) (int64, error) {
	defer r.s.lock()()
	st := r.s.st()
	var n int64
	for id, rem := range st.reminders {
		if rem.InvoiceID == invoiceID && rem.Status == domain.ReminderStatusScheduled {
			rem.Status = domain.ReminderStatusCancelled
			rem.UpdatedAt = at
			st.reminders[id] = rem
			n++
		}
	}
	return n, nil
}

func (r reminderRepo) Cancel(ctx context.Context, id int64, at time.Time) error {
	defer r.s.lock()()
	st := r.s.st()
	if rem, ok := st.reminders[id]; ok && rem.Status == domain.ReminderStatusScheduled {
		rem.Status = domain.ReminderStatusCancelled
		rem.UpdatedAt = at
		st.reminders[id] = rem
	}
	return nil
}

func leaseFree(rem domain.ReminderSchedule, leaseCutoff time.Time) bool {
	return rem.ClaimedAt == nil || rem.ClaimedAt.Before(leaseCutoff)
}

func (r reminderRepo) ListDue(ctx context.Context, now, leaseCutoff time.Time, limit int) ([]*domain.ReminderSchedule, error) {
	defer r.s.lock()()
	out := make([]*domain.ReminderSchedule, 0)
	for _, rem := range r.s.st().reminders {
		if rem.IsDue(now) && leaseFree(rem, leaseCutoff) {
			rem := rem
			out = append(out, &rem)
		}
	}
	sortReminders(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r reminderRepo) Claim(ctx context.Context, id int64, token string, now, leaseCutoff time.Time) (bool, error) {
	defer r.s.lock()()
	st := r.s.st()
	rem, ok := st.reminders[id]
	if !ok || rem.Status != domain.ReminderStatusScheduled || !leaseFree(rem, leaseCutoff) {
		return false, nil
	}
	at := now.UTC()
	rem.ClaimToken = token
	rem.ClaimedAt = &at
	st.reminders[id] = rem
	return true, nil
}

func (r reminderRepo) Complete(ctx context.Context, id int64, token string, res repository.ReminderResult) (bool, error) {
	defer r.s.lock()()
	st := r.s.st()
	rem, ok := st.reminders[id]
	if !ok || rem.ClaimToken != token || rem.Status != domain.ReminderStatusScheduled {
		return false, nil
	}
	rem.Status = res.Status
	rem.SentAt = res.SentAt
	rem.EmailID = res.EmailID
	rem.Error = res.Error
	rem.UpdatedAt = res.At
	st.reminders[id] = rem
	return true, nil
}

func sortReminders(out []*domain.ReminderSchedule) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
}
