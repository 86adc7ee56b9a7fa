package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository"
)

type clientRepo struct{ s *Store }

func (r clientRepo) Create(ctx context.Context, c *domain.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	for _, existing := range st.clients {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return domain.Conflict(fmt.Sprintf("client %q already exists", c.Name))
		}
	}
	c.ID = st.id()
	st.clients[c.ID] = *c
	return nil
}

func (r clientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	defer r.s.lock()()
	c, ok := r.s.st().clients[id]
	if !ok {
		return nil, domain.NotFound("client", id)
	}
	return &c, nil
}

func (r clientRepo) GetByName(ctx context.Context, userID int64, name string) (*domain.Client, error) {
	defer r.s.lock()()
	for _, c := range r.s.st().clients {
		if c.UserID == userID && strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, &domain.Error{Kind: domain.ErrNotFound, Message: fmt.Sprintf("client %q not found", name)}
}

func (r clientRepo) List(ctx context.Context, userID int64, includeArchived bool) ([]*domain.Client, error) {
	defer r.s.lock()()
	out := make([]*domain.Client, 0)
	for _, c := range r.s.st().clients {
		if c.UserID != userID || (c.IsArchived && !includeArchived) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r clientRepo) Update(ctx context.Context, c *domain.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.clients[c.ID]; !ok {
		return domain.NotFound("client", c.ID)
	}
	c.UpdatedAt = time.Now().UTC()
	st.clients[c.ID] = *c
	return nil
}

func (r clientRepo) Archive(ctx context.Context, id int64) error   { return r.setArchived(id, true) }
func (r clientRepo) Unarchive(ctx context.Context, id int64) error { return r.setArchived(id, false) }

func (r clientRepo) setArchived(id int64, archived bool) error {
	defer r.s.lock()()
	st := r.s.st()
	c, ok := st.clients[id]
	if !ok {
		return domain.NotFound("client", id)
	}
	c.IsArchived = archived
	st.clients[id] = c
	return nil
}

type projectRepo struct{ s *Store }

func (r projectRepo) Create(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	p.ID = st.id()
	st.projects[p.ID] = *p
	return nil
}

func (r projectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	defer r.s.lock()()
	p, ok := r.s.st().projects[id]
	if !ok {
		return nil, domain.NotFound("project", id)
	}
	return &p, nil
}

func (r projectRepo) List(ctx context.Context, userID int64, clientID *int64, includeArchived bool) ([]*domain.Project, error) {
	defer r.s.lock()()
	out := make([]*domain.Project, 0)
	for _, p := range r.s.st().projects {
		if p.UserID != userID || (clientID != nil && p.ClientID != *clientID) || (p.IsArchived && !includeArchived) {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r projectRepo) Update(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	if _, ok := st.projects[p.ID]; !ok {
		return domain.NotFound("project", p.ID)
	}
	st.projects[p.ID] = *p
	return nil
}

type milestoneRepo struct{ s *Store }

func (r milestoneRepo) Create(ctx context.Context, m *domain.Milestone) error {
	if err := m.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	m.ID = st.id()
	st.milestones[m.ID] = *m
	return nil
}

func (r milestoneRepo) GetByID(ctx context.Context, id int64) (*domain.Milestone, error) {
	defer r.s.lock()()
	m, ok := r.s.st().milestones[id]
	if !ok {
		return nil, domain.NotFound("milestone", id)
	}
	return &m, nil
}

func (r milestoneRepo) List(ctx context.Context, userID int64, projectID *int64) ([]*domain.Milestone, error) {
	defer r.s.lock()()
	out := make([]*domain.Milestone, 0)
	for _, m := range r.s.st().milestones {
		if m.UserID != userID || (projectID != nil && m.ProjectID != *projectID) {
			continue
		}
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r milestoneRepo) Update(ctx context.Context, m *domain.Milestone) error {
	if err := m.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	cur, ok := st.milestones[m.ID]
	if !ok {
		return domain.NotFound("milestone", m.ID)
	}
	if cur.Status == domain.MilestoneStatusInvoiced || m.Status == domain.MilestoneStatusInvoiced {
		return domain.Immutable("milestone", "already invoiced")
	}
	st.milestones[m.ID] = *m
	return nil
}

func (r milestoneRepo) MarkInvoiced(ctx context.Context, ids []int64, invoiceID int64) error {
	defer r.s.lock()()
	st := r.s.st()
	for _, id := range ids {
		m, ok := st.milestones[id]
		if !ok || !m.IsBillable() {
			return domain.Concurrency("invoice milestone", fmt.Errorf("milestone %d is no longer billable", id))
		}
	}
	for _, id := range ids {
		m := st.milestones[id]
		inv := invoiceID
		m.Status = domain.MilestoneStatusInvoiced
		m.InvoiceID = &inv
		st.milestones[id] = m
	}
	return nil
}

func (r milestoneRepo) ReleaseInvoice(ctx context.Context, invoiceID int64) error {
	defer r.s.lock()()
	st := r.s.st()
	for id, m := range st.milestones {
		if m.InvoiceID != nil && *m.InvoiceID == invoiceID {
			m.InvoiceID = nil
			m.Status = domain.MilestoneStatusCompleted
			st.milestones[id] = m
		}
	}
	return nil
}

type entryRepo struct{ s *Store }

func (r entryRepo) Create(ctx context.Context, e *domain.TimeEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	if e.IsRunning() {
		for _, other := range st.entries {
			if other.UserID == e.UserID && other.IsRunning() && !other.IsDeleted {
				return domain.Conflict("a timer is already running")
			}
		}
	}
	e.ID = st.id()
	st.entries[e.ID] = *e
	return nil
}

func (r entryRepo) GetByID(ctx context.Context, id int64) (*domain.TimeEntry, error) {
	defer r.s.lock()()
	e, ok := r.s.st().entries[id]
	if !ok {
		return nil, domain.NotFound("time entry", id)
	}
	return &e, nil
}

func (r entryRepo) Update(ctx context.Context, e *domain.TimeEntry, reason string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	st := r.s.st()
	old, ok := st.entries[e.ID]
	if !ok {
		return domain.NotFound("time entry", e.ID)
	}
	if old.IsLocked() || old.IsDeleted {
		return domain.Immutable(fmt.Sprintf("time entry %d", e.ID), "deleted or billed")
	}
	for _, h := range domain.DiffEntries(&old, e, reason) {
		h.ID = st.id()
		st.history = append(st.history, *h)
	}
	e.UpdatedAt = time.Now().UTC()
	st.entries[e.ID] = *e
	return nil
}

func (r entryRepo) SoftDelete(ctx context.Context, id int64, reason string) error {
	defer r.s.lock()()
	st := r.s.st()
	e, ok := st.entries[id]
	if !ok {
		return domain.NotFound("time entry", id)
	}
	if e.IsLocked() || e.IsDeleted {
		return domain.Immutable(fmt.Sprintf("time entry %d", id), "billed or already deleted")
	}
	e.IsDeleted = true
	st.entries[id] = e
	h := domain.NewEntryHistory(id, "is_deleted", "false", "true", reason)
	h.ID = st.id()
	st.history = append(st.history, *h)
	return nil
}

func (r entryRepo) List(ctx context.Context, f repository.EntryFilter) ([]*domain.TimeEntry, error) {
	defer r.s.lock()()
	out := make([]*domain.TimeEntry, 0)
	for _, e := range r.s.st().entries {
		switch {
		case e.IsDeleted, e.UserID != f.UserID:
			continue
		case f.ClientID != nil && e.ClientID != *f.ClientID:
			continue
		case f.ProjectID != nil && (e.ProjectID == nil || *e.ProjectID != *f.ProjectID):
			continue
		case f.Start != nil && e.StartTime.Before(*f.Start):
			continue
		case f.End != nil && e.StartTime.After(*f.End):
			continue
		case f.UnbilledOnly && e.IsBilled:
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r entryRepo) GetRunning(ctx context.Context, userID int64) (*domain.TimeEntry, error) {
	defer r.s.lock()()
	for _, e := range r.s.st().entries {
		if e.UserID == userID && e.IsRunning() && !e.IsDeleted {
			return &e, nil
		}
	}
	return nil, nil
}

func (r entryRepo) MarkBilled(ctx context.Context, ids []int64, invoiceID int64) error {
	defer r.s.lock()()
	st := r.s.st()
	for _, id := range ids {
		e, ok := st.entries[id]
		if !ok || e.IsBilled || e.IsDeleted || e.IsRunning() {
			return domain.Concurrency("bill time entry", fmt.Errorf("entry %d is no longer billable", id))
		}
	}
	for _, id := range ids {
		e := st.entries[id]
		e.MarkBilled(invoiceID)
		st.entries[id] = e
	}
	return nil
}

func (r entryRepo) ReleaseInvoice(ctx context.Context, invoiceID int64) error {
	defer r.s.lock()()
	st := r.s.st()
	for id, e := range st.entries {
		if e.InvoiceID != nil && *e.InvoiceID == invoiceID {
			e.InvoiceID = nil
			e.IsBilled = false
			st.entries[id] = e
		}
	}
	return nil
}

func (r entryRepo) GetHistory(ctx context.Context, entryID int64) ([]*domain.EntryHistory, error) {
	defer r.s.lock()()
	out := make([]*domain.EntryHistory, 0)
	hist := r.s.st().history
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].EntryID == entryID {
			h := hist[i]
			out = append(out, &h)
		}
	}
	return out, nil
}
