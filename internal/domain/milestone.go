package domain

import (
	"strings"
	"time"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
	MilestoneStatusInvoiced  MilestoneStatus = "invoiced"
)

// Milestone is a fixed-price deliverable billed as a single invoice line.
type Milestone struct {
	ID        int64
	UserID    int64
	ProjectID int64
	Name      string
	Amount    int64
	Status    MilestoneStatus
	InvoiceID *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewMilestone(userID, projectID int64, name string, amount int64) *Milestone {
	now := time.Now().UTC()
	return &Milestone{
		UserID:    userID,
		ProjectID: projectID,
		Name:      strings.TrimSpace(name),
		Amount:    amount,
		Status:    MilestoneStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (m *Milestone) Validate() error {
	if m.ProjectID <= 0 {
		return Validation("project_id", "project is required")
	}
	if m.Name == "" {
		return Validation("name", "milestone name is required")
	}
	if m.Amount <= 0 {
		return Validation("amount", "amount must be positive")
	}
	return nil
}

// IsBillable reports whether the milestone can be put on an invoice.
func (m *Milestone) IsBillable() bool {
	return m.Status == MilestoneStatusCompleted && m.InvoiceID == nil
}
