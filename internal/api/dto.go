package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/service"
)

// Amounts travel as integer cents. Quantities and tax rates are decimal
// strings so no precision is lost.

const dateLayout = "2006-01-02"

type itemRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
}

type createInvoiceRequest struct {
	ClientID  int64            `json:"client_id"`
	ProjectID *int64           `json:"project_id,omitempty"`
	IssueDate *string          `json:"issue_date,omitempty"`
	DueDate   *string          `json:"due_date,omitempty"`
	Items     []itemRequest    `json:"items"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"`
	Discount  int64            `json:"discount_amount"`
	Notes     string           `json:"notes"`
}

type timeInvoiceRequest struct {
	ClientID       int64            `json:"client_id"`
	ProjectID      *int64           `json:"project_id,omitempty"`
	EntryIDs       []int64          `json:"entry_ids"`
	GroupByProject bool             `json:"group_by_project"`
	IssueDate      *string          `json:"issue_date,omitempty"`
	DueDate        *string          `json:"due_date,omitempty"`
	TaxRate        *decimal.Decimal `json:"tax_rate,omitempty"`
	Discount       int64            `json:"discount_amount"`
	Notes          string           `json:"notes"`
}

type milestoneInvoiceRequest struct {
	ProjectID    int64            `json:"project_id"`
	MilestoneIDs []int64          `json:"milestone_ids"`
	IssueDate    *string          `json:"issue_date,omitempty"`
	DueDate      *string          `json:"due_date,omitempty"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	Discount     int64            `json:"discount_amount"`
	Notes        string           `json:"notes"`
}

type updateDraftRequest struct {
	Items    *[]itemRequest   `json:"items,omitempty"`
	TaxRate  *decimal.Decimal `json:"tax_rate,omitempty"`
	Discount *int64           `json:"discount_amount,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
	DueDate  *string          `json:"due_date,omitempty"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

type dueDateRequest struct {
	DueDate string `json:"due_date"`
}

type paymentRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, domain.Validation(field, "expected a date like 2026-03-31")
	}
	return &t, nil
}

func parseDates(issue, due *string) (*time.Time, *time.Time, error) {
	issueDate, err := parseDate("issue_date", issue)
	if err != nil {
		return nil, nil, err
	}
	dueDate, err := parseDate("due_date", due)
	if err != nil {
		return nil, nil, err
	}
	return issueDate, dueDate, nil
}

func itemInputs(items []itemRequest) []service.ItemInput {
	inputs := make([]service.ItemInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, service.ItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return inputs
}

type itemResponse struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Total       int64           `json:"total"`
	MilestoneID *int64          `json:"milestone_id,omitempty"`
	TimeEntryID *int64          `json:"time_entry_id,omitempty"`
}

type invoiceResponse struct {
	ID             int64           `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ClientID       int64           `json:"client_id"`
	ProjectID      *int64          `json:"project_id,omitempty"`
	Status         string          `json:"status"`
	IssueDate      string          `json:"issue_date"`
	DueDate        string          `json:"due_date"`
	Subtotal       int64           `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      int64           `json:"tax_amount"`
	DiscountAmount int64           `json:"discount_amount"`
	Total          int64           `json:"total"`
	AmountPaid     int64           `json:"amount_paid"`
	BalanceDue     int64           `json:"balance_due"`
	Notes          string          `json:"notes,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	ViewedAt       *time.Time      `json:"viewed_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	LastReminderAt *time.Time      `json:"last_reminder_at,omitempty"`
	ReminderCount  int             `json:"reminder_count"`
	Version        int64           `json:"version"`
	Items          []itemResponse  `json:"items,omitempty"`
}

func toInvoiceResponse(inv *domain.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		ClientID:       inv.ClientID,
		ProjectID:      inv.ProjectID,
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate.Format(dateLayout),
		DueDate:        inv.DueDate.Format(dateLayout),
		Subtotal:       inv.Subtotal,
		TaxRate:        inv.TaxRate,
		TaxAmount:      inv.TaxAmount,
		DiscountAmount: inv.DiscountAmount,
		Total:          inv.Total,
		AmountPaid:     inv.AmountPaid,
		BalanceDue:     inv.BalanceDue(),
		Notes:          inv.Notes,
		SentAt:         inv.SentAt,
		ViewedAt:       inv.ViewedAt,
		PaidAt:         inv.PaidAt,
		CancelledAt:    inv.CancelledAt,
		LastReminderAt: inv.LastReminderAt,
		ReminderCount:  inv.ReminderCount,
		Version:        inv.Version,
	}
	for _, it := range inv.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			MilestoneID: it.MilestoneID,
			TimeEntryID: it.TimeEntryID,
		})
	}
	return resp
}

type paymentResponse struct {
	ID        int64     `json:"id"`
	InvoiceID int64     `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Reference string    `json:"reference,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		Amount:    p.Amount,
		Method:    string(p.Method),
		Status:    string(p.Status),
		Reference: p.Reference,
		Notes:     p.Notes,
		CreatedAt: p.CreatedAt,
	}
}

type receiptResponse struct {
	Payment paymentResponse `json:"payment"`
	Invoice invoiceResponse `json:"invoice"`
	Capped  bool            `json:"capped"`
}

type reminderResponse struct {
	ID           int64      `json:"id"`
	InvoiceID    int64      `json:"invoice_id"`
	ReminderType string     `json:"reminder_type"`
	DaysOffset   int        `json:"days_offset"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	EmailID      string     `json:"email_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	Manual       bool       `json:"manual"`
}

func toReminderResponse(r *domain.ReminderSchedule) reminderResponse {
	return reminderResponse{
		ID:           r.ID,
		InvoiceID:    r.InvoiceID,
		ReminderType: string(r.ReminderType),
		DaysOffset:   r.DaysOffset,
		ScheduledFor: r.ScheduledFor,
		Status:       string(r.Status),
		SentAt:       r.SentAt,
		EmailID:      r.EmailID,
		Error:        r.Error,
		Manual:       r.Manual,
	}
}
