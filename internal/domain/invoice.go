package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/andy/billsink/internal/money"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusViewed    InvoiceStatus = "viewed"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusViewed, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusViewed:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {InvoiceStatusDraft},
}

// ParseInvoiceStatus validates a status name.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := invoiceTransitions[status]; !ok {
		return "", Validation("status", fmt.Sprintf("unknown invoice status %q", s))
	}
	return status, nil
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AwaitingPayment is true for statuses that accept payments and reminders.
func (s InvoiceStatus) AwaitingPayment() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusViewed || s == InvoiceStatusOverdue
}

type InvoiceItem struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   int64
	Total       int64
	MilestoneID *int64
	TimeEntryID *int64
	Position    int
}

// NewInvoiceItem builds a line with its total rounded half-up.
func NewInvoiceItem(description string, quantity decimal.Decimal, unitPrice int64) *InvoiceItem {
	qty := money.RoundQuantity(quantity)
	return &InvoiceItem{
		Description: strings.TrimSpace(description),
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Total:       money.LineTotal(qty, unitPrice),
	}
}

func (it *InvoiceItem) Validate() error {
	if it.Description == "" {
		return Validation("items.description", "description is required")
	}
	if !it.Quantity.IsPositive() {
		return Validation("items.quantity", "quantity must be positive")
	}
	if it.UnitPrice < 0 {
		return Validation("items.unit_price", "unit price cannot be negative")
	}
	return nil
}

// Invoice is the aggregate root for billing state. Status and AmountPaid are
// only changed through its methods.
type Invoice struct {
	ID             int64
	UserID         int64
	ClientID       int64
	ProjectID      *int64
	InvoiceNumber  string
	Status         InvoiceStatus
	IssueDate      time.Time
	DueDate        time.Time
	Subtotal       int64
	TaxRate        decimal.Decimal // percent, 8.25 = 8.25%
	TaxAmount      int64
	DiscountAmount int64
	Total          int64
	AmountPaid     int64
	Notes          string
	SentAt         *time.Time
	ViewedAt       *time.Time
	PaidAt         *time.Time
	CancelledAt    *time.Time
	LastReminderAt *time.Time
	ReminderCount  int
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Items []*InvoiceItem
}

// NewInvoice creates an empty draft invoice
func NewInvoice(userID, clientID int64, projectID *int64, issueDate, dueDate time.Time) *Invoice {
	now := time.Now().UTC()
	return &Invoice{
		UserID:    userID,
		ClientID:  clientID,
		ProjectID: projectID,
		Status:    InvoiceStatusDraft,
		IssueDate: StartOfDay(issueDate),
		DueDate:   StartOfDay(dueDate),
		TaxRate:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]*InvoiceItem, 0),
	}
}

// CanEdit returns true if items and amounts can still be modified
func (i *Invoice) CanEdit() bool {
	return i.Status == InvoiceStatusDraft
}

// BalanceDue is max(0, Total - AmountPaid).
func (i *Invoice) BalanceDue() int64 {
	return money.BalanceDue(i.Total, i.AmountPaid)
}

// SetItems replaces the line items of a draft and recomputes totals.
func (i *Invoice) SetItems(items []*InvoiceItem) error {
	if !i.CanEdit() {
		return Immutable("invoice "+i.InvoiceNumber, "items are locked once the invoice leaves draft")
	}
	for pos, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
		it.Position = pos
		it.InvoiceID = i.ID
	}
	i.Items = items
	return i.Recalculate()
}

// SetAmounts changes tax rate and discount of a draft and recomputes totals.
func (i *Invoice) SetAmounts(taxRate decimal.Decimal, discount int64) error {
	if !i.CanEdit() {
		return Immutable("invoice "+i.InvoiceNumber, "amounts are locked once the invoice leaves draft")
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(100)) {
		return Validation("tax_rate", "tax rate must be between 0 and 100")
	}
	if discount < 0 {
		return Validation("discount_amount", "discount cannot be negative")
	}
	prevRate, prevDiscount := i.TaxRate, i.DiscountAmount
	i.TaxRate = taxRate
	i.DiscountAmount = discount
	if err := i.Recalculate(); err != nil {
		i.TaxRate, i.DiscountAmount = prevRate, prevDiscount
		return err
	}
	return nil
}

// Recalculate derives subtotal, tax and total from the items.
func (i *Invoice) Recalculate() error {
	var subtotal int64
	for _, it := range i.Items {
		it.Total = money.LineTotal(it.Quantity, it.UnitPrice)
		subtotal += it.Total
	}
	tax := money.Tax(subtotal, i.TaxRate)
	if i.DiscountAmount > subtotal+tax {
		return Validation("discount_amount", "discount exceeds subtotal plus tax")
	}
	total := subtotal + tax - i.DiscountAmount
	if total < i.AmountPaid {
		return Validation("items", "total cannot drop below the amount already paid")
	}
	i.Subtotal = subtotal
	i.TaxAmount = tax
	i.Total = total
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionTo moves the invoice along the transition table and stamps the
// matching timestamp.
func (i *Invoice) TransitionTo(to InvoiceStatus, now time.Time) error {
	if !CanTransition(i.Status, to) {
		return InvalidTransition(i.Status, to)
	}
	at := now.UTC()
	switch to {
	case InvoiceStatusSent:
		if len(i.Items) == 0 || i.Total <= 0 {
			return Validation("items", "an invoice needs at least one billable line before it is sent")
		}
		i.SentAt = &at
	case InvoiceStatusViewed:
		i.ViewedAt = &at
	case InvoiceStatusPaid:
		i.PaidAt = &at
	case InvoiceStatusCancelled:
		i.CancelledAt = &at
	case InvoiceStatusDraft:
		i.CancelledAt = nil
	}
	i.Status = to
	i.UpdatedAt = at
	return nil
}

// ApplyPayment adds a completed payment to AmountPaid and moves the invoice
// to paid when the balance reaches zero. It reports whether that happened.
func (i *Invoice) ApplyPayment(amount int64, now time.Time) (bool, error) {
	if amount <= 0 {
		return false, Validation("amount", "payment amount must be positive")
	}
	if !i.Status.AwaitingPayment() {
		return false, &Error{Kind: ErrInvalidTransition, Message: fmt.Sprintf("cannot record a payment on a %s invoice", i.Status)}
	}
	if amount > i.BalanceDue() {
		return false, Validation("amount", fmt.Sprintf("payment of %s exceeds balance due %s", money.Format(amount), money.Format(i.BalanceDue())))
	}
	i.AmountPaid += amount
	i.UpdatedAt = now.UTC()
	if i.AmountPaid >= i.Total {
		if err := i.TransitionTo(InvoiceStatusPaid, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// SetDueDate moves the due date of an invoice that is still open.
func (i *Invoice) SetDueDate(due time.Time) error {
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed:
	default:
		return Immutable("invoice "+i.InvoiceNumber, fmt.Sprintf("due date cannot change on a %s invoice; cancel and reopen it to reissue", i.Status))
	}
	d := StartOfDay(due)
	if d.Before(i.IssueDate) {
		return Validation("due_date", "due date cannot be before the issue date")
	}
	i.DueDate = d
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordReminderSent bumps the reminder counters.
func (i *Invoice) RecordReminderSent(at time.Time) {
	t := at.UTC()
	i.LastReminderAt = &t
	i.ReminderCount++
}

// IsPastDue is true once the due date has fully passed.
func (i *Invoice) IsPastDue(now time.Time) bool {
	return !now.UTC().Before(i.DueDate.AddDate(0, 0, 1))
}

// DaysOverdue counts whole days since the due date, 0 if not yet due.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !i.IsPastDue(now) {
		return 0
	}
	return int(StartOfDay(now).Sub(i.DueDate).Hours() / 24)
}

// DeriveStatus is the status callers should observe: a sent or viewed
// invoice whose due date has passed reads as overdue.
func DeriveStatus(inv *Invoice, now time.Time) InvoiceStatus {
	if (inv.Status == InvoiceStatusSent || inv.Status == InvoiceStatusViewed) && inv.IsPastDue(now) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// Validate returns an error if the invoice is invalid
func (i *Invoice) Validate() error {
	if i.UserID <= 0 {
		return Validation("user_id", "owner is required")
	}
	if i.ClientID <= 0 {
		return Validation("client_id", "client is required")
	}
	if i.IssueDate.IsZero() {
		return Validation("issue_date", "issue date is required")
	}
	if i.DueDate.IsZero() {
		return Validation("due_date", "due date is required")
	}
	if i.DueDate.Before(i.IssueDate) {
		return Validation("due_date", "due date cannot be before the issue date")
	}
	if i.Total != i.Subtotal+i.TaxAmount-i.DiscountAmount || i.Total < 0 {
		return Validation("total", "total does not match subtotal, tax and discount")
	}
	if i.AmountPaid > i.Total {
		return Validation("amount_paid", "amount paid exceeds total")
	}
	return nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatInvoiceNumber renders PREFIX-OWNER-YEAR-SEQ, e.g. INV-1-2026-007.
// The owner segment keeps numbers unique across owners whose sequences
// run independently.
func FormatInvoiceNumber(prefix string, owner int64, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%d-%03d", prefix, owner, year, seq)
}
