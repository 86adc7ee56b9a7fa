package domain

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodOther        PaymentMethod = "other"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// ParsePaymentMethod validates a method name, defaulting to bank transfer.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return PaymentMethodBankTransfer, nil
	case PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodCash, PaymentMethodCheck, PaymentMethodOther:
		return m, nil
	}
	return "", Validation("method", fmt.Sprintf("unknown payment method %q", s))
}

// Payment is an append-only ledger row against an invoice.
type Payment struct {
	ID        int64
	InvoiceID int64
	Amount    int64
	Method    PaymentMethod
	Status    PaymentStatus
	Reference string
	Notes     string
	CreatedAt time.Time
}

func NewPayment(invoiceID, amount int64, method PaymentMethod, reference, notes string, at time.Time) *Payment {
	return &Payment{
		InvoiceID: invoiceID,
		Amount:    amount,
		Method:    method,
		Status:    PaymentStatusCompleted,
		Reference: strings.TrimSpace(reference),
		Notes:     strings.TrimSpace(notes),
		CreatedAt: at.UTC(),
	}
}
