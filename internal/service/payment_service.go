package service

import (
	"context"
	"fmt"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
)

// RecordPaymentRequest is one incoming payment
type RecordPaymentRequest struct {
	Amount    int64
	Method    domain.PaymentMethod
	Reference string
	Notes     string
}

// PaymentReceipt is the outcome of RecordPayment
type PaymentReceipt struct {
	Payment *domain.Payment
	Invoice *domain.Invoice
	// Capped is set when the requested amount exceeded the balance due and
	// only the balance was recorded.
	Capped bool
}

// PaymentService appends payments to the ledger
type PaymentService interface {
	// Record appends a completed payment and updates the invoice atomically.
	// Reaching the total marks the invoice paid and cancels its reminders.
	Record(ctx context.Context, owner, invoiceID int64, req RecordPaymentRequest) (*PaymentReceipt, error)

	// List returns the payments of an invoice, oldest first
	List(ctx context.Context, owner, invoiceID int64) ([]*domain.Payment, error)
}

type paymentService struct {
	base
}

func NewPaymentService(d Deps) PaymentService {
	return &paymentService{base: newBase(d)}
}

func (s *paymentService) Record(ctx context.Context, owner, invoiceID int64, req RecordPaymentRequest) (*PaymentReceipt, error) {
	if req.Amount <= 0 {
		return nil, domain.Validation("amount", "payment amount must be positive")
	}
	if req.Method == "" {
		req.Method = domain.PaymentMethodBankTransfer
	}

	var receipt *PaymentReceipt
	var settled bool
	err := s.retry(ctx, "record_payment", func() error {
		return s.Store.WithTx(ctx, func(tx repository.Store) error {
			now := s.now()
			inv, err := ownedInvoice(ctx, tx, owner, invoiceID)
			if err != nil {
				return err
			}
			if !inv.Status.AwaitingPayment() {
				return &domain.Error{Kind: domain.ErrInvalidTransition, Message: fmt.Sprintf("cannot record a payment on a %s invoice", inv.Status)}
			}

			amount, capped := req.Amount, false
			if balance := inv.BalanceDue(); amount > balance {
				if s.Settings.Overpayment != OverpaymentCap {
					return domain.Validation("amount", fmt.Sprintf("payment of %s exceeds balance due %s", money.Format(amount), money.Format(balance)))
				}
				amount, capped = balance, true
			}

			settled, err = inv.ApplyPayment(amount, now)
			if err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}

			payment := domain.NewPayment(inv.ID, amount, req.Method, req.Reference, req.Notes, now)
			if err := tx.Payments().Create(ctx, payment); err != nil {
				return fmt.Errorf("failed to record payment: %w", err)
			}

			if settled {
				if _, err := tx.Reminders().CancelScheduled(ctx, inv.ID, now); err != nil {
					return fmt.Errorf("failed to cancel reminders: %w", err)
				}
			}
			receipt = &PaymentReceipt{Payment: payment, Invoice: inv, Capped: capped}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.PaymentRecorded(string(receipt.Payment.Method), receipt.Payment.Amount)
	s.publish(ctx, events.PaymentRecorded, PaymentEvent{
		PaymentID:  receipt.Payment.ID,
		InvoiceID:  receipt.Invoice.ID,
		Amount:     receipt.Payment.Amount,
		Method:     string(receipt.Payment.Method),
		BalanceDue: receipt.Invoice.BalanceDue(),
	})
	if settled {
		s.Metrics.InvoiceTransitioned(string(domain.InvoiceStatusPaid))
		s.publish(ctx, events.InvoicePaid, invoiceEvent(receipt.Invoice))
	}
	s.Logger.Info().
		Int64("invoice_id", invoiceID).
		Int64("amount", receipt.Payment.Amount).
		Bool("capped", receipt.Capped).
		Bool("paid", settled).
		Msg("payment recorded")
	return receipt, nil
}

func (s *paymentService) List(ctx context.Context, owner, invoiceID int64) ([]*domain.Payment, error) {
	if _, err := ownedInvoice(ctx, s.Store, owner, invoiceID); err != nil {
		return nil, err
	}
	return s.Store.Payments().ListByInvoice(ctx, invoiceID)
}

// PaymentEvent is the payload of payment.recorded
type PaymentEvent struct {
	PaymentID  int64  `json:"payment_id"`
	InvoiceID  int64  `json:"invoice_id"`
	Amount     int64  `json:"amount"`
	Method     string `json:"method"`
	BalanceDue int64  `json:"balance_due"`
}
