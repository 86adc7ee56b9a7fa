package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/service"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Record and list payments",
}

var paymentsRecordCmd = &cobra.Command{
	Use:   "record [invoice_id_or_number] [amount]",
	Short: "Record a payment against a sent invoice",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		amount, err := money.Parse(args[1])
		if err != nil {
			return err
		}
		methodStr, _ := cmd.Flags().GetString("method")
		method, err := domain.ParsePaymentMethod(methodStr)
		if err != nil {
			return err
		}
		reference, _ := cmd.Flags().GetString("reference")
		notes, _ := cmd.Flags().GetString("notes")

		receipt, err := appInstance.Payments.Record(ctx, appInstance.Owner(), id, service.RecordPaymentRequest{
			Amount:    amount,
			Method:    method,
			Reference: reference,
			Notes:     notes,
		})
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		fmt.Printf("✓ Payment of %s recorded on %s\n", money.Format(receipt.Payment.Amount), receipt.Invoice.InvoiceNumber)
		if receipt.Capped {
			fmt.Printf("  Amount capped at the balance due (requested %s)\n", money.Format(amount))
		}
		fmt.Printf("  Balance Due: %s\n", money.Format(receipt.Invoice.BalanceDue()))
		if receipt.Invoice.Status == domain.InvoiceStatusPaid {
			fmt.Println("  Invoice is now paid in full")
		}
		return nil
	},
}

var paymentsListCmd = &cobra.Command{
	Use:   "list [invoice_id_or_number]",
	Short: "List the payments of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		payments, err := appInstance.Payments.List(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}
		if len(payments) == 0 {
			fmt.Println("No payments recorded")
			return nil
		}
		printPayments(payments)
		return nil
	},
}

func printPayments(payments []*domain.Payment) {
	fmt.Printf("  %-5s %-17s %-12s %-14s %s\n", "ID", "Date", "Amount", "Method", "Reference")
	var total int64
	for _, p := range payments {
		fmt.Printf("  %-5d %-17s %-12s %-14s %s\n",
			p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04"), money.Format(p.Amount), p.Method, p.Reference)
		total += p.Amount
	}
	fmt.Printf("  Total received: %s\n", money.Format(total))
}

func init() {
	paymentsCmd.AddCommand(paymentsRecordCmd)
	paymentsCmd.AddCommand(paymentsListCmd)

	paymentsRecordCmd.Flags().String("method", "bank_transfer", "Payment method (bank_transfer, card, cash, check, other)")
	paymentsRecordCmd.Flags().String("reference", "", "Transaction reference")
	paymentsRecordCmd.Flags().String("notes", "", "Notes")
}
