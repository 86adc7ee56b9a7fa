package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/service"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Manage invoices",
	Long:  `Create, send, and track invoices through their lifecycle.`,
}

// invoiceTerms are the flags shared by every invoice-creating command
type invoiceTerms struct {
	issue    *time.Time
	due      *time.Time
	taxRate  *decimal.Decimal
	discount int64
	notes    string
}

func addTermsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("issue", "", "Issue date (YYYY-MM-DD, default today)")
	flags.String("due", "", "Due date (YYYY-MM-DD, default issue date plus the configured terms)")
	flags.String("tax", "", "Tax rate in percent, e.g. 8.25")
	flags.String("discount", "", "Discount amount, e.g. 50.00")
	flags.String("notes", "", "Notes printed on the invoice")
}

func readTerms(cmd *cobra.Command) (invoiceTerms, error) {
	var terms invoiceTerms
	var err error

	issueStr, _ := cmd.Flags().GetString("issue")
	if terms.issue, err = optionalDate(issueStr); err != nil {
		return terms, fmt.Errorf("invalid issue date: %w", err)
	}
	dueStr, _ := cmd.Flags().GetString("due")
	if terms.due, err = optionalDate(dueStr); err != nil {
		return terms, fmt.Errorf("invalid due date: %w", err)
	}
	if taxStr, _ := cmd.Flags().GetString("tax"); taxStr != "" {
		rate, err := decimal.NewFromString(taxStr)
		if err != nil {
			return terms, fmt.Errorf("invalid tax rate: %w", err)
		}
		terms.taxRate = &rate
	}
	if discountStr, _ := cmd.Flags().GetString("discount"); discountStr != "" {
		if terms.discount, err = money.Parse(discountStr); err != nil {
			return terms, fmt.Errorf("invalid discount: %w", err)
		}
	}
	terms.notes, _ = cmd.Flags().GetString("notes")
	return terms, nil
}

// parseItem reads "description|quantity|unit price", e.g. "Design|3|120"
func parseItem(s string) (service.ItemInput, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return service.ItemInput{}, fmt.Errorf("item %q: expected description|quantity|unit price", s)
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return service.ItemInput{}, fmt.Errorf("item %q: invalid quantity: %w", s, err)
	}
	price, err := money.Parse(parts[2])
	if err != nil {
		return service.ItemInput{}, fmt.Errorf("item %q: %w", s, err)
	}
	return service.ItemInput{Description: strings.TrimSpace(parts[0]), Quantity: qty, UnitPrice: price}, nil
}

func parseItems(raw []string) ([]service.ItemInput, error) {
	items := make([]service.ItemInput, 0, len(raw))
	for _, s := range raw {
		item, err := parseItem(s)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func printInvoiceSummary(verb string, inv *domain.Invoice) {
	fmt.Printf("✓ Invoice %s: %s (ID: %d)\n", verb, inv.InvoiceNumber, inv.ID)
	fmt.Printf("  Status: %s\n", inv.Status)
	fmt.Printf("  Total: %s\n", money.Format(inv.Total))
	if inv.AmountPaid > 0 {
		fmt.Printf("  Balance Due: %s\n", money.Format(inv.BalanceDue()))
	}
	fmt.Printf("  Due: %s\n", inv.DueDate.Format("2006-01-02"))
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var filter service.InvoiceFilter
		if cmd.Flags().Changed("client") {
			ref, _ := cmd.Flags().GetString("client")
			id, err := resolveClientID(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			filter.ClientID = &id
		}
		if cmd.Flags().Changed("status") {
			statusStr, _ := cmd.Flags().GetString("status")
			status, err := domain.ParseInvoiceStatus(statusStr)
			if err != nil {
				return err
			}
			filter.Status = &status
		}

		invoices, err := appInstance.Invoices.List(ctx, appInstance.Owner(), filter)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}

		if len(invoices) == 0 {
			fmt.Println("No invoices found")
			return nil
		}

		fmt.Printf("%-5s %-14s %-20s %-11s %-13s %-13s %-10s\n", "ID", "Number", "Client", "Due", "Total", "Balance", "Status")
		fmt.Println("--------------------------------------------------------------------------------------------")

		var outstanding int64
		for _, inv := range invoices {
			fmt.Printf("%-5d %-14s %-20s %-11s %-13s %-13s %-10s\n",
				inv.ID,
				inv.InvoiceNumber,
				truncate(clientName(ctx, inv.ClientID), 20),
				inv.DueDate.Format("2006-01-02"),
				money.Format(inv.Total),
				money.Format(inv.BalanceDue()),
				inv.Status,
			)
			if inv.Status.AwaitingPayment() {
				outstanding += inv.BalanceDue()
			}
		}

		fmt.Printf("\nTotal: %d invoice(s), %s outstanding\n", len(invoices), money.Format(outstanding))
		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show [id_or_number]",
	Short: "Show an invoice with its lines, payments and reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		inv, err := appInstance.Invoices.Get(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		fmt.Printf("Invoice %s (ID: %d)\n", inv.InvoiceNumber, inv.ID)
		fmt.Printf("  Client: %s\n", clientName(ctx, inv.ClientID))
		fmt.Printf("  Status: %s\n", inv.Status)
		fmt.Printf("  Issued: %s   Due: %s\n", inv.IssueDate.Format("2006-01-02"), inv.DueDate.Format("2006-01-02"))
		if days := inv.DaysOverdue(time.Now()); days > 0 && inv.Status == domain.InvoiceStatusOverdue {
			fmt.Printf("  Overdue by %d day(s)\n", days)
		}
		fmt.Println()

		fmt.Printf("  %-40s %10s %12s %12s\n", "Description", "Qty", "Unit", "Total")
		for _, it := range inv.Items {
			fmt.Printf("  %-40s %10s %12s %12s\n",
				truncate(it.Description, 40), it.Quantity.StringFixed(2), money.Format(it.UnitPrice), money.Format(it.Total))
		}
		fmt.Println()
		fmt.Printf("  %-64s %12s\n", "Subtotal", money.Format(inv.Subtotal))
		if !inv.TaxRate.IsZero() {
			fmt.Printf("  %-64s %12s\n", "Tax ("+inv.TaxRate.String()+"%)", money.Format(inv.TaxAmount))
		}
		if inv.DiscountAmount > 0 {
			fmt.Printf("  %-64s %12s\n", "Discount", "-"+money.Format(inv.DiscountAmount))
		}
		fmt.Printf("  %-64s %12s\n", "Total", money.Format(inv.Total))
		fmt.Printf("  %-64s %12s\n", "Paid", money.Format(inv.AmountPaid))
		fmt.Printf("  %-64s %12s\n", "Balance Due", money.Format(inv.BalanceDue()))

		if inv.Notes != "" {
			fmt.Printf("\n  Notes: %s\n", inv.Notes)
		}

		payments, err := appInstance.Payments.List(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}
		if len(payments) > 0 {
			fmt.Println("\nPayments:")
			printPayments(payments)
		}

		reminders, err := appInstance.Reminders.List(ctx, owner, id)
		if err != nil {
			return fmt.Errorf("failed to list reminders: %w", err)
		}
		if len(reminders) > 0 {
			fmt.Println("\nReminders:")
			printReminders(reminders)
		}
		return nil
	},
}

var invoicesCreateCmd = &cobra.Command{
	Use:     "create [client_id_or_name]",
	Short:   "Create a draft invoice from explicit line items",
	Example: `  billsink invoices create acme --item "Logo design|1|1500" --item "Revisions|2.5|90" --tax 8.25`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}
		rawItems, _ := cmd.Flags().GetStringArray("item")
		items, err := parseItems(rawItems)
		if err != nil {
			return err
		}
		terms, err := readTerms(cmd)
		if err != nil {
			return err
		}

		req := service.CreateInvoiceRequest{
			ClientID:  clientID,
			IssueDate: terms.issue,
			DueDate:   terms.due,
			Items:     items,
			TaxRate:   terms.taxRate,
			Discount:  terms.discount,
			Notes:     terms.notes,
		}
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			req.ProjectID = &id
		}

		inv, err := appInstance.Invoices.Create(ctx, appInstance.Owner(), req)
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		printInvoiceSummary("created", inv)
		return nil
	},
}

var invoicesFromTimeCmd = &cobra.Command{
	Use:   "from-time [client_id_or_name] [entry_ids...]",
	Short: "Create a draft invoice from tracked time",
	Long: `Create a draft invoice from time entries. Without entry IDs every unbilled,
billable entry of the client is used. Entries without a rate, still running,
or already billed are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}
		terms, err := readTerms(cmd)
		if err != nil {
			return err
		}

		req := service.TimeInvoiceRequest{
			ClientID:  clientID,
			IssueDate: terms.issue,
			DueDate:   terms.due,
			TaxRate:   terms.taxRate,
			Discount:  terms.discount,
			Notes:     terms.notes,
		}
		req.GroupByProject, _ = cmd.Flags().GetBool("group")
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			req.ProjectID = &id
		}

		if req.EntryIDs, err = parseIDs(args[1:], "entry"); err != nil {
			return err
		}
		if len(req.EntryIDs) == 0 {
			entries, err := unbilledEntries(ctx, owner, clientID, req.ProjectID)
			if err != nil {
				return err
			}
			req.EntryIDs = entries
		}

		inv, err := appInstance.Converter.FromTimeEntries(ctx, owner, req)
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		printInvoiceSummary("created", inv)
		fmt.Printf("  Lines: %d\n", len(inv.Items))
		return nil
	},
}

var invoicesFromMilestonesCmd = &cobra.Command{
	Use:   "from-milestones [project_id] [milestone_ids...]",
	Short: "Create a draft invoice from completed milestones",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		projectID, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		ids, err := parseIDs(args[1:], "milestone")
		if err != nil {
			return err
		}
		terms, err := readTerms(cmd)
		if err != nil {
			return err
		}

		inv, err := appInstance.Converter.FromMilestones(ctx, appInstance.Owner(), service.MilestoneInvoiceRequest{
			ProjectID:    projectID,
			MilestoneIDs: ids,
			IssueDate:    terms.issue,
			DueDate:      terms.due,
			TaxRate:      terms.taxRate,
			Discount:     terms.discount,
			Notes:        terms.notes,
		})
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		printInvoiceSummary("created", inv)
		return nil
	},
}

var invoicesEditCmd = &cobra.Command{
	Use:   "edit [id_or_number]",
	Short: "Edit a draft invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}

		var req service.UpdateDraftRequest
		if cmd.Flags().Changed("item") {
			rawItems, _ := cmd.Flags().GetStringArray("item")
			items, err := parseItems(rawItems)
			if err != nil {
				return err
			}
			req.Items = &items
		}
		terms, err := readTerms(cmd)
		if err != nil {
			return err
		}
		req.TaxRate = terms.taxRate
		req.DueDate = terms.due
		if cmd.Flags().Changed("discount") {
			req.Discount = &terms.discount
		}
		if cmd.Flags().Changed("notes") {
			req.Notes = &terms.notes
		}

		inv, err := appInstance.Invoices.UpdateDraft(ctx, appInstance.Owner(), id, req)
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		printInvoiceSummary("updated", inv)
		return nil
	},
}

var invoicesDueDateCmd = &cobra.Command{
	Use:   "due-date [id_or_number] [date]",
	Short: "Move the due date of an open invoice and reschedule its reminders",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		due, err := parseDate(args[1])
		if err != nil {
			return fmt.Errorf("invalid due date: %w", err)
		}

		inv, err := appInstance.Invoices.ChangeDueDate(ctx, appInstance.Owner(), id, due)
		if err != nil {
			return fmt.Errorf("failed to change due date: %w", err)
		}
		printInvoiceSummary("updated", inv)
		return nil
	},
}

var invoicesSendCmd = &cobra.Command{
	Use:   "send [id_or_number]",
	Short: "Send a draft invoice to the client and schedule reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		inv, err := appInstance.Invoices.Send(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to send invoice: %w", err)
		}
		printInvoiceSummary("sent", inv)
		return nil
	},
}

var invoicesStatusCmd = &cobra.Command{
	Use:   "status [id_or_number] [status]",
	Short: "Move an invoice to another status",
	Long: `Move an invoice to another status. Allowed moves:
  draft -> sent, cancelled
  sent -> viewed, paid, overdue, cancelled
  viewed -> paid, overdue, cancelled
  overdue -> paid, cancelled
  cancelled -> draft (when reactivation is enabled)`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		to, err := domain.ParseInvoiceStatus(args[1])
		if err != nil {
			return err
		}

		inv, err := appInstance.Invoices.Transition(ctx, appInstance.Owner(), id, to)
		if err != nil {
			return fmt.Errorf("failed to change status: %w", err)
		}
		printInvoiceSummary("updated", inv)
		return nil
	},
}

var invoicesDeleteCmd = &cobra.Command{
	Use:   "delete [id_or_number]",
	Short: "Delete an invoice and release its time entries and milestones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("yes")
		if !force && !confirmPrompt(fmt.Sprintf("Delete invoice %s?", args[0])) {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := appInstance.Invoices.Delete(ctx, appInstance.Owner(), id); err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}
		fmt.Printf("✓ Invoice deleted (ID: %d)\n", id)
		return nil
	},
}

func unbilledEntries(ctx context.Context, owner, clientID int64, projectID *int64) ([]int64, error) {
	entries, err := appInstance.Entries.List(ctx, repositoryFilter(owner, clientID, projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func init() {
	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesCreateCmd)
	invoicesCmd.AddCommand(invoicesFromTimeCmd)
	invoicesCmd.AddCommand(invoicesFromMilestonesCmd)
	invoicesCmd.AddCommand(invoicesEditCmd)
	invoicesCmd.AddCommand(invoicesDueDateCmd)
	invoicesCmd.AddCommand(invoicesSendCmd)
	invoicesCmd.AddCommand(invoicesStatusCmd)
	invoicesCmd.AddCommand(invoicesDeleteCmd)

	invoicesListCmd.Flags().String("client", "", "Filter by client ID or name")
	invoicesListCmd.Flags().String("status", "", "Filter by status (draft, sent, viewed, overdue, paid, cancelled)")

	invoicesCreateCmd.Flags().StringArray("item", nil, `Line item as "description|quantity|unit price" (repeatable)`)
	invoicesCreateCmd.Flags().Int64("project", 0, "Project ID")
	addTermsFlags(invoicesCreateCmd)

	invoicesFromTimeCmd.Flags().Int64("project", 0, "Only bill entries of this project")
	invoicesFromTimeCmd.Flags().Bool("group", false, "One line per project instead of one per entry")
	addTermsFlags(invoicesFromTimeCmd)

	addTermsFlags(invoicesFromMilestonesCmd)

	invoicesEditCmd.Flags().StringArray("item", nil, `Replace all lines; "description|quantity|unit price" (repeatable)`)
	addTermsFlags(invoicesEditCmd)

	invoicesDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}
