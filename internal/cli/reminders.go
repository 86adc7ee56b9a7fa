package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Manage payment reminders",
	Long: `Reminders are scheduled when an invoice is sent and go out on the
configured cadence until the invoice is paid or cancelled.`,
}

var remindersListCmd = &cobra.Command{
	Use:   "list [invoice_id_or_number]",
	Short: "List the reminders of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		reminders, err := appInstance.Reminders.List(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to list reminders: %w", err)
		}
		if len(reminders) == 0 {
			fmt.Println("No reminders")
			return nil
		}
		printReminders(reminders)
		return nil
	},
}

var remindersScheduleCmd = &cobra.Command{
	Use:   "schedule [invoice_id_or_number]",
	Short: "Recompute the reminder schedule of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		n, err := appInstance.Reminders.Schedule(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to schedule reminders: %w", err)
		}
		fmt.Printf("✓ %d reminder(s) scheduled\n", n)
		return nil
	},
}

var remindersCancelCmd = &cobra.Command{
	Use:   "cancel [invoice_id_or_number]",
	Short: "Cancel every pending reminder of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		n, err := appInstance.Reminders.Cancel(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to cancel reminders: %w", err)
		}
		fmt.Printf("✓ %d reminder(s) cancelled\n", n)
		return nil
	},
}

var remindersSendCmd = &cobra.Command{
	Use:   "send [invoice_id_or_number]",
	Short: "Send a reminder right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveInvoiceID(ctx, args[0])
		if err != nil {
			return err
		}
		rem, err := appInstance.Reminders.SendManual(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to send reminder: %w", err)
		}
		fmt.Printf("✓ %s reminder sent\n", rem.ReminderType)
		return nil
	},
}

var remindersDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send every reminder that is due now",
	Long: `Run one dispatch pass over the reminder queue. Safe to run from cron
while 'billsink serve' is running; each reminder is delivered at most once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		result, err := appInstance.Dispatcher.Dispatch(ctx)
		if err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}
		fmt.Printf("✓ Dispatch complete: %d evaluated, %d sent, %d failed, %d skipped, %d cancelled\n",
			result.Evaluated, result.Sent, result.Failed, result.Skipped, result.Cancelled)
		return nil
	},
}

func printReminders(reminders []*domain.ReminderSchedule) {
	fmt.Printf("  %-5s %-16s %-7s %-17s %-10s %-17s %s\n", "ID", "Type", "Offset", "Scheduled", "Status", "Sent", "Error")
	for _, r := range reminders {
		kind := string(r.ReminderType)
		if r.Manual {
			kind += "*"
		}
		fmt.Printf("  %-5d %-16s %-7d %-17s %-10s %-17s %s\n",
			r.ID,
			kind,
			r.DaysOffset,
			r.ScheduledFor.Local().Format("2006-01-02 15:04"),
			r.Status,
			formatDate(r.SentAt),
			truncate(r.Error, 40),
		)
	}
}

func init() {
	remindersCmd.AddCommand(remindersListCmd)
	remindersCmd.AddCommand(remindersScheduleCmd)
	remindersCmd.AddCommand(remindersCancelCmd)
	remindersCmd.AddCommand(remindersSendCmd)
	remindersCmd.AddCommand(remindersDispatchCmd)
}
