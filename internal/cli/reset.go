package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/repository"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset data in the database",
	Long: `Reset data in the database.

Examples:
  billsink reset invoices   # Delete invoices, payments and reminders; unbill entries
  billsink reset all        # Wipe everything: clients, projects, entries, invoices`,
}

var billingTables = []string{
	"reminder_schedules",
	"payments",
	"invoice_items",
	"invoices",
	"invoice_sequences",
}

func sqlStore() (*repository.SQLStore, error) {
	store, ok := appInstance.Store.(*repository.SQLStore)
	if !ok {
		return nil, fmt.Errorf("reset needs the database store")
	}
	return store, nil
}

var resetInvoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Delete all invoices, payments and reminders and unbill time entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL invoices, payments and reminders. Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}
		store, err := sqlStore()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := store.ReleaseAllBilled(ctx); err != nil {
			return err
		}
		if err := store.Reset(ctx, billingTables); err != nil {
			return err
		}

		fmt.Println("All invoices have been deleted and time entries unbilled.")
		return nil
	},
}

var resetAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Delete ALL data: clients, entries, invoices, everything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL data (clients, entries, invoices, everything). Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}
		store, err := sqlStore()
		if err != nil {
			return err
		}

		if err := store.Reset(context.Background(), db.ResetTables()); err != nil {
			return err
		}

		fmt.Println("All data has been deleted.")
		return nil
	},
}

func init() {
	resetCmd.AddCommand(resetInvoicesCmd)
	resetCmd.AddCommand(resetAllCmd)
}
