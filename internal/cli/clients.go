package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage clients",
	Long:  `List, add, edit, and archive clients.`,
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		includeArchived, _ := cmd.Flags().GetBool("archived")

		clients, err := appInstance.Store.Clients().List(ctx, appInstance.Owner(), includeArchived)
		if err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}

		if len(clients) == 0 {
			fmt.Println("No clients found")
			return nil
		}

		fmt.Printf("%-5s %-30s %-28s %-14s %-10s\n", "ID", "Name", "Email", "Hourly Rate", "Status")
		fmt.Println("-----------------------------------------------------------------------------------------")

		for _, client := range clients {
			status := "Active"
			if client.IsArchived {
				status = "Archived"
			}
			fmt.Printf("%-5d %-30s %-28s %-14s %-10s\n",
				client.ID,
				truncate(client.Name, 30),
				truncate(client.Email, 28),
				formatRate(client.HourlyRate),
				status,
			)
		}

		fmt.Printf("\nTotal: %d client(s)\n", len(clients))
		return nil
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a new client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rateStr, _ := cmd.Flags().GetString("rate")
		rate, err := optionalRate(rateStr)
		if err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}
		email, _ := cmd.Flags().GetString("email")
		notes, _ := cmd.Flags().GetString("notes")

		client := domain.NewClient(appInstance.Owner(), args[0], rate)
		client.Email = email
		client.Notes = notes

		if err := client.Validate(); err != nil {
			return fmt.Errorf("invalid client: %w", err)
		}

		if err := appInstance.Store.Clients().Create(ctx, client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		fmt.Printf("✓ Client created: %s (ID: %d)\n", client.Name, client.ID)
		fmt.Printf("  Hourly Rate: %s\n", formatRate(client.HourlyRate))
		return nil
	},
}

var clientsEditCmd = &cobra.Command{
	Use:   "edit [id_or_name]",
	Short: "Edit an existing client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}
		client, err := appInstance.Store.Clients().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get client: %w", err)
		}

		if cmd.Flags().Changed("name") {
			client.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("rate") {
			rateStr, _ := cmd.Flags().GetString("rate")
			if client.HourlyRate, err = optionalRate(rateStr); err != nil {
				return fmt.Errorf("invalid rate: %w", err)
			}
		}
		if cmd.Flags().Changed("email") {
			client.Email, _ = cmd.Flags().GetString("email")
		}
		if cmd.Flags().Changed("notes") {
			client.Notes, _ = cmd.Flags().GetString("notes")
		}

		if err := client.Validate(); err != nil {
			return fmt.Errorf("invalid client: %w", err)
		}

		if err := appInstance.Store.Clients().Update(ctx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}

		fmt.Printf("✓ Client updated: %s\n", client.Name)
		return nil
	},
}

var clientsArchiveCmd = &cobra.Command{
	Use:   "archive [id_or_name]",
	Short: "Archive a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		if err := appInstance.Store.Clients().Archive(ctx, id); err != nil {
			return fmt.Errorf("failed to archive client: %w", err)
		}

		fmt.Printf("✓ Client archived: %s\n", clientName(ctx, id))
		return nil
	},
}

var clientsUnarchiveCmd = &cobra.Command{
	Use:   "unarchive [id]",
	Short: "Unarchive a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		if err := appInstance.Store.Clients().Unarchive(ctx, id); err != nil {
			return fmt.Errorf("failed to unarchive client: %w", err)
		}

		fmt.Printf("✓ Client unarchived (ID: %d)\n", id)
		return nil
	},
}

func init() {
	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsAddCmd)
	clientsCmd.AddCommand(clientsEditCmd)
	clientsCmd.AddCommand(clientsArchiveCmd)
	clientsCmd.AddCommand(clientsUnarchiveCmd)

	clientsListCmd.Flags().Bool("archived", false, "Include archived clients")

	clientsAddCmd.Flags().String("rate", "", "Default hourly rate, e.g. 125 or 97.50")
	clientsAddCmd.Flags().String("email", "", "Billing email, where invoices and reminders are sent")
	clientsAddCmd.Flags().String("notes", "", "Notes about the client")

	clientsEditCmd.Flags().String("name", "", "New name")
	clientsEditCmd.Flags().String("rate", "", "New hourly rate (empty clears it)")
	clientsEditCmd.Flags().String("email", "", "New email")
	clientsEditCmd.Flags().String("notes", "", "New notes")
}
