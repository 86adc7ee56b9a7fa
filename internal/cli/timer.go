package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/money"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Manage the running timer",
	Long:  `Start, stop, discard, or check the status of the running timer.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start [client_id_or_name] [description]",
	Short: "Start a new timer",
	Long:  `Start a new timer for a client with an optional description.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		description := ""
		if len(args) > 1 {
			description = args[1]
		}

		var projectID *int64
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			projectID = &id
		}

		if _, err := appInstance.Timer.Start(ctx, appInstance.Owner(), clientID, projectID, description); err != nil {
			return fmt.Errorf("failed to start timer: %w", err)
		}

		fmt.Printf("✓ Timer started for %s\n", clientName(ctx, clientID))
		if description != "" {
			fmt.Printf("  Description: %s\n", description)
		}
		return nil
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer and save the time entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		entry, err := appInstance.Timer.Stop(ctx, appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to stop timer: %w", err)
		}

		fmt.Printf("✓ Timer stopped\n")
		fmt.Printf("  Client: %s\n", clientName(ctx, entry.ClientID))
		fmt.Printf("  Duration: %s\n", formatDuration(entry.Duration()))
		if v := entryValue(ctx, entry); v != nil {
			fmt.Printf("  Amount: %s\n", money.Format(*v))
		}
		return nil
	},
}

var timerDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard the running timer without saving",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := appInstance.Timer.Discard(ctx, appInstance.Owner()); err != nil {
			return fmt.Errorf("failed to discard timer: %w", err)
		}

		fmt.Println("✓ Timer discarded")
		return nil
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		entry, err := appInstance.Timer.Running(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to get timer state: %w", err)
		}
		if entry == nil {
			fmt.Println("No active timer")
			return nil
		}

		value, err := appInstance.Timer.AccruedValue(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to price timer: %w", err)
		}

		fmt.Printf("Timer Status: running\n")
		fmt.Printf("  Client: %s\n", clientName(ctx, entry.ClientID))
		if entry.Description != "" {
			fmt.Printf("  Description: %s\n", entry.Description)
		}
		fmt.Printf("  Started: %s\n", entry.StartTime.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("  Elapsed: %s\n", formatDuration(entry.Duration()))
		fmt.Printf("  Current Value: %s\n", money.Format(value))
		return nil
	},
}

func init() {
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerStopCmd)
	timerCmd.AddCommand(timerDiscardCmd)
	timerCmd.AddCommand(timerStatusCmd)

	timerStartCmd.Flags().Int64("project", 0, "Project ID")
}
