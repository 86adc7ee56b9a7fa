package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
	"github.com/andy/billsink/internal/service"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Manage time entries",
	Long:  `List, add, edit, and delete time entries.`,
}

// entryValue prices a finished entry at its resolved rate, nil when unpriced
func entryValue(ctx context.Context, entry *domain.TimeEntry) *int64 {
	client, _ := appInstance.Store.Clients().GetByID(ctx, entry.ClientID)
	var project *domain.Project
	if entry.ProjectID != nil {
		project, _ = appInstance.Store.Projects().GetByID(ctx, *entry.ProjectID)
	}
	rate := domain.ResolveRate(entry, project, client)
	if rate == nil {
		return nil
	}
	value := money.LineTotal(money.HoursFromMinutes(entry.DurationMinutes), *rate)
	return &value
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List time entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		filter := repository.EntryFilter{UserID: appInstance.Owner()}

		if cmd.Flags().Changed("client") {
			ref, _ := cmd.Flags().GetString("client")
			id, err := resolveClientID(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			filter.ClientID = &id
		}
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			filter.ProjectID = &id
		}

		var err error
		startStr, _ := cmd.Flags().GetString("start")
		if filter.Start, err = optionalDate(startStr); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		endStr, _ := cmd.Flags().GetString("end")
		if filter.End, err = optionalDate(endStr); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if filter.End != nil {
			end := filter.End.AddDate(0, 0, 1)
			filter.End = &end
		}
		includeBilled, _ := cmd.Flags().GetBool("include-billed")
		filter.UnbilledOnly = !includeBilled

		entries, err := appInstance.Entries.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries found")
			return nil
		}

		fmt.Printf("%-5s %-15s %-17s %-10s %-12s %-10s %s\n", "ID", "Client", "Date", "Duration", "Amount", "Status", "Description")
		fmt.Println("--------------------------------------------------------------------------------------------")

		var totalMinutes, totalValue int64
		for _, entry := range entries {
			status := "Unbilled"
			switch {
			case entry.IsRunning():
				status = "Running"
			case entry.IsBilled:
				status = "Billed"
			case !entry.IsBillable:
				status = "Internal"
			}

			amount := "-"
			if v := entryValue(ctx, entry); v != nil && entry.IsBillable && !entry.IsRunning() {
				amount = money.Format(*v)
				totalValue += *v
			}

			fmt.Printf("%-5d %-15s %-17s %-10s %-12s %-10s %s\n",
				entry.ID,
				truncate(clientName(ctx, entry.ClientID), 15),
				entry.StartTime.Local().Format("2006-01-02 15:04"),
				formatDuration(entry.Duration()),
				amount,
				status,
				truncate(entry.Description, 30),
			)
			totalMinutes += entry.DurationMinutes
		}

		fmt.Println("--------------------------------------------------------------------------------------------")
		fmt.Printf("Total: %d entries, %s, %s\n", len(entries), formatDuration(time.Duration(totalMinutes)*time.Minute), money.Format(totalValue))
		return nil
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add [client_id_or_name] [start_time] [end_time] [description]",
	Short: "Add a time entry manually",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clientID, err := resolveClientID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		startTime, err := parseDateTime(args[1])
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		endTime, err := parseDateTime(args[2])
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}

		req := service.ManualEntryRequest{
			ClientID: clientID,
			Start:    startTime,
			Duration: endTime.Sub(startTime),
		}
		if len(args) > 3 {
			req.Description = args[3]
		}
		if cmd.Flags().Changed("project") {
			id, _ := cmd.Flags().GetInt64("project")
			req.ProjectID = &id
		}
		rateStr, _ := cmd.Flags().GetString("rate")
		if req.HourlyRate, err = optionalRate(rateStr); err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}
		req.NonBillable, _ = cmd.Flags().GetBool("non-billable")

		entry, err := appInstance.Entries.Add(ctx, appInstance.Owner(), req)
		if err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}

		fmt.Printf("✓ Time entry created (ID: %d)\n", entry.ID)
		fmt.Printf("  Client: %s\n", clientName(ctx, clientID))
		fmt.Printf("  Duration: %s\n", formatDuration(entry.Duration()))
		if v := entryValue(ctx, entry); v != nil {
			fmt.Printf("  Amount: %s\n", money.Format(*v))
		}
		return nil
	},
}

var entriesEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit an unbilled time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "entry")
		if err != nil {
			return err
		}

		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			return fmt.Errorf("--reason flag is required for editing entries")
		}

		var edit service.EntryEdit
		if cmd.Flags().Changed("description") {
			description, _ := cmd.Flags().GetString("description")
			edit.Description = &description
		}
		if cmd.Flags().Changed("start") {
			startStr, _ := cmd.Flags().GetString("start")
			start, err := parseDateTime(startStr)
			if err != nil {
				return fmt.Errorf("invalid start time: %w", err)
			}
			edit.Start = &start
		}
		if cmd.Flags().Changed("duration") {
			d, _ := cmd.Flags().GetDuration("duration")
			edit.Duration = &d
		}
		if cmd.Flags().Changed("rate") {
			rateStr, _ := cmd.Flags().GetString("rate")
			rate, err := optionalRate(rateStr)
			if err != nil {
				return fmt.Errorf("invalid rate: %w", err)
			}
			edit.HourlyRate = rate
		}
		if cmd.Flags().Changed("billable") {
			billable, _ := cmd.Flags().GetBool("billable")
			edit.Billable = &billable
		}

		entry, err := appInstance.Entries.Edit(ctx, appInstance.Owner(), id, edit, reason)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}

		fmt.Printf("✓ Entry updated (ID: %d)\n", entry.ID)
		return nil
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a time entry (soft delete)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "entry")
		if err != nil {
			return err
		}

		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			return fmt.Errorf("--reason flag is required for deleting entries")
		}

		if err := appInstance.Entries.Delete(ctx, appInstance.Owner(), id, reason); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}

		fmt.Printf("✓ Entry deleted (ID: %d)\n", id)
		return nil
	},
}

var entriesHistoryCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show edit history for an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := parseID(args[0], "entry")
		if err != nil {
			return err
		}

		history, err := appInstance.Entries.History(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}

		if len(history) == 0 {
			fmt.Println("No edit history for this entry")
			return nil
		}

		fmt.Printf("Edit History for Entry #%d:\n\n", id)
		for _, h := range history {
			fmt.Printf("%s - %s: %q -> %q\n", h.ChangedAt.Local().Format("2006-01-02 15:04:05"), h.FieldName, h.OldValue, h.NewValue)
			if h.ChangeReason != "" {
				fmt.Printf("  Reason: %s\n", h.ChangeReason)
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesAddCmd)
	entriesCmd.AddCommand(entriesEditCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
	entriesCmd.AddCommand(entriesHistoryCmd)

	entriesListCmd.Flags().String("client", "", "Filter by client ID or name")
	entriesListCmd.Flags().Int64("project", 0, "Filter by project ID")
	entriesListCmd.Flags().String("start", "", "Filter by start date (YYYY-MM-DD or 'today')")
	entriesListCmd.Flags().String("end", "", "Filter by end date, inclusive (YYYY-MM-DD or 'today')")
	entriesListCmd.Flags().Bool("include-billed", false, "Include billed entries")

	entriesAddCmd.Flags().Int64("project", 0, "Project ID")
	entriesAddCmd.Flags().String("rate", "", "Override hourly rate")
	entriesAddCmd.Flags().Bool("non-billable", false, "Record internal, non-billable time")

	entriesEditCmd.Flags().String("description", "", "New description")
	entriesEditCmd.Flags().String("start", "", "New start time")
	entriesEditCmd.Flags().Duration("duration", 0, "New duration, e.g. 1h30m")
	entriesEditCmd.Flags().String("rate", "", "New hourly rate override")
	entriesEditCmd.Flags().Bool("billable", true, "Whether the entry is billable")
	entriesEditCmd.Flags().String("reason", "", "Reason for edit (required)")

	entriesDeleteCmd.Flags().String("reason", "", "Reason for deletion (required)")
}
