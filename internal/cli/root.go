package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/app"
)

var appInstance *app.App

// skipApp marks commands that run without opening the database
const skipApp = "skip-app"

var rootCmd = &cobra.Command{
	Use:   "billsink",
	Short: "Invoicing and payment tracking for freelancers",
	Long: `Billsink turns tracked time and milestones into invoices, records payments,
and chases late clients with scheduled reminders.

By default, running billsink without arguments launches the interactive TUI.
Use subcommands for CLI operations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance != nil || cmd.Annotations[skipApp] == "true" {
			return nil
		}
		switch cmd.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return nil
		}
		if p := cmd.Parent(); p != nil && p.Name() == "completion" {
			return nil
		}
		a, err := app.New(context.Background())
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		appInstance = a
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return launchTUI(cmd, args)
	},
}

// Execute runs the root command and closes the app afterwards
func Execute() error {
	defer func() {
		if appInstance != nil {
			appInstance.Close()
		}
	}()
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(milestonesCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(paymentsCmd)
	rootCmd.AddCommand(remindersCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(tuiCmd)
}
