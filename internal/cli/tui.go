package cli

import (
	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive TUI",
	RunE:  launchTUI,
}

func launchTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(appInstance)
}
