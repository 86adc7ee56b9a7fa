package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/service"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show receivables and revenue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		r, err := appInstance.Reports.Receivables(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}

		fmt.Println("Receivables")
		fmt.Printf("  Outstanding:  %12s  (%d open)\n", money.Format(r.Outstanding), r.OpenInvoices)
		fmt.Printf("  Overdue:      %12s  (%d overdue)\n", money.Format(r.Overdue), r.OverdueInvoices)
		fmt.Printf("  Drafts:       %12s\n", money.Format(r.Drafts))
		fmt.Println()
		fmt.Println("Aging")
		for _, bucket := range service.AgingBuckets {
			fmt.Printf("  %-12s  %12s\n", bucket, money.Format(r.Aging[bucket]))
		}
		fmt.Println()
		fmt.Println("Unbilled work")
		fmt.Printf("  Value:        %12s  (%s)\n", money.Format(r.UnbilledValue), formatDuration(time.Duration(r.UnbilledMinutes)*time.Minute))
		if r.UnpricedMinutes > 0 {
			fmt.Printf("  Unpriced:     %s without a rate\n", formatDuration(time.Duration(r.UnpricedMinutes)*time.Minute))
		}

		year, _ := cmd.Flags().GetInt("year")
		revenue, err := appInstance.Reports.RevenueByMonth(ctx, owner, year)
		if err != nil {
			return fmt.Errorf("failed to build revenue report: %w", err)
		}
		fmt.Println()
		fmt.Printf("Revenue %d\n", year)
		var total int64
		for m := time.January; m <= time.December; m++ {
			if revenue[m] == 0 {
				continue
			}
			fmt.Printf("  %-12s  %12s\n", m, money.Format(revenue[m]))
			total += revenue[m]
		}
		fmt.Printf("  %-12s  %12s\n", "Total", money.Format(total))
		return nil
	},
}

func init() {
	reportCmd.Flags().Int("year", time.Now().Year(), "Revenue year")
}
