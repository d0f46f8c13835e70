package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/internal/services/period"
)

var periodsCmd = &cobra.Command{
	Use:   "periods <member-id>",
	Short: "Generate the billing-period schedule for a member",
	Long: `Periods prints the contiguous billing periods covering twelve months
from the membership start date. Monthly yields 12 periods, quarterly 4,
yearly 1. Generation is deterministic and touches no data.`,
	Example: `  reconciler periods MEM-0042 --start 2026-01-15 --frequency quarterly`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPeriods,
}

func init() {
	rootCmd.AddCommand(periodsCmd)

	periodsCmd.Flags().String("start", "", "Membership start date (YYYY-MM-DD, required)")
	periodsCmd.Flags().String("frequency", "monthly", "Billing frequency: monthly, quarterly or yearly")
	_ = periodsCmd.MarkFlagRequired("start")
}

func runPeriods(cmd *cobra.Command, args []string) error {
	startStr, _ := cmd.Flags().GetString("start")
	freqStr, _ := cmd.Flags().GetString("frequency")

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err)
	}

	generator := period.NewGenerator()
	periods, err := generator.Generate(args[0], start, models.BillingFrequency(freqStr))
	if err != nil {
		return err
	}

	for i, p := range periods {
		fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s .. %s\n", i+1,
			p.PeriodStart.Format("2006-01-02"), p.PeriodEnd.Format("2006-01-02"))
	}
	return nil
}
