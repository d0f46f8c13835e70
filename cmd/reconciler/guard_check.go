package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var guardCheckCmd = &cobra.Command{
	Use:   "guard-check",
	Short: "Check a candidate billing period or a batch for conflicts",
	Long: `Guard-check runs the invoicing guard without creating anything.

With --member and --from/--to it checks whether the candidate period
overlaps an existing membership invoice of that member. With --batch it
re-validates every membership line of an assembled batch.`,
	Example: `  # Candidate period for one member
  reconciler guard-check --member MEM-0042 --from 2026-01-01 --to 2026-01-31

  # Assembled batch
  reconciler guard-check --batch DDB-2026-031`,
	RunE: runGuardCheck,
}

func init() {
	rootCmd.AddCommand(guardCheckCmd)

	guardCheckCmd.Flags().String("member", "", "Member id for a candidate-period check")
	guardCheckCmd.Flags().String("from", "", "Candidate period start (YYYY-MM-DD)")
	guardCheckCmd.Flags().String("to", "", "Candidate period end (YYYY-MM-DD)")
	guardCheckCmd.Flags().String("batch", "", "Batch id for an assembly check")
}

func runGuardCheck(cmd *cobra.Command, args []string) error {
	memberID, _ := cmd.Flags().GetString("member")
	batchID, _ := cmd.Flags().GetString("batch")

	if (memberID == "") == (batchID == "") {
		return fmt.Errorf("provide either --member with --from/--to, or --batch")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if batchID != "" {
		report, err := a.guard.ValidateBatchAssembly(ctx, nil, batchID)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	}

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return fmt.Errorf("invalid --from date, use YYYY-MM-DD: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return fmt.Errorf("invalid --to date, use YYYY-MM-DD: %w", err)
	}

	result, err := a.guard.ValidateBeforeCreate(ctx, nil, memberID, from, to)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
