package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assocworks/sepa-billing/internal/services/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [bank-transaction-id]",
	Short: "Reconcile bank transactions against direct-debit batches",
	Long: `Reconcile matches inbound bank credits against collectable direct-debit
batches and posts the covered invoice payments.

With a transaction id it reconciles that one transaction; without
arguments it sweeps all unreconciled transactions oldest first.`,
	Example: `  # Reconcile one transaction
  reconciler reconcile BT-2026-000128

  # Sweep pending transactions, applying unique non-exact matches too
  reconciler reconcile --mode aggressive --limit 200`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().String("mode", "conservative", "Auto-apply policy: conservative or aggressive")
	reconcileCmd.Flags().Int("limit", 100, "Maximum transactions per sweep")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	modeStr, _ := cmd.Flags().GetString("mode")
	limit, _ := cmd.Flags().GetInt("limit")

	mode := reconcile.Mode(modeStr)
	if mode != reconcile.ModeConservative && mode != reconcile.ModeAggressive {
		return fmt.Errorf("mode must be conservative or aggressive, got %q", modeStr)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		outcome, err := a.coord.Execute(ctx, args[0], mode)
		if err != nil {
			return err
		}
		return printJSON(cmd, outcome)
	}

	outcomes, err := a.coord.ProcessPending(ctx, mode, limit)
	if err != nil {
		return err
	}
	return printJSON(cmd, outcomes)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
