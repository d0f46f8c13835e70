package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var returnFileCmd = &cobra.Command{
	Use:   "return-file <path>",
	Short: "Process a bank return file of failed collections",
	Long: `Return-file reverses the payments behind failed direct-debit
collections. Each row reopens the affected invoice by the returned
amount; a file that was processed before is refused by content hash.`,
	Example: `  reconciler return-file downloads/returns-2026-08-28.csv`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReturnFile,
}

func init() {
	rootCmd.AddCommand(returnFileCmd)
}

func runReturnFile(cmd *cobra.Command, args []string) error {
	fileBytes, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read return file: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.retrns.Process(ctx, fileBytes)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "file %s: %d reversed, %d skipped\n",
		report.FileHash[:12], report.Reversed, report.Skipped)
	return nil
}
