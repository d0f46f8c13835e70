package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "SEPA direct-debit reconciliation and membership invoicing guard",
	Long: `Reconciler matches inbound bank credits against submitted direct-debit
batches, posts the resulting payments, processes bank return files, and
guards membership invoicing against duplicate billing periods.

Configuration comes from environment variables; a .env file in the
working directory is loaded when present.`,
	Version: version,
}

func main() {
	// Missing .env is fine, the environment may carry everything
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
