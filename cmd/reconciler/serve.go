package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/assocworks/sepa-billing/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Run the ops HTTP server with health and Prometheus endpoints",
	Long: `Serve-metrics exposes /health, /ready and /metrics for scraping and
probes, and keeps running until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	healthChecker := observability.NewHealthChecker(a.pool)
	server := observability.StartMetricsServer(a.cfg.Metrics.Port, healthChecker)
	fmt.Fprintf(cmd.OutOrStdout(), "metrics server listening on :%d\n", a.cfg.Metrics.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return observability.ShutdownMetricsServer(server)
}
