package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "realtorvoice",
		Short:        "Realtor Voice backend: CRM bridge, reminders and MLS search",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API without the background reminder worker")
	return cmd
}

func sweepCmd() *cobra.Command {
	var purgeAfterDays int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Dispatch due reminders and drain the email queue once, then exit",
		Long: `Run one reminder sweep for schedulers that invoke the binary
instead of keeping the server's worker running.

Examples:
  realtorvoice sweep
  realtorvoice sweep --purge-after 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), purgeAfterDays)
		},
	}
	cmd.Flags().IntVar(&purgeAfterDays, "purge-after", 0, "also delete sent emails older than this many days (0 keeps them)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}
