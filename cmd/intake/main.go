// Command intake runs the patient registration service.
//
// Subcommands:
//
//	serve    HTTP API plus an embedded worker pool
//	worker   worker pool only, for scaling email delivery separately
//	migrate  apply pending schema migrations and exit
//	jobs     inspect and maintain the job queue
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "intake",
		Short: "Patient registration with durable confirmation emails",
		// Errors are logged below with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		serveCmd(),
		workerCmd(),
		migrateCmd(),
		jobsCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
