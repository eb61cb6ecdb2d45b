package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/intake/store"
)

// ── migrate ───────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	b, err := openBackends(ctx, cfg, logger, cfg.PatientBackend != "memory")
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	defer func() {
		_ = b.queue.Close()
		_ = b.close()
	}()

	if err := b.queue.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s queue: %w", cfg.QueueBackend, err)
	}
	logger.Info("queue store migrated", slog.String("backend", cfg.QueueBackend))

	// A separate patient store has its own schema.
	if ps, ok := b.patients.(store.Store); ok && ps != b.queue {
		if err := ps.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate patient store: %w", err)
		}
		logger.Info("patient store migrated", slog.String("backend", cfg.PatientBackend))
	}
	return nil
}
