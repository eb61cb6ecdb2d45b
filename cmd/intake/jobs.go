package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/intake/dlq"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/store"
)

// ── jobs ──────────────────────────────────────────────────────────────────────

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain the job queue",
	}

	var limit int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, func(ctx context.Context, s store.Store) error {
				jobs, err := dlq.NewService(s).List(ctx, job.ListOpts{Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(cmd, jobs)
			})
		},
	}
	dead.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge-dead",
		Short: "Delete dead jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var before time.Time
			if olderThan > 0 {
				before = time.Now().UTC().Add(-olderThan)
			}
			return withQueue(cmd, func(ctx context.Context, s store.Store) error {
				n, err := dlq.NewService(s).Purge(ctx, before)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{"purged": n})
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "only purge jobs dead for longer than this; 0 purges all")

	counts := &cobra.Command{
		Use:   "counts",
		Short: "Print the number of jobs per state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, func(ctx context.Context, s store.Store) error {
				out := make(map[string]int64, len(job.States))
				for _, state := range job.States {
					n, err := s.CountJobs(ctx, job.CountOpts{State: state})
					if err != nil {
						return err
					}
					out[string(state)] = n
				}
				return printJSON(cmd, out)
			})
		},
	}

	cmd.AddCommand(counts, dead, purge)
	return cmd
}

// withQueue opens the queue store, runs fn and closes the store.
func withQueue(cmd *cobra.Command, fn func(ctx context.Context, s store.Store) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	b, err := openBackends(ctx, cfg, logger, false)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	defer func() { _ = b.queue.Close() }()

	return fn(ctx, b.queue)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
