package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"podcast-digest-go/internal/batch"
	"podcast-digest-go/internal/dataset"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		workers int
		retries int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "batch [feeds-file]",
		Short: "Digest every feed in a list (.xlsx or one URL per line)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Paths.FeedsPath
			if len(args) == 1 {
				path = args[0]
			}
			records, _, err := dataset.LoadAndSummarize(path)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no feeds in %s", path)
			}

			if !cmd.Flags().Changed("workers") {
				workers = cfg.Batch.Workers
			}
			if !cmd.Flags().Changed("retries") {
				retries = cfg.Batch.Retries
			}
			orch, closeFn, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn(context.Background())

			runner := &batch.Runner{
				Orch:       orch,
				Workers:    workers,
				Retries:    retries,
				ScratchDir: cfg.Paths.ScratchDir,
				OutputDir:  cfg.Paths.OutputDir,
				RunTimeout: timeout,
				Log:        ctx.log,
			}
			sum, runErr := runner.Run(cmd.Context(), records)
			if err := writeJSON(cmd.OutOrStdout(), sum); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Feeds processed concurrently")
	cmd.Flags().IntVar(&retries, "retries", 2, "Whole-run retries for retryable failures")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Bound on each run attempt (0 = none)")
	return cmd
}
