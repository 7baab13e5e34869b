package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"podcast-digest-go/internal/batch"
	"podcast-digest-go/internal/checkpoint"
	"podcast-digest-go/internal/processor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		scratchDir string
		outputDir  string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <feed-url>",
		Short: "Digest the newest episode of one feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if scratchDir == "" {
				scratchDir = cfg.Paths.ScratchDir
			}
			if outputDir == "" {
				outputDir = cfg.Paths.OutputDir
			}
			orch, closeFn, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn(context.Background())

			res, runErr := processor.Process(cmd.Context(), orch, args[0], scratchDir, timeout, ctx.log)
			return report(cmd, res, runErr, outputDir)
		},
	}
	cmd.Flags().StringVar(&scratchDir, "scratch", "", "Directory for downloaded audio (default from config)")
	cmd.Flags().StringVar(&outputDir, "out", "", "Directory digests are written to (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Bound on the whole run, e.g. 45m (0 = none)")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "resume <transcript.json>",
		Short: "Finish a run from a saved transcript, skipping download and transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = cfg.Paths.OutputDir
			}
			transcript, err := checkpoint.ReadFile(args[0])
			if err != nil {
				return err
			}
			orch, closeFn, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn(context.Background())

			res, runErr := processor.Resume(cmd.Context(), orch, transcript, 0, ctx.log)
			return report(cmd, res, runErr, outputDir)
		},
	}
	cmd.Flags().StringVar(&outputDir, "out", "", "Directory digests are written to (default from config)")
	return cmd
}

// report prints the result and writes the digest file on success.
func report(cmd *cobra.Command, res processor.Result, runErr error, outputDir string) error {
	if runErr == nil && res.Digest != nil {
		path, err := batch.WriteDigest(outputDir, res.FeedURL, *res.Digest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "digest written to %s\n", path)
	}
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("%s failed: %s", res.FailedStage, res.ErrorKind)
	}
	return nil
}
