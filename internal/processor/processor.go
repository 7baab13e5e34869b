package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

// Orchestrator is the part of pipeline.Orchestrator a processor drives.
type Orchestrator interface {
	Run(ctx context.Context, feedURL, scratchDir string) (types.EpisodeDigest, error)
	RunFromTranscript(ctx context.Context, transcript types.TranscriptResult) (types.EpisodeDigest, error)
}

// Result is returned by /process and written by the CLI. Exactly one of
// Digest and Error is set. Transcript is only included when a stage after
// transcription failed, so the caller can keep it.
type Result struct {
	RunID       string                  `json:"run_id"`
	FeedURL     string                  `json:"feed_url"`
	Digest      *types.EpisodeDigest    `json:"digest,omitempty"`
	DurationMs  int64                   `json:"duration_ms"`
	FailedStage string                  `json:"failed_stage,omitempty"`
	ErrorKind   string                  `json:"error_kind,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Hints       []string                `json:"hints,omitempty"`
	Transcript  *types.TranscriptResult `json:"transcript,omitempty"`
}

// Process runs one feed. timeout bounds the whole run; zero means none. A nil
// log falls back to logger.New().
func Process(ctx context.Context, orch Orchestrator, feedURL, scratchDir string, timeout time.Duration, log *logger.Logger) (Result, error) {
	ctx, res, cancel := begin(ctx, feedURL, timeout)
	defer cancel()
	start := time.Now()

	digest, err := orch.Run(ctx, feedURL, scratchDir)
	return finish(log, res, digest, err, start)
}

// Resume runs extraction onwards from a saved transcript.
func Resume(ctx context.Context, orch Orchestrator, transcript types.TranscriptResult, timeout time.Duration, log *logger.Logger) (Result, error) {
	ctx, res, cancel := begin(ctx, transcript.Episode.FeedURL, timeout)
	defer cancel()
	start := time.Now()

	digest, err := orch.RunFromTranscript(ctx, transcript)
	return finish(log, res, digest, err, start)
}

func begin(ctx context.Context, feedURL string, timeout time.Duration) (context.Context, Result, context.CancelFunc) {
	runID := pipeline.RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = pipeline.WithRunID(ctx, runID)
	}
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	return ctx, Result{RunID: runID, FeedURL: feedURL}, cancel
}

func finish(base *logger.Logger, res Result, digest types.EpisodeDigest, err error, start time.Time) (Result, error) {
	res.DurationMs = time.Since(start).Milliseconds()
	if base == nil {
		base = logger.New()
	}
	log := base.WithRun(res.RunID, res.FeedURL)
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = stageerr.KindName(err)
		res.FailedStage = stageerr.StageOf(err)
		res.Hints = stageerr.Hints(err)
		if re, ok := pipeline.AsRunError(err); ok {
			res.FailedStage = re.Stage
			res.Transcript = re.Partial.Transcript
		}
		log.WithError(err).WithField("duration_ms", res.DurationMs).Warn("processing failed")
		return res, err
	}
	res.Digest = &digest
	log.WithField("duration_ms", res.DurationMs).Info("processing complete")
	return res, nil
}
