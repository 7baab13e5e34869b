package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

type fakeOrchestrator struct {
	digest   types.EpisodeDigest
	err      error
	runID    string
	deadline bool
}

func (f *fakeOrchestrator) Run(ctx context.Context, _, _ string) (types.EpisodeDigest, error) {
	f.runID = pipeline.RunIDFrom(ctx)
	_, f.deadline = ctx.Deadline()
	return f.digest, f.err
}

func (f *fakeOrchestrator) RunFromTranscript(ctx context.Context, _ types.TranscriptResult) (types.EpisodeDigest, error) {
	return f.Run(ctx, "", "")
}

func TestProcessSuccess(t *testing.T) {
	orch := &fakeOrchestrator{digest: types.EpisodeDigest{PodcastSummary: "summary"}}
	res, err := Process(context.Background(), orch, "https://example.com/feed.xml", t.TempDir(), time.Minute, nil)
	require.NoError(t, err)

	require.NotNil(t, res.Digest)
	assert.Equal(t, "summary", res.Digest.PodcastSummary)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.RunID, orch.runID)
	assert.True(t, orch.deadline)
	assert.Empty(t, res.Error)
	assert.Nil(t, res.Transcript)
}

func TestProcessFailureReportsStageAndKind(t *testing.T) {
	transcript := types.TranscriptResult{FullText: "hello"}
	cause := stageerr.Wrap(stageerr.ErrSchemaViolation, pipeline.StageExtract, "parse", "missing key summary", nil)
	orch := &fakeOrchestrator{err: &pipeline.RunError{
		RunID:   "r1",
		Stage:   pipeline.StageExtract,
		Kind:    "SchemaViolationError",
		Err:     cause,
		Partial: pipeline.Partial{Transcript: &transcript},
	}}

	ctx := pipeline.WithRunID(context.Background(), "r1")
	res, err := Process(ctx, orch, "https://example.com/feed.xml", t.TempDir(), 0, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrSchemaViolation))
	assert.Equal(t, "r1", res.RunID)
	assert.False(t, orch.deadline)
	assert.Equal(t, "extract", res.FailedStage)
	assert.Equal(t, "SchemaViolationError", res.ErrorKind)
	assert.Nil(t, res.Digest)
	require.NotNil(t, res.Transcript)
	assert.Equal(t, "hello", res.Transcript.FullText)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var obj map[string]any
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.NotContains(t, obj, "digest")
	assert.Equal(t, "extract", obj["failed_stage"])
}

func TestResume(t *testing.T) {
	orch := &fakeOrchestrator{digest: types.EpisodeDigest{PodcastGuest: "Ada"}}
	transcript := types.TranscriptResult{Episode: types.EpisodeReference{FeedURL: "https://x/feed"}, FullText: "hi"}
	res, err := Resume(context.Background(), orch, transcript, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://x/feed", res.FeedURL)
	assert.Equal(t, "Ada", res.Digest.PodcastGuest)
}

func TestProcessLogsToCallerLogger(t *testing.T) {
	var buf bytes.Buffer
	orch := &fakeOrchestrator{digest: types.EpisodeDigest{PodcastSummary: "summary"}}
	ctx := pipeline.WithRunID(context.Background(), "run-7")
	_, err := Process(ctx, orch, "https://example.com/feed.xml", t.TempDir(), 0, logger.NewWithOutput(&buf))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "processing complete")
	assert.Contains(t, buf.String(), "run-7")

	buf.Reset()
	orch.err = stageerr.Wrap(stageerr.ErrDownload, pipeline.StageFetch, "get", "status 503", nil)
	_, err = Process(ctx, orch, "https://example.com/feed.xml", t.TempDir(), 0, logger.NewWithOutput(&buf))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "processing failed")
	assert.Contains(t, buf.String(), "DownloadError")
}
