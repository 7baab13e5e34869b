package batch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"podcast-digest-go/internal/aggregator"
	"podcast-digest-go/internal/checkpoint"
	"podcast-digest-go/internal/dataset"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

// scriptedOrchestrator fails each feed with its scripted errors in order,
// then succeeds.
type scriptedOrchestrator struct {
	mu       sync.Mutex
	failures map[string][]error
	attempts map[string]int
	scratch  map[string]bool
}

func newScripted(failures map[string][]error) *scriptedOrchestrator {
	return &scriptedOrchestrator{failures: failures, attempts: map[string]int{}, scratch: map[string]bool{}}
}

func (s *scriptedOrchestrator) Run(_ context.Context, feedURL, scratchDir string) (types.EpisodeDigest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.attempts[feedURL]
	s.attempts[feedURL]++
	s.scratch[scratchDir] = true
	if errs := s.failures[feedURL]; n < len(errs) {
		return types.EpisodeDigest{}, errs[n]
	}
	title := strings.TrimPrefix(feedURL, "https://")
	return types.EpisodeDigest{PodcastDetails: types.PodcastDetails{PodcastTitle: title}, PodcastSummary: "ok"}, nil
}

func (s *scriptedOrchestrator) RunFromTranscript(context.Context, types.TranscriptResult) (types.EpisodeDigest, error) {
	return types.EpisodeDigest{}, nil
}

func downloadErr() error {
	return stageerr.Wrap(stageerr.ErrDownload, "fetch", "get", "status 503", nil)
}

func TestBatchRetriesRetryableKindsOnly(t *testing.T) {
	orch := newScripted(map[string][]error{
		"https://flaky.example":   {downloadErr()},
		"https://noaudio.example": {stageerr.Wrap(stageerr.ErrNoAudioEnclosure, "resolve", "enclosure", "", nil)},
		"https://down.example":    {downloadErr(), downloadErr(), downloadErr(), downloadErr()},
	})
	out := t.TempDir()
	runner := &Runner{
		Orch:          orch,
		Workers:       3,
		Retries:       2,
		ScratchDir:    t.TempDir(),
		OutputDir:     out,
		RetryInterval: time.Millisecond,
		Log:           logger.NewWithOutput(&bytes.Buffer{}),
	}
	records := []dataset.FeedRecord{
		{FeedURL: "https://ok.example"},
		{FeedURL: "https://flaky.example"},
		{FeedURL: "https://noaudio.example"},
		{FeedURL: "https://down.example"},
	}

	sum, err := runner.Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, map[string]int{"NoAudioEnclosureError": 1, "DownloadError": 1}, sum.ByKind)
	assert.Equal(t, []string{"DownloadError", "NoAudioEnclosureError"}, sum.FailedKinds())

	assert.Equal(t, 1, orch.attempts["https://ok.example"])
	assert.Equal(t, 2, orch.attempts["https://flaky.example"])
	assert.Equal(t, 1, orch.attempts["https://noaudio.example"])
	assert.Equal(t, 3, orch.attempts["https://down.example"], "one attempt plus two retries")

	// outcomes keep input order
	for i, o := range sum.Outcomes {
		assert.Equal(t, records[i].FeedURL, o.Record.FeedURL)
	}
	assert.Equal(t, 2, sum.Outcomes[1].Attempts)
	assert.Equal(t, "fetch", sum.Outcomes[3].Result.FailedStage)

	// every attempt had its own scratch directory, all cleaned up
	assert.Len(t, orch.scratch, 7)
	for dir := range orch.scratch {
		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr))
	}

	path := sum.Outcomes[0].OutputPath
	assert.Equal(t, filepath.Join(out, "podcast-ok-example-"+checkpoint.KeyHash("https://ok.example", "")+".json"), path)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d, err := aggregator.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "ok", d.PodcastSummary)
}

func TestBatchAllFailed(t *testing.T) {
	orch := newScripted(map[string][]error{
		"https://a.example": {stageerr.Wrap(stageerr.ErrMissingField, "resolve", "fields", "", nil)},
	})
	runner := &Runner{Orch: orch, ScratchDir: t.TempDir(), Log: logger.NewWithOutput(&bytes.Buffer{})}
	sum, err := runner.Run(context.Background(), []dataset.FeedRecord{{FeedURL: "https://a.example"}})
	require.Error(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, sum.Outcomes[0].OutputPath)
}

func TestWriteDigestNamesFileByPodcastTitle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d := types.EpisodeDigest{PodcastDetails: types.PodcastDetails{PodcastTitle: "The Data Show!", EpisodeTitle: "Ep 1"}}
	path, err := WriteDigest(dir, "https://a.example/feed", d)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "podcast-the-data-show-"+checkpoint.KeyHash("https://a.example/feed", "Ep 1")+".json"), path)
}

func TestWriteDigestKeepsSameTitledFeedsApart(t *testing.T) {
	dir := t.TempDir()
	details := types.PodcastDetails{PodcastTitle: "Daily News", EpisodeTitle: "Monday"}
	var wg sync.WaitGroup
	paths := make([]string, 2)
	for i, feedURL := range []string{"https://one.example/feed", "https://two.example/feed"} {
		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			p, err := WriteDigest(dir, feedURL, types.EpisodeDigest{PodcastDetails: details, PodcastSummary: feedURL})
			assert.NoError(t, err)
			paths[i] = p
		}(i, feedURL)
	}
	wg.Wait()
	require.NotEqual(t, paths[0], paths[1])

	for i, feedURL := range []string{"https://one.example/feed", "https://two.example/feed"} {
		f, err := os.Open(paths[i])
		require.NoError(t, err)
		d, err := aggregator.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, feedURL, d.PodcastSummary)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}
