// Package batch runs many feeds through the pipeline concurrently. Runs are
// independent: each gets its own run ID and scratch directory, and a failed
// run is retried whole when its error kind allows.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"podcast-digest-go/internal/aggregator"
	"podcast-digest-go/internal/checkpoint"
	"podcast-digest-go/internal/dataset"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
	"podcast-digest-go/internal/processor"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

type Runner struct {
	Orch       processor.Orchestrator
	Workers    int
	Retries    int
	ScratchDir string
	OutputDir  string

	// RunTimeout bounds a single attempt; zero means none.
	RunTimeout time.Duration
	// RetryInterval is the first backoff delay between attempts.
	RetryInterval time.Duration

	Log *logger.Logger
}

// Outcome is the final state of one feed.
type Outcome struct {
	Record     dataset.FeedRecord `json:"record"`
	Result     processor.Result   `json:"result"`
	Attempts   int                `json:"attempts"`
	OutputPath string             `json:"output_path,omitempty"`
}

type Summary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"failures_by_kind"`
	Outcomes  []Outcome      `json:"outcomes"`
}

// Run processes every record and waits for all of them. Outcomes are
// returned in input order. The error is non-nil only when every run failed.
func (r *Runner) Run(ctx context.Context, records []dataset.FeedRecord) (Summary, error) {
	log := r.Log
	if log == nil {
		log = logger.New()
	}
	log = &logger.Logger{Entry: log.WithField("component", "batch")}
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	type job struct {
		idx int
		rec dataset.FeedRecord
	}
	jobs := make(chan job, len(records))
	for i, rec := range records {
		jobs <- job{idx: i, rec: rec}
	}
	close(jobs)

	outcomes := make([]Outcome, len(records))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				out := r.runOne(ctx, log, j.rec)
				outcomes[j.idx] = out
				log.WithFields(map[string]interface{}{
					"worker":   workerID,
					"feed_url": j.rec.FeedURL,
					"attempts": out.Attempts,
					"ok":       out.Result.Error == "",
				}).Info("feed finished")
			}
		}(w)
	}
	wg.Wait()

	sum := Summary{Total: len(records), ByKind: map[string]int{}, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Result.Error == "" {
			sum.Succeeded++
			continue
		}
		sum.Failed++
		kind := o.Result.ErrorKind
		if kind == "" {
			kind = "Unclassified"
		}
		sum.ByKind[kind]++
	}
	log.WithFields(map[string]interface{}{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    sum.Failed,
	}).Info("batch complete")

	if sum.Total > 0 && sum.Succeeded == 0 {
		return sum, fmt.Errorf("all %d feeds failed", sum.Total)
	}
	return sum, nil
}

func (r *Runner) runOne(ctx context.Context, log *logger.Logger, rec dataset.FeedRecord) Outcome {
	out := Outcome{Record: rec}

	policy := backoff.NewExponentialBackOff()
	if r.RetryInterval > 0 {
		policy.InitialInterval = r.RetryInterval
	}
	policy.MaxElapsedTime = 0
	retries := r.Retries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	op := func() error {
		out.Attempts++
		runID := uuid.NewString()
		scratch := filepath.Join(r.ScratchDir, runID)
		defer os.RemoveAll(scratch)

		res, err := processor.Process(pipeline.WithRunID(ctx, runID), r.Orch, rec.FeedURL, scratch, r.RunTimeout, log)
		out.Result = res
		if err == nil {
			return nil
		}
		if !stageerr.Retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.WithError(err).WithField("attempt", out.Attempts).Warn("run failed; will retry")
		return err
	}
	if err := backoff.Retry(op, bo); err != nil {
		return out
	}

	if out.Result.Digest != nil && r.OutputDir != "" {
		path, err := WriteDigest(r.OutputDir, rec.FeedURL, *out.Result.Digest)
		if err != nil {
			out.Result.Error = err.Error()
			return out
		}
		out.OutputPath = path
	}
	return out
}

// WriteDigest writes d to <dir>/podcast-<slug of podcast title>-<key>.json,
// where key is derived from feedURL and the episode title. The file appears
// atomically.
func WriteDigest(dir, feedURL string, d types.EpisodeDigest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := "podcast-" + checkpoint.Slug(d.PodcastDetails.PodcastTitle) + "-" +
		checkpoint.KeyHash(feedURL, d.PodcastDetails.EpisodeTitle) + ".json"
	path := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create digest file: %w", err)
	}
	tmp := f.Name()
	if err := aggregator.Encode(f, d); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write digest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close digest file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit digest file: %w", err)
	}
	return path, nil
}

// FailedKinds lists the failure kinds of s in a stable order.
func (s Summary) FailedKinds() []string {
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
