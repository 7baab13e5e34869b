// Package pipeline runs the stages of one podcast digest:
// resolve -> fetch -> transcribe -> extract -> [research] -> aggregate.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"podcast-digest-go/internal/aggregator"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	StageResolve    = "resolve"
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageExtract    = "extract"
	StageResearch   = "research"
)

type FeedResolver interface {
	Resolve(ctx context.Context, feedURL string) (types.EpisodeReference, error)
}

type AudioFetcher interface {
	Fetch(ctx context.Context, ref types.EpisodeReference, destinationDir string) (types.LocalAudioAsset, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, ref types.EpisodeReference, audioPath string) (types.TranscriptResult, error)
}

type InsightExtractor interface {
	Extract(ctx context.Context, transcript, hostName string) (types.ExtractedInsights, error)
}

type GuestResearcher interface {
	Research(ctx context.Context, guestName, guestInfoHint string) (types.GuestProfile, error)
}

// TranscriptSink receives every transcript as soon as it exists.
type TranscriptSink interface {
	Save(ctx context.Context, t types.TranscriptResult) error
}

// GuestPolicy decides what a failed guest research does to the run.
type GuestPolicy int

const (
	// GuestFailRun fails the whole run.
	GuestFailRun GuestPolicy = iota
	// GuestDegrade keeps the extracted guest name with empty guest info.
	GuestDegrade
)

func (p GuestPolicy) String() string {
	if p == GuestDegrade {
		return "degrade"
	}
	return "fail"
}

func ParseGuestPolicy(s string) (GuestPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return GuestFailRun, nil
	case "degrade":
		return GuestDegrade, nil
	default:
		return GuestFailRun, fmt.Errorf("unknown guest failure policy %q", s)
	}
}

// Stages are the collaborators of a run. Sink is optional.
type Stages struct {
	Resolver    FeedResolver
	Fetcher     AudioFetcher
	Transcriber Transcriber
	Extractor   InsightExtractor
	Researcher  GuestResearcher
	Sink        TranscriptSink
}

// Timeouts bound each stage. Zero means no stage-level bound.
type Timeouts struct {
	Resolve    time.Duration
	Fetch      time.Duration
	Transcribe time.Duration
	Extract    time.Duration
	Research   time.Duration
}

type Options struct {
	GuestPolicy GuestPolicy
	Timeouts    Timeouts

	// KeepAudio leaves the downloaded file in scratch storage after the run.
	KeepAudio bool
}

// Partial holds what a failed run computed before it stopped. Nil fields
// were never reached.
type Partial struct {
	Episode    *types.EpisodeReference
	Asset      *types.LocalAudioAsset
	Transcript *types.TranscriptResult
	Insights   *types.ExtractedInsights
}

// RunError is returned by every failed run.
type RunError struct {
	RunID   string
	Stage   string
	Kind    string
	Err     error
	Partial Partial
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed at %s (%s): %v", e.RunID, e.Stage, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// AsRunError extracts the RunError from err, if any.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

type runIDKey struct{}

// WithRunID attaches a run identifier that Run will use instead of
// generating its own.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run identifier attached to ctx, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Orchestrator sequences the stages. It keeps no per-run state and can run
// many feeds concurrently.
type Orchestrator struct {
	stages Stages
	opts   Options
	log    *logger.Logger
}

func New(stages Stages, opts Options, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New()
	}
	return &Orchestrator{
		stages: stages,
		opts:   opts,
		log:    &logger.Logger{Entry: log.WithField("component", "orchestrator")},
	}
}

// Run produces the digest for the newest episode of feedURL, downloading
// audio into scratchDir. Unless KeepAudio is set the audio is removed when
// Run returns, and a failed run reports no Partial.Asset.
func (o *Orchestrator) Run(ctx context.Context, feedURL, scratchDir string) (digest types.EpisodeDigest, err error) {
	runID := o.runID(ctx)
	log := o.log.WithRun(runID, feedURL)
	start := time.Now()
	var p Partial

	ref, err := dispatch(ctx, log, o.stage(StageResolve), func(ctx context.Context) (types.EpisodeReference, error) {
		return o.stages.Resolver.Resolve(ctx, feedURL)
	})
	if err != nil {
		return o.fail(log, runID, StageResolve, err, p)
	}
	p.Episode = &ref

	asset, err := dispatch(ctx, log, o.stage(StageFetch), func(ctx context.Context) (types.LocalAudioAsset, error) {
		return o.stages.Fetcher.Fetch(ctx, ref, scratchDir)
	})
	if err != nil {
		return o.fail(log, runID, StageFetch, err, p)
	}
	p.Asset = &asset
	if !o.opts.KeepAudio {
		defer func() {
			if rmErr := os.Remove(asset.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.WithError(rmErr).Warn("remove scratch audio")
				return
			}
			if re, ok := AsRunError(err); ok {
				re.Partial.Asset = nil
			}
		}()
	}

	transcript, err := dispatch(ctx, log, o.stage(StageTranscribe), func(ctx context.Context) (types.TranscriptResult, error) {
		return o.stages.Transcriber.Transcribe(ctx, ref, asset.Path)
	})
	if err != nil {
		return o.fail(log, runID, StageTranscribe, err, p)
	}
	p.Transcript = &transcript
	o.checkpoint(ctx, log, transcript)

	digest, err = o.finish(ctx, log, runID, transcript, p)
	if err == nil {
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("digest ready")
	}
	return digest, err
}

// RunFromTranscript resumes a run at extraction using a transcript saved by
// an earlier attempt.
func (o *Orchestrator) RunFromTranscript(ctx context.Context, transcript types.TranscriptResult) (types.EpisodeDigest, error) {
	runID := o.runID(ctx)
	log := o.log.WithRun(runID, transcript.Episode.FeedURL)
	ref := transcript.Episode
	p := Partial{Episode: &ref, Transcript: &transcript}
	if strings.TrimSpace(transcript.FullText) == "" {
		err := stageerr.Wrap(stageerr.ErrTranscription, StageTranscribe, "resume", "saved transcript is empty", nil)
		return o.fail(log, runID, StageTranscribe, err, p)
	}
	log.Info("resuming from saved transcript")
	return o.finish(ctx, log, runID, transcript, p)
}

func (o *Orchestrator) finish(ctx context.Context, log *logger.Logger, runID string, transcript types.TranscriptResult, p Partial) (types.EpisodeDigest, error) {
	ref := transcript.Episode
	insights, err := dispatch(ctx, log, o.stage(StageExtract), func(ctx context.Context) (types.ExtractedInsights, error) {
		return o.stages.Extractor.Extract(ctx, transcript.FullText, ref.HostName)
	})
	if err != nil {
		return o.fail(log, runID, StageExtract, err, p)
	}
	p.Insights = &insights

	if !insights.HasGuest() {
		log.Info("no guest identified; skipping research")
		return aggregator.Build(ref, transcript, insights, nil), nil
	}
	if o.stages.Researcher == nil {
		err := stageerr.Wrap(stageerr.ErrResearchAgent, StageResearch, "start", "no guest researcher configured", nil)
		return o.fail(log, runID, StageResearch, err, p)
	}

	profile, err := dispatch(ctx, log, o.stage(StageResearch), func(ctx context.Context) (types.GuestProfile, error) {
		return o.stages.Researcher.Research(ctx, insights.GuestName, insights.GuestInfo)
	})
	if err != nil {
		if o.opts.GuestPolicy != GuestDegrade || errors.Is(err, stageerr.ErrCanceled) {
			return o.fail(log, runID, StageResearch, err, p)
		}
		log.WithError(err).Warn("guest research failed; continuing without guest info")
		profile = types.GuestProfile{GuestName: insights.GuestName}
	}
	return aggregator.Build(ref, transcript, insights, &profile), nil
}

// checkpoint hands the transcript to the sink. A failing sink never fails
// the run.
func (o *Orchestrator) checkpoint(ctx context.Context, log *logger.Logger, t types.TranscriptResult) {
	if o.stages.Sink == nil {
		return
	}
	if err := o.stages.Sink.Save(ctx, t); err != nil {
		log.WithError(err).Warn("transcript checkpoint failed")
		return
	}
	log.Debug("transcript checkpointed")
}

func (o *Orchestrator) fail(log *logger.Logger, runID, stage string, err error, p Partial) (types.EpisodeDigest, error) {
	if s := stageerr.StageOf(err); s != "" {
		stage = s
	}
	re := &RunError{
		RunID:   runID,
		Stage:   stage,
		Kind:    stageerr.KindName(err),
		Err:     err,
		Partial: p,
	}
	entry := log.WithError(err).WithField("transcript_retained", p.Transcript != nil)
	if errors.Is(err, stageerr.ErrCanceled) {
		entry.Warn("run canceled")
	} else {
		entry.Error("run failed")
	}
	return types.EpisodeDigest{}, re
}

func (o *Orchestrator) runID(ctx context.Context) string {
	if id := RunIDFrom(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (o *Orchestrator) stage(name string) stageSpec {
	s := stageSpec{name: name}
	switch name {
	case StageResolve:
		s.timeout, s.kind, s.timeoutKind = o.opts.Timeouts.Resolve, stageerr.ErrFeedParse, stageerr.ErrFeedParse
	case StageFetch:
		s.timeout, s.kind, s.timeoutKind = o.opts.Timeouts.Fetch, stageerr.ErrDownload, stageerr.ErrDownload
	case StageTranscribe:
		s.timeout, s.kind, s.timeoutKind = o.opts.Timeouts.Transcribe, stageerr.ErrTranscription, stageerr.ErrTranscription
	case StageExtract:
		s.timeout, s.kind, s.timeoutKind = o.opts.Timeouts.Extract, stageerr.ErrCompletionService, stageerr.ErrCompletionService
	case StageResearch:
		s.timeout, s.kind, s.timeoutKind = o.opts.Timeouts.Research, stageerr.ErrResearchAgent, stageerr.ErrResearchTimeout
	}
	return s
}
