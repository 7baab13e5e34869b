package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"podcast-digest-go/internal/audio"
	"podcast-digest-go/internal/checkpoint"
	"podcast-digest-go/internal/config"
	"podcast-digest-go/internal/extractor"
	"podcast-digest-go/internal/feed"
	"podcast-digest-go/internal/llm"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/research"
	"podcast-digest-go/internal/search"
	"podcast-digest-go/internal/transcription"
)

// Build wires real components from configuration. The returned close
// function releases the checkpoint store; the shared model cache is closed
// by the process owner.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Orchestrator, func(context.Context) error, error) {
	if log == nil {
		log = logger.New()
	}
	policy, err := ParseGuestPolicy(cfg.Research.FailurePolicy)
	if err != nil {
		return nil, nil, err
	}

	backend, err := TranscriptionBackend(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, nil)

	webClient := &http.Client{Timeout: 30 * time.Second}
	var searcher search.Searcher
	switch cfg.Research.SearchBackend {
	case "duckduckgo":
		searcher = search.NewDuckDuckGo(webClient)
	default:
		searcher = search.NewSerpAPI(cfg.Research.SerpAPIKey, webClient)
	}
	var reader research.PageReader
	if cfg.Research.ReadPages {
		reader = search.NewPageReader(webClient)
	}

	stages := Stages{
		Resolver:    feed.NewResolver(nil, log.Entry),
		Fetcher:     audio.NewFetcher(nil, log.Entry),
		Transcriber: transcription.NewTranscriber(backend, cfg.Transcription.Model, transcription.SharedModels, log.Entry),
		Extractor:   extractor.New(llmClient, cfg.LLM.Model, log.Entry),
		Researcher: research.New(llmClient, searcher, reader, research.Config{
			Model:     cfg.Research.Model,
			MaxTokens: cfg.Research.MaxTokens,
			MaxSteps:  cfg.Research.MaxSteps,
			Timeout:   cfg.ResearchTimeout(),
		}, log.Entry),
	}

	closeFn := func(context.Context) error { return nil }
	switch cfg.Checkpoint.Backend {
	case "file":
		stages.Sink = checkpoint.NewFileStore(cfg.Paths.CheckpointDir)
	case "mongo":
		store, err := checkpoint.NewMongoStore(ctx, cfg.Checkpoint.MongoURI, cfg.Checkpoint.Database, cfg.Checkpoint.Collection)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint store: %w", err)
		}
		stages.Sink = store
		closeFn = store.Close
	}

	opts := Options{
		GuestPolicy: policy,
		Timeouts: Timeouts{
			Transcribe: cfg.TranscriptionTimeout(),
			Extract:    cfg.ExtractionTimeout(),
			Research:   cfg.ResearchTimeout(),
		},
	}
	log.WithField("transcription_backend", backend.Name()).
		WithField("search_backend", cfg.Research.SearchBackend).
		WithField("guest_policy", policy.String()).
		WithField("checkpoint", cfg.Checkpoint.Backend).
		Info("pipeline configured")
	return New(stages, opts, log), closeFn, nil
}

// TranscriptionBackend selects the speech-to-text backend named in cfg.
func TranscriptionBackend(cfg *config.Config, log *logger.Logger) (transcription.Backend, error) {
	switch cfg.Transcription.Backend {
	case "whisperx":
		return transcription.NewWhisperX(cfg.Transcription.CUDAEnabled), nil
	case "http":
		return transcription.NewHTTPBackend(cfg.Transcription.BaseURL, cfg.Transcription.APIKey, nil, log.Entry), nil
	case "mock":
		return transcription.Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Transcription.Backend)
	}
}
