package config

const (
	defaultScratchDir    = "./scratch"
	defaultOutputDir     = "./podcasts"
	defaultCheckpointDir = "./transcripts"
	defaultFeedsPath     = "./data/feeds.txt"

	defaultTranscriptionBackend = "whisperx"
	defaultTranscriptionModel   = "medium"
	defaultTranscriptionTimeout = 600

	defaultLLMBaseURL = "https://api.openai.com/v1"
	defaultLLMModel   = "gpt-3.5-turbo-16k"
	defaultLLMTimeout = 120

	defaultExtractionTimeout = 300

	defaultResearchModel     = "gpt-3.5-turbo"
	defaultResearchMaxTokens = 256
	defaultResearchMaxSteps  = 8
	defaultResearchTimeout   = 1200
	defaultSearchBackend     = "serpapi"
	defaultFailurePolicy     = "fail"

	defaultCheckpointBackend = "file"
	defaultMongoDatabase     = "podcast_digest"
	defaultMongoCollection   = "transcripts"

	defaultPort = "8080"

	defaultBatchWorkers = 2
	defaultBatchRetries = 2
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir:    defaultScratchDir,
			OutputDir:     defaultOutputDir,
			CheckpointDir: defaultCheckpointDir,
			FeedsPath:     defaultFeedsPath,
		},
		Transcription: Transcription{
			Backend:        defaultTranscriptionBackend,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Extraction: Extraction{TimeoutSeconds: defaultExtractionTimeout},
		Research: Research{
			Model:          defaultResearchModel,
			MaxTokens:      defaultResearchMaxTokens,
			MaxSteps:       defaultResearchMaxSteps,
			TimeoutSeconds: defaultResearchTimeout,
			SearchBackend:  defaultSearchBackend,
			ReadPages:      true,
			FailurePolicy:  defaultFailurePolicy,
		},
		Checkpoint: Checkpoint{
			Backend:    defaultCheckpointBackend,
			Database:   defaultMongoDatabase,
			Collection: defaultMongoCollection,
		},
		Server: Server{Port: defaultPort},
		Batch: Batch{
			Workers: defaultBatchWorkers,
			Retries: defaultBatchRetries,
		},
	}
}
