package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables on top of file values.
func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	str(&c.Paths.ScratchDir, "SCRATCH_DIR")
	str(&c.Paths.OutputDir, "OUTPUT_DIR")
	str(&c.Paths.CheckpointDir, "CHECKPOINT_DIR")
	str(&c.Paths.FeedsPath, "FEEDS_PATH")

	str(&c.Transcription.Backend, "TRANSCRIBE_BACKEND")
	str(&c.Transcription.BaseURL, "TRANSCRIBE_URL")
	str(&c.Transcription.APIKey, "TRANSCRIBE_API_KEY")
	str(&c.Transcription.Model, "WHISPER_MODEL")
	if v, ok := lookup("USE_MOCK_TRANSCRIBE"); ok && ParseBool(v) {
		c.Transcription.Backend = "mock"
	}

	str(&c.LLM.BaseURL, "LLM_GATEWAY_URL")
	str(&c.LLM.APIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	str(&c.LLM.Model, "LLM_MODEL")

	str(&c.Research.Model, "RESEARCH_MODEL")
	str(&c.Research.SerpAPIKey, "SERPAPI_API_KEY")
	str(&c.Research.SearchBackend, "SEARCH_BACKEND")
	str(&c.Research.FailurePolicy, "GUEST_FAILURE_POLICY")

	str(&c.Checkpoint.Backend, "CHECKPOINT_BACKEND")
	str(&c.Checkpoint.MongoURI, "MONGO_URI")

	str(&c.Server.Port, "PORT")
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.CheckpointDir, err = expandPath(c.Paths.CheckpointDir); err != nil {
		return fmt.Errorf("paths.checkpoint_dir: %w", err)
	}
	if c.Paths.FeedsPath, err = expandPath(c.Paths.FeedsPath); err != nil {
		return fmt.Errorf("paths.feeds_path: %w", err)
	}

	c.Transcription.Backend = lower(c.Transcription.Backend, defaultTranscriptionBackend)
	c.Transcription.Model = trimOr(c.Transcription.Model, defaultTranscriptionModel)
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")

	c.LLM.BaseURL = strings.TrimRight(trimOr(c.LLM.BaseURL, defaultLLMBaseURL), "/")
	c.LLM.Model = trimOr(c.LLM.Model, defaultLLMModel)

	c.Research.Model = trimOr(c.Research.Model, defaultResearchModel)
	c.Research.SearchBackend = lower(c.Research.SearchBackend, defaultSearchBackend)
	c.Research.FailurePolicy = lower(c.Research.FailurePolicy, defaultFailurePolicy)

	c.Checkpoint.Backend = lower(c.Checkpoint.Backend, defaultCheckpointBackend)
	c.Checkpoint.Database = trimOr(c.Checkpoint.Database, defaultMongoDatabase)
	c.Checkpoint.Collection = trimOr(c.Checkpoint.Collection, defaultMongoCollection)

	c.Server.Port = strings.TrimPrefix(trimOr(c.Server.Port, defaultPort), ":")
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = defaultBatchWorkers
	}
	return nil
}

func trimOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

func lower(v, fallback string) string {
	return strings.ToLower(trimOr(v, fallback))
}

// TranscriptionTimeout is the stage bound for transcription.
func (c *Config) TranscriptionTimeout() time.Duration {
	return seconds(c.Transcription.TimeoutSeconds)
}

func (c *Config) ExtractionTimeout() time.Duration {
	return seconds(c.Extraction.TimeoutSeconds)
}

func (c *Config) ResearchTimeout() time.Duration {
	return seconds(c.Research.TimeoutSeconds)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// ParseBool accepts the spellings used in .env files.
func ParseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
