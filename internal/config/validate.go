package config

import (
	"errors"
	"fmt"
	"strconv"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateResearch(); err != nil {
		return err
	}
	if err := c.validateCheckpoint(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if c.Batch.Retries < 0 {
		return errors.New("batch.retries must be >= 0")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case "whisperx", "mock":
	case "http":
		if c.Transcription.BaseURL == "" {
			return errors.New("transcription.base_url is required for the http backend (set TRANSCRIBE_URL)")
		}
	default:
		return fmt.Errorf("transcription.backend %q must be whisperx, http or mock", c.Transcription.Backend)
	}
	if c.Transcription.TimeoutSeconds < 0 {
		return errors.New("transcription.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateResearch() error {
	switch c.Research.SearchBackend {
	case "serpapi", "duckduckgo":
	default:
		return fmt.Errorf("research.search_backend %q must be serpapi or duckduckgo", c.Research.SearchBackend)
	}
	switch c.Research.FailurePolicy {
	case "fail", "degrade":
	default:
		return fmt.Errorf("research.failure_policy %q must be fail or degrade", c.Research.FailurePolicy)
	}
	if c.Research.MaxSteps < 0 || c.Research.MaxTokens < 0 {
		return errors.New("research.max_steps and research.max_tokens must be >= 0")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	switch c.Checkpoint.Backend {
	case "file", "none":
	case "mongo":
		if c.Checkpoint.MongoURI == "" {
			return errors.New("checkpoint.mongo_uri is required for the mongo backend (set MONGO_URI)")
		}
	default:
		return fmt.Errorf("checkpoint.backend %q must be file, mongo or none", c.Checkpoint.Backend)
	}
	return nil
}

func (c *Config) validateServer() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server.port %q is not a valid port", c.Server.Port)
	}
	return nil
}
