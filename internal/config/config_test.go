package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SCRATCH_DIR", "OUTPUT_DIR", "CHECKPOINT_DIR", "FEEDS_PATH",
		"TRANSCRIBE_BACKEND", "TRANSCRIBE_URL", "TRANSCRIBE_API_KEY", "WHISPER_MODEL", "USE_MOCK_TRANSCRIBE",
		"LLM_GATEWAY_URL", "LLM_API_KEY", "OPENAI_API_KEY", "LLM_MODEL",
		"RESEARCH_MODEL", "SERPAPI_API_KEY", "SEARCH_BACKEND", "GUEST_FAILURE_POLICY",
		"CHECKPOINT_BACKEND", "MONGO_URI", "PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "whisperx", cfg.Transcription.Backend)
	assert.Equal(t, "medium", cfg.Transcription.Model)
	assert.Equal(t, "gpt-3.5-turbo-16k", cfg.LLM.Model)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Research.Model)
	assert.Equal(t, 256, cfg.Research.MaxTokens)
	assert.Equal(t, 8, cfg.Research.MaxSteps)
	assert.Equal(t, "fail", cfg.Research.FailurePolicy)
	assert.Equal(t, 600*time.Second, cfg.TranscriptionTimeout())
	assert.Equal(t, 300*time.Second, cfg.ExtractionTimeout())
	assert.Equal(t, 1200*time.Second, cfg.ResearchTimeout())
	assert.Equal(t, ":8080", cfg.Addr())
	assert.True(t, filepath.IsAbs(cfg.Paths.ScratchDir))
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[paths]
scratch_dir = "/tmp/digest-scratch"
output_dir = "/tmp/digest-out"

[transcription]
backend = "HTTP"
base_url = "http://asr.local:9000/"
model = "large-v3"

[llm]
api_key = "file-key"

[research]
search_backend = "duckduckgo"
failure_policy = "degrade"
max_steps = 4

[checkpoint]
backend = "none"

[batch]
workers = 6
`), 0o644))

	t.Setenv("WHISPER_MODEL", "small")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("PORT", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/digest-scratch", cfg.Paths.ScratchDir)
	assert.Equal(t, "http", cfg.Transcription.Backend)
	assert.Equal(t, "http://asr.local:9000", cfg.Transcription.BaseURL)
	assert.Equal(t, "small", cfg.Transcription.Model)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "duckduckgo", cfg.Research.SearchBackend)
	assert.Equal(t, "degrade", cfg.Research.FailurePolicy)
	assert.Equal(t, 4, cfg.Research.MaxSteps)
	assert.Equal(t, 256, cfg.Research.MaxTokens, "unset keys keep defaults")
	assert.Equal(t, "none", cfg.Checkpoint.Backend)
	assert.Equal(t, 6, cfg.Batch.Workers)
	assert.Equal(t, ":9090", cfg.Addr())
}

func TestMockTranscribeOverride(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) {
		if k == "USE_MOCK_TRANSCRIBE" {
			return "true", true
		}
		return "", false
	})
	assert.Equal(t, "mock", cfg.Transcription.Backend)
}

func TestLLMKeyPrefersGatewayVariable(t *testing.T) {
	env := map[string]string{"LLM_API_KEY": "gateway", "OPENAI_API_KEY": "openai"}
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "gateway", cfg.LLM.APIKey)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.Transcription.Backend = "vosk" },
		"http without url":  func(c *Config) { c.Transcription.Backend = "http" },
		"unknown search":    func(c *Config) { c.Research.SearchBackend = "bing" },
		"unknown policy":    func(c *Config) { c.Research.FailurePolicy = "ignore" },
		"mongo without uri": func(c *Config) { c.Checkpoint.Backend = "mongo" },
		"bad port":          func(c *Config) { c.Server.Port = "http" },
		"negative retries":  func(c *Config) { c.Batch.Retries = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "digest.toml")
	require.NoError(t, os.WriteFile(path, []byte("[paths\nscratch_dir = 1"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
