// Package config loads podcast-digest settings: defaults, then an optional
// TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "digest.toml"

type Paths struct {
	ScratchDir    string `toml:"scratch_dir"`
	OutputDir     string `toml:"output_dir"`
	CheckpointDir string `toml:"checkpoint_dir"`
	FeedsPath     string `toml:"feeds_path"`
}

type Transcription struct {
	Backend        string `toml:"backend"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	CUDAEnabled    bool   `toml:"cuda_enabled"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type LLM struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Extraction struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type Research struct {
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	MaxSteps       int    `toml:"max_steps"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	SearchBackend  string `toml:"search_backend"`
	SerpAPIKey     string `toml:"serpapi_key"`
	ReadPages      bool   `toml:"read_pages"`
	FailurePolicy  string `toml:"failure_policy"`
}

type Checkpoint struct {
	Backend    string `toml:"backend"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

type Server struct {
	Port string `toml:"port"`
}

type Batch struct {
	Workers int `toml:"workers"`
	Retries int `toml:"retries"`
}

// Config is the full configuration. Durations are whole seconds.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Extraction    Extraction    `toml:"extraction"`
	Research      Research      `toml:"research"`
	Checkpoint    Checkpoint    `toml:"checkpoint"`
	Server        Server        `toml:"server"`
	Batch         Batch         `toml:"batch"`
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path tries DefaultFileName in the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFileName
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
