package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	uvxCommand   = "uvx"
	cudaIndexURL = "https://download.pytorch.org/whl/cu128"
	pypiIndexURL = "https://pypi.org/simple"
)

// CommandRunner executes an external command. Tests substitute it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// WhisperX runs the whisperx CLI through uvx for each transcription.
type WhisperX struct {
	cudaEnabled bool
	runner      CommandRunner
	lookPath    func(string) (string, error)
}

func NewWhisperX(cudaEnabled bool) *WhisperX {
	return &WhisperX{cudaEnabled: cudaEnabled, lookPath: exec.LookPath}
}

// WithCommandRunner replaces process execution (for testing).
func (w *WhisperX) WithCommandRunner(runner CommandRunner) *WhisperX {
	w.runner = runner
	return w
}

func (w *WhisperX) Name() string { return "whisperx" }

// Load checks the launcher is installed. Weights are provisioned by uvx on
// first run and stay in its cache.
func (w *WhisperX) Load(_ context.Context, modelID string) (Model, error) {
	if modelID == "" {
		return nil, fmt.Errorf("whisperx: model identifier required")
	}
	if w.runner == nil {
		if _, err := w.lookPath(uvxCommand); err != nil {
			return nil, fmt.Errorf("whisperx: %s not found: %w", uvxCommand, err)
		}
	}
	return &whisperXModel{backend: w, modelID: modelID}, nil
}

type whisperXModel struct {
	backend *WhisperX
	modelID string
}

func (m *whisperXModel) Transcribe(ctx context.Context, audioPath string) (Output, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return Output{}, fmt.Errorf("whisperx: %w", err)
	}
	outputDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisperx-")
	if err != nil {
		return Output{}, fmt.Errorf("whisperx: output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	if err := m.backend.run(ctx, uvxCommand, m.args(audioPath, outputDir)...); err != nil {
		return Output{}, fmt.Errorf("whisperx: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return Output{}, fmt.Errorf("whisperx: read output: %w", err)
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return Output{}, fmt.Errorf("whisperx: parse output: %w", err)
	}
	return out, nil
}

func (m *whisperXModel) args(source, outputDir string) []string {
	args := make([]string, 0, 24)
	if m.backend.cudaEnabled {
		args = append(args, "--index-url", cudaIndexURL, "--extra-index-url", pypiIndexURL)
	} else {
		args = append(args, "--index-url", pypiIndexURL)
	}
	args = append(args,
		"whisperx",
		source,
		"--model", m.modelID,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--temperature", "0.0",
	)
	if m.backend.cudaEnabled {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", "float32")
	}
	return args
}

func (w *WhisperX) run(ctx context.Context, name string, args ...string) error {
	if w.runner != nil {
		return w.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// torch >= 2.6 refuses the pyannote checkpoints whisperx ships with
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
