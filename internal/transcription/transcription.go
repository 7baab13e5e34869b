package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	stage = "transcribe"

	// DefaultModel is the whisper size tier every episode is transcribed with.
	DefaultModel = "medium"
)

// Transcriber turns a downloaded episode into a full-text transcript.
type Transcriber struct {
	backend Backend
	modelID string
	cache   *ModelCache
	log     *logrus.Entry
}

// NewTranscriber uses SharedModels when cache is nil.
func NewTranscriber(backend Backend, modelID string, cache *ModelCache, log *logrus.Entry) *Transcriber {
	if modelID == "" {
		modelID = DefaultModel
	}
	if cache == nil {
		cache = SharedModels
	}
	if log == nil {
		log = logger.New().Entry
	}
	return &Transcriber{
		backend: backend,
		modelID: modelID,
		cache:   cache,
		log:     log.WithFields(logrus.Fields{"component": "transcription", "backend": backend.Name(), "model": modelID}),
	}
}

// Transcribe runs the whole file through the model in a single call.
func (t *Transcriber) Transcribe(ctx context.Context, ref types.EpisodeReference, audioPath string) (types.TranscriptResult, error) {
	log := t.log.WithField("path", audioPath)

	model, err := t.cache.Get(ctx, t.backend, t.modelID)
	if err != nil {
		log.WithError(err).Error("model load failed")
		return types.TranscriptResult{}, stageerr.Wrap(stageerr.ErrTranscription, stage, "load model", t.modelID, err)
	}

	start := time.Now()
	out, err := model.Transcribe(ctx, audioPath)
	if err != nil {
		log.WithError(err).Error("decode failed")
		return types.TranscriptResult{}, stageerr.Wrap(stageerr.ErrTranscription, stage, "decode", audioPath, err)
	}
	text := out.FullText()
	if text == "" {
		return types.TranscriptResult{}, stageerr.Wrap(stageerr.ErrTranscription, stage, "decode", "model produced no text", nil)
	}

	res := types.TranscriptResult{
		Episode:         ref,
		FullText:        text,
		Model:           t.modelID,
		Language:        out.Language,
		DurationSeconds: out.DurationSeconds(),
		Confidence:      out.Confidence(),
	}
	log.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"chars":       len(text),
		"language":    res.Language,
		"confidence":  fmt.Sprintf("%.3f", res.Confidence),
	}).Info("transcription finished")
	return res, nil
}

// Mock returns a fixed transcript for offline demos (USE_MOCK_TRANSCRIBE=true).
type Mock struct {
	Text string
}

func (m Mock) Name() string { return "mock" }

func (m Mock) Load(_ context.Context, _ string) (Model, error) {
	text := m.Text
	if strings.TrimSpace(text) == "" {
		text = "MOCK TRANSCRIPT: The host welcomes a guest who explains how they built their company and shares three lessons for listeners."
	}
	return mockModel{text: text}, nil
}

type mockModel struct {
	text string
}

func (m mockModel) Transcribe(_ context.Context, audioPath string) (Output, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return Output{}, err
	}
	return Output{Task: "transcribe", Language: "en", Text: m.text}, nil
}
