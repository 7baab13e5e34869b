package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/logger"
)

// HTTPBackend talks to an OpenAI-compatible speech-to-text server
// (whisper.cpp server, faster-whisper-server, the hosted API).
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Entry

	// ProbeMaxElapsed bounds the retries of the model availability probe.
	ProbeMaxElapsed time.Duration
}

func NewHTTPBackend(baseURL, apiKey string, client *http.Client, log *logrus.Entry) *HTTPBackend {
	if client == nil {
		// uploads and decoding of a long episode take minutes
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	if log == nil {
		log = logger.New().Entry
	}
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	return &HTTPBackend{
		baseURL:         base,
		apiKey:          apiKey,
		client:          client,
		log:             log.WithField("component", "transcription"),
		ProbeMaxElapsed: 30 * time.Second,
	}
}

func (b *HTTPBackend) Name() string { return "http" }

// Load probes the server until it reports the model, retrying transient
// failures with exponential backoff. An unknown model fails immediately.
func (b *HTTPBackend) Load(ctx context.Context, modelID string) (Model, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("transcription server URL not set")
	}
	endpoint := b.baseURL + "/v1/models/" + url.PathEscape(modelID)

	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		b.authorize(req)
		resp, err := b.client.Do(req)
		if err != nil {
			lastErr = err
			b.log.WithError(err).Warn("model probe failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			lastErr = fmt.Errorf("model %q not available on %s", modelID, b.baseURL)
			return backoff.Permanent(lastErr)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			lastErr = fmt.Errorf("model probe rejected: status %d", resp.StatusCode)
			return backoff.Permanent(lastErr)
		case resp.StatusCode >= 300:
			lastErr = fmt.Errorf("model probe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return lastErr
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.ProbeMaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, lastErr
	}
	b.log.WithField("model", modelID).Info("transcription model available")
	return &httpModel{backend: b, modelID: modelID}, nil
}

type httpModel struct {
	backend *HTTPBackend
	modelID string
}

// Transcribe uploads the file as a streamed multipart body.
func (m *httpModel) Transcribe(ctx context.Context, audioPath string) (Output, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Output{}, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		err := writeUpload(w, f, m.modelID, filepath.Base(audioPath))
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.backend.baseURL+"/v1/audio/transcriptions", pr)
	if err != nil {
		pr.Close()
		return Output{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	m.backend.authorize(req)

	resp, err := m.backend.client.Do(req)
	if err != nil {
		return Output{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Output{}, fmt.Errorf("transcription server: status %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var out Output
	if err := json.Unmarshal(body, &out); err != nil {
		return Output{}, fmt.Errorf("json decode error: %v body=%s", err, truncate(string(body), 512))
	}
	return out, nil
}

func writeUpload(w *multipart.Writer, src io.Reader, modelID, fileName string) error {
	if err := w.WriteField("model", modelID); err != nil {
		return err
	}
	if err := w.WriteField("response_format", "verbose_json"); err != nil {
		return err
	}
	if err := w.WriteField("temperature", "0"); err != nil {
		return err
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return w.Close()
}

func (b *HTTPBackend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
