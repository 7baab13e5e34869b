package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	stage = "fetch"

	// ChunkSize bounds how much of the episode is held in memory at once.
	ChunkSize = 8192
)

// Fetcher streams episode audio into scratch storage.
type Fetcher struct {
	client *http.Client
	log    *logrus.Entry

	// OnChunk, when set, observes the size of every chunk written to disk.
	OnChunk func(n int)
}

func NewFetcher(client *http.Client, log *logrus.Entry) *Fetcher {
	if client == nil {
		// no overall timeout: long episodes take minutes, the caller's context bounds it
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	if log == nil {
		log = logger.New().Entry
	}
	return &Fetcher{client: client, log: log.WithField("component", "audio-fetcher")}
}

// Fetch downloads ref.AudioURL to destinationDir/ref.DerivedFileName.
// On failure no partial file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, ref types.EpisodeReference, destinationDir string) (types.LocalAudioAsset, error) {
	log := f.log.WithField("audio_url", ref.AudioURL)

	if ref.DerivedFileName == "" || filepath.Base(ref.DerivedFileName) != ref.DerivedFileName {
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "validate",
			fmt.Sprintf("invalid file name %q", ref.DerivedFileName), nil)
	}
	if err := os.MkdirAll(destinationDir, 0o755); err != nil {
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "mkdir", destinationDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.AudioURL, nil)
	if err != nil {
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "build request", "", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("audio request failed")
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "GET", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("http_status", resp.StatusCode).Warn("audio request rejected")
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "GET",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	path := filepath.Join(destinationDir, ref.DerivedFileName)
	out, err := os.Create(path)
	if err != nil {
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "create", path, err)
	}

	start := time.Now()
	written, err := f.copyChunks(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return types.LocalAudioAsset{}, stageerr.Wrap(stageerr.ErrDownload, stage, "stream", path, err)
	}

	log.WithFields(logrus.Fields{
		"path":        path,
		"bytes":       written,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("audio downloaded")
	return types.LocalAudioAsset{Path: path, ByteSize: written}, nil
}

func (f *Fetcher) copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			total += int64(w)
			if err != nil {
				return total, err
			}
			if w != n {
				return total, io.ErrShortWrite
			}
			if f.OnChunk != nil {
				f.OnChunk(w)
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
