// Package checkpoint persists transcripts so a failed run can be resumed at
// extraction without paying for transcription again.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"podcast-digest-go/internal/types"
)

// ErrNotFound is returned by Load when no transcript is stored for the key.
var ErrNotFound = errors.New("checkpoint: transcript not found")

// Store saves and loads transcripts keyed by feed URL and episode title.
type Store interface {
	Save(ctx context.Context, t types.TranscriptResult) error
	Load(ctx context.Context, feedURL, episodeTitle string) (types.TranscriptResult, error)
}

// FileStore writes one JSON file per episode under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Save(ctx context.Context, t types.TranscriptResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	path := s.Path(t.Episode.FeedURL, t.Episode.EpisodeTitle)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, feedURL, episodeTitle string) (types.TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return types.TranscriptResult{}, err
	}
	t, err := ReadFile(s.Path(feedURL, episodeTitle))
	if errors.Is(err, os.ErrNotExist) {
		return types.TranscriptResult{}, ErrNotFound
	}
	if err != nil {
		return types.TranscriptResult{}, err
	}
	if t.Episode.FeedURL != feedURL || t.Episode.EpisodeTitle != episodeTitle {
		return types.TranscriptResult{}, ErrNotFound
	}
	return t, nil
}

// Path is the file a transcript for the key is stored in. The slug keeps the
// name readable; the digest of the full key keeps it unique.
func (s *FileStore) Path(feedURL, episodeTitle string) string {
	return filepath.Join(s.Dir, "transcript-"+Slug(episodeTitle)+"-"+KeyHash(feedURL, episodeTitle)+".json")
}

// KeyHash is a short hex digest of a feed URL and episode title.
func KeyHash(feedURL, episodeTitle string) string {
	sum := sha256.Sum256([]byte(feedURL + "\x00" + episodeTitle))
	return hex.EncodeToString(sum[:8])
}

// ReadFile decodes a transcript file written by FileStore or by hand.
func ReadFile(path string) (types.TranscriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TranscriptResult{}, err
	}
	var t types.TranscriptResult
	if err := json.Unmarshal(data, &t); err != nil {
		return types.TranscriptResult{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	if strings.TrimSpace(t.FullText) == "" {
		return types.TranscriptResult{}, fmt.Errorf("transcript %s has no text", path)
	}
	return t, nil
}

// Slug lowercases s and keeps letters and digits, joining runs of anything
// else with a single '-'. Long slugs are cut at 80 runes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	n := 0
	for _, r := range strings.ToLower(s) {
		if n >= 80 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			n++
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
			n++
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
