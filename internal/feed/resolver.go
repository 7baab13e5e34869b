package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	stage = "resolve"

	audioMIME = "audio/mpeg"

	// feeds with years of back catalogue run to tens of megabytes
	maxFeedBytes = 64 << 20
)

// Resolver turns a feed URL into a reference to its newest episode.
type Resolver struct {
	client *http.Client
	log    *logrus.Entry
}

func NewResolver(client *http.Client, log *logrus.Entry) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logger.New().Entry
	}
	return &Resolver{client: client, log: log.WithField("component", "feed-resolver")}
}

// Resolve fetches feedURL and resolves its first entry.
func (r *Resolver) Resolve(ctx context.Context, feedURL string) (types.EpisodeReference, error) {
	log := r.log.WithField("feed_url", feedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrFeedParse, stage, "build request", "", err)
	}
	// some hosts answer 406 to Go's default client headers
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("feed request failed")
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrFeedParse, stage, "GET", "feed unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrFeedParse, stage, "GET",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrFeedParse, stage, "read body", "", err)
	}
	log.WithField("bytes", len(data)).Debug("feed downloaded")

	ref, err := ResolveBytes(feedURL, data)
	if err != nil {
		return types.EpisodeReference{}, err
	}
	log.WithFields(logrus.Fields{
		"episode_title": ref.EpisodeTitle,
		"audio_url":     ref.AudioURL,
	}).Info("feed resolved")
	return ref, nil
}

// ResolveBytes resolves already-downloaded feed content. The result depends
// only on feedURL and data.
func ResolveBytes(feedURL string, data []byte) (types.EpisodeReference, error) {
	// gofeed parsers keep per-parse state, so each call gets its own.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrFeedParse, stage, "parse", "malformed feed", err)
	}
	if len(parsed.Items) == 0 || parsed.Items[0] == nil {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrMissingField, stage, "parse", "feed has no entries", nil)
	}
	item := parsed.Items[0]

	audioURL := audioEnclosure(item)
	if audioURL == "" {
		return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrNoAudioEnclosure, stage, "parse",
			fmt.Sprintf("entry %q has no %s enclosure", item.Title, audioMIME), nil)
	}

	ref := types.EpisodeReference{
		FeedURL:             feedURL,
		PodcastTitle:        strings.TrimSpace(parsed.Title),
		HostName:            hostName(item),
		EpisodeTitle:        strings.TrimSpace(item.Title),
		EpisodeImageURL:     coverImage(parsed),
		EpisodeDurationText: duration(item),
		AudioURL:            audioURL,
	}

	required := []struct {
		name  string
		value string
	}{
		{"feed title", ref.PodcastTitle},
		{"entry author", ref.HostName},
		{"entry title", ref.EpisodeTitle},
		{"feed image", ref.EpisodeImageURL},
		{"entry itunes:duration", ref.EpisodeDurationText},
	}
	for _, f := range required {
		if f.value == "" {
			return types.EpisodeReference{}, stageerr.Wrap(stageerr.ErrMissingField, stage, "parse", f.name+" is absent", nil)
		}
	}

	ref.DerivedFileName = DerivedFileName(ref.EpisodeTitle)
	return ref, nil
}

// DerivedFileName maps an episode title to its on-disk audio file name.
func DerivedFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, title)
	return name + ".mp3"
}

func audioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		mediaType, _, err := mime.ParseMediaType(enc.Type)
		if err != nil {
			mediaType = strings.ToLower(strings.TrimSpace(enc.Type))
		}
		if mediaType == audioMIME {
			return enc.URL
		}
	}
	return ""
}

func hostName(item *gofeed.Item) string {
	if item.Author != nil {
		if name := strings.TrimSpace(item.Author.Name); name != "" {
			return name
		}
	}
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	if item.ITunesExt != nil {
		return strings.TrimSpace(item.ITunesExt.Author)
	}
	return ""
}

func coverImage(f *gofeed.Feed) string {
	if f.Image != nil && strings.TrimSpace(f.Image.URL) != "" {
		return strings.TrimSpace(f.Image.URL)
	}
	if f.ITunesExt != nil {
		return strings.TrimSpace(f.ITunesExt.Image)
	}
	return ""
}

func duration(item *gofeed.Item) string {
	if item.ITunesExt == nil {
		return ""
	}
	return strings.TrimSpace(item.ITunesExt.Duration)
}
