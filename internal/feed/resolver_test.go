package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"podcast-digest-go/internal/stageerr"
)

const itemTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>The Data Show</title>
  <link>https://example.com/show</link>
  <description>Talks about data</description>
  <image><url>https://example.com/cover.jpg</url><title>The Data Show</title><link>https://example.com/show</link></image>
  <item>
    <title>Episode 42: Streams and Tables</title>
    <author>%s</author>
    <itunes:duration>01:02:03</itunes:duration>
    %s
  </item>
  <item>
    <title>Episode 41</title>
    <author>Older Host</author>
    <itunes:duration>00:30:00</itunes:duration>
    <enclosure url="https://cdn.example.com/41.mp3" length="10" type="audio/mpeg"/>
  </item>
</channel>
</rss>`

func rssFeed(author, enclosures string) []byte {
	return []byte(fmt.Sprintf(itemTemplate, author, enclosures))
}

func TestResolveBytesMapsFirstEntry(t *testing.T) {
	data := rssFeed("Jane Host", `<enclosure url="https://cdn.example.com/42.mp3" length="1234" type="audio/mpeg"/>`)

	ref, err := ResolveBytes("https://example.com/feed.xml", data)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/feed.xml", ref.FeedURL)
	assert.Equal(t, "The Data Show", ref.PodcastTitle)
	assert.Equal(t, "Jane Host", ref.HostName)
	assert.Equal(t, "Episode 42: Streams and Tables", ref.EpisodeTitle)
	assert.Equal(t, "https://example.com/cover.jpg", ref.EpisodeImageURL)
	assert.Equal(t, "01:02:03", ref.EpisodeDurationText)
	assert.Equal(t, "https://cdn.example.com/42.mp3", ref.AudioURL)
	assert.Equal(t, "Episode_42:_Streams_and_Tables.mp3", ref.DerivedFileName)
}

func TestResolveBytesPicksAudioMPEGAmongEnclosures(t *testing.T) {
	data := rssFeed("Jane Host", `
    <enclosure url="https://cdn.example.com/42.jpg" length="1" type="image/jpeg"/>
    <enclosure url="https://cdn.example.com/42.mp3" length="1234" type="Audio/MPEG; charset=binary"/>`)

	ref, err := ResolveBytes("https://example.com/feed.xml", data)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/42.mp3", ref.AudioURL)
}

func TestResolveBytesWithoutAudioEnclosure(t *testing.T) {
	cases := map[string]string{
		"no enclosure": "",
		"wrong type":   `<enclosure url="https://cdn.example.com/42.m4a" length="1" type="audio/x-m4a"/>`,
		"video only":   `<enclosure url="https://cdn.example.com/42.mp4" length="1" type="video/mp4"/>`,
		"ogg audio":    `<enclosure url="https://cdn.example.com/42.ogg" length="1" type="audio/ogg"/>`,
	}
	for name, enclosures := range cases {
		t.Run(name, func(t *testing.T) {
			ref, err := ResolveBytes("https://example.com/feed.xml", rssFeed("Jane Host", enclosures))
			require.Error(t, err)
			assert.True(t, errors.Is(err, stageerr.ErrNoAudioEnclosure))
			assert.Empty(t, ref.AudioURL)
			assert.Empty(t, ref.PodcastTitle, "no partial reference")
		})
	}
}

func TestResolveBytesMissingAuthor(t *testing.T) {
	data := rssFeed("", `<enclosure url="https://cdn.example.com/42.mp3" length="1234" type="audio/mpeg"/>`)

	_, err := ResolveBytes("https://example.com/feed.xml", data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrMissingField))
	assert.Contains(t, err.Error(), "entry author")
}

func TestResolveBytesFallsBackToITunesFields(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>iTunes Only</title>
  <itunes:image href="https://example.com/itunes-cover.png"/>
  <item>
    <title>Pilot</title>
    <itunes:author>Sam Caster</itunes:author>
    <itunes:duration>3600</itunes:duration>
    <enclosure url="https://cdn.example.com/pilot.mp3" length="1" type="audio/mpeg"/>
  </item>
</channel>
</rss>`)

	ref, err := ResolveBytes("https://example.com/itunes.xml", data)
	require.NoError(t, err)
	assert.Equal(t, "Sam Caster", ref.HostName)
	assert.Equal(t, "https://example.com/itunes-cover.png", ref.EpisodeImageURL)
	assert.Equal(t, "3600", ref.EpisodeDurationText)
}

func TestResolveBytesEmptyFeed(t *testing.T) {
	data := []byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`)
	_, err := ResolveBytes("https://example.com/empty.xml", data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrMissingField))
}

func TestResolveBytesMalformed(t *testing.T) {
	_, err := ResolveBytes("https://example.com/feed.xml", []byte("this is not a feed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrFeedParse))
}

func TestResolveBytesIsIdempotent(t *testing.T) {
	data := rssFeed("Jane Host", `<enclosure url="https://cdn.example.com/42.mp3" length="1234" type="audio/mpeg"/>`)

	first, err := ResolveBytes("https://example.com/feed.xml", data)
	require.NoError(t, err)
	second, err := ResolveBytes("https://example.com/feed.xml", data)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDerivedFileNameHasNoWhitespace(t *testing.T) {
	titles := []string{
		"Simple",
		"Two words",
		"Tabs\tand\nnewlines",
		"  leading and trailing  ",
		"Unicode\u2003space\u00a0here",
		"path/sep\\arated",
	}
	for _, title := range titles {
		name := DerivedFileName(title)
		assert.True(t, strings.HasSuffix(name, ".mp3"), name)
		assert.False(t, strings.ContainsFunc(name, unicode.IsSpace), name)
		assert.NotContains(t, name, "/")
	}
}

func TestResolveOverHTTP(t *testing.T) {
	data := rssFeed("Jane Host", `<enclosure url="https://cdn.example.com/42.mp3" length="1234" type="audio/mpeg"/>`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	ref, err := NewResolver(srv.Client(), nil).Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, ref.FeedURL)
	assert.Equal(t, "https://cdn.example.com/42.mp3", ref.AudioURL)
}

func TestResolveUnreachableOrErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	r := NewResolver(srv.Client(), nil)
	_, err := r.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrFeedParse))

	_, err = r.Resolve(context.Background(), "http://127.0.0.1:1/feed.xml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, stageerr.ErrFeedParse))
}
