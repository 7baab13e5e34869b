package aggregator

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"podcast-digest-go/internal/types"
)

var (
	ref = types.EpisodeReference{
		FeedURL:             "https://example.com/feed.xml",
		PodcastTitle:        "The Data Show",
		HostName:            "Jane Host",
		EpisodeTitle:        "Episode 42",
		EpisodeImageURL:     "https://example.com/cover.jpg",
		EpisodeDurationText: "01:02:03",
		AudioURL:            "https://cdn.example.com/42.mp3",
		DerivedFileName:     "Episode_42.mp3",
	}
	transcript = types.TranscriptResult{Episode: ref, FullText: "hello and welcome"}
	insights   = types.ExtractedInsights{
		Summary:                   "summary",
		GuestName:                 "Ada Lovelace",
		GuestInfo:                 "mathematician",
		Highlights:                "highlights",
		Insights:                  "insights",
		ActionableRecommendations: "recommendations",
	}
)

func TestBuildWithGuest(t *testing.T) {
	d := Build(ref, transcript, insights, &types.GuestProfile{GuestName: "Ada Lovelace", PitchSentence: "Ada wrote the first program."})

	assert.Equal(t, "The Data Show", d.PodcastDetails.PodcastTitle)
	assert.Equal(t, "Jane Host", d.PodcastDetails.HostName)
	assert.Equal(t, "Episode 42", d.PodcastDetails.EpisodeTitle)
	assert.Equal(t, "https://example.com/cover.jpg", d.PodcastDetails.EpisodeImage)
	assert.Equal(t, "01:02:03", d.PodcastDetails.EpisodeDuration)
	assert.Equal(t, "hello and welcome", d.PodcastDetails.EpisodeTranscript)
	assert.Equal(t, "summary", d.PodcastSummary)
	assert.Equal(t, "Ada Lovelace", d.PodcastGuest)
	assert.Equal(t, "Ada wrote the first program.", d.PodcastGuestInfo)
	assert.Equal(t, "highlights", d.PodcastHighlights)
	assert.Equal(t, "insights", d.PodcastInsights)
	assert.Equal(t, "recommendations", d.PodcastActionableRecommendations)
}

func TestBuildWithoutGuest(t *testing.T) {
	noGuest := insights
	noGuest.GuestName = ""
	d := Build(ref, transcript, noGuest, nil)
	assert.Equal(t, "", d.PodcastGuest)
	assert.Equal(t, "", d.PodcastGuestInfo)
}

func TestEncodeUsesExactFieldSet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(ref, transcript, insights, nil)))

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &obj))
	assert.Equal(t, []string{
		"podcast_actionable_recommendations",
		"podcast_details",
		"podcast_guest",
		"podcast_guest_info",
		"podcast_highlights",
		"podcast_insights",
		"podcast_summary",
	}, sortedKeys(obj))

	var details map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(obj["podcast_details"], &details))
	assert.Equal(t, []string{
		"episode_duration",
		"episode_image",
		"episode_title",
		"episode_transcript",
		"host_name",
		"podcast_title",
	}, sortedKeys(details))

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, Build(ref, transcript, insights, nil), back)
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
