package aggregator

import (
	"encoding/json"
	"io"

	"podcast-digest-go/internal/types"
)

// Build assembles the digest. guest is nil when research was skipped; the
// guest fields are then empty strings.
func Build(ref types.EpisodeReference, transcript types.TranscriptResult, insights types.ExtractedInsights, guest *types.GuestProfile) types.EpisodeDigest {
	d := types.EpisodeDigest{
		PodcastDetails: types.PodcastDetails{
			PodcastTitle:      ref.PodcastTitle,
			HostName:          ref.HostName,
			EpisodeTitle:      ref.EpisodeTitle,
			EpisodeImage:      ref.EpisodeImageURL,
			EpisodeDuration:   ref.EpisodeDurationText,
			EpisodeTranscript: transcript.FullText,
		},
		PodcastSummary:                   insights.Summary,
		PodcastHighlights:                insights.Highlights,
		PodcastInsights:                  insights.Insights,
		PodcastActionableRecommendations: insights.ActionableRecommendations,
	}
	if guest != nil {
		d.PodcastGuest = insights.GuestName
		d.PodcastGuestInfo = guest.PitchSentence
	}
	return d
}

// Encode writes the digest as indented JSON.
func Encode(w io.Writer, d types.EpisodeDigest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Decode reads a digest written by Encode.
func Decode(r io.Reader) (types.EpisodeDigest, error) {
	var d types.EpisodeDigest
	err := json.NewDecoder(r).Decode(&d)
	return d, err
}
