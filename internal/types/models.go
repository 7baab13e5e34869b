package types

// EpisodeReference is the resolved view of the newest entry of a podcast feed.
type EpisodeReference struct {
	FeedURL             string `json:"feed_url"`
	PodcastTitle        string `json:"podcast_title"`
	HostName            string `json:"host_name"`
	EpisodeTitle        string `json:"episode_title"`
	EpisodeImageURL     string `json:"episode_image"`
	EpisodeDurationText string `json:"episode_duration"`
	AudioURL            string `json:"audio_url"`
	DerivedFileName     string `json:"derived_file_name"`
}

// LocalAudioAsset is an episode audio file downloaded to scratch storage.
type LocalAudioAsset struct {
	Path     string `json:"path"`
	ByteSize int64  `json:"byte_size"`
}

type TranscriptResult struct {
	Episode  EpisodeReference `json:"episode"`
	FullText string           `json:"full_text"`

	// Optional metadata, zero when the backend does not report it.
	Model           string  `json:"model,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// ExtractedInsights holds the six fields returned by the structured completion.
// An empty GuestName means the episode has no identifiable guest.
type ExtractedInsights struct {
	Summary                   string `json:"summary"`
	GuestName                 string `json:"guest_name"`
	GuestInfo                 string `json:"guest_info"`
	Highlights                string `json:"highlights"`
	Insights                  string `json:"insights"`
	ActionableRecommendations string `json:"actionable_recommendations"`
}

func (x ExtractedInsights) HasGuest() bool {
	return x.GuestName != ""
}

type GuestProfile struct {
	GuestName     string `json:"guest_name"`
	PitchSentence string `json:"pitch_sentence"`
}

type PodcastDetails struct {
	PodcastTitle      string `json:"podcast_title"`
	HostName          string `json:"host_name"`
	EpisodeTitle      string `json:"episode_title"`
	EpisodeImage      string `json:"episode_image"`
	EpisodeDuration   string `json:"episode_duration"`
	EpisodeTranscript string `json:"episode_transcript"`
}

// EpisodeDigest is the only externally visible output of a pipeline run.
type EpisodeDigest struct {
	PodcastDetails                   PodcastDetails `json:"podcast_details"`
	PodcastSummary                   string         `json:"podcast_summary"`
	PodcastGuest                     string         `json:"podcast_guest"`
	PodcastGuestInfo                 string         `json:"podcast_guest_info"`
	PodcastHighlights                string         `json:"podcast_highlights"`
	PodcastInsights                  string         `json:"podcast_insights"`
	PodcastActionableRecommendations string         `json:"podcast_actionable_recommendations"`
}
