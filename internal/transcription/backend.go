package transcription

import (
	"context"
	"math"
	"strings"
)

// Backend loads speech-to-text models by identifier.
type Backend interface {
	Name() string
	Load(ctx context.Context, modelID string) (Model, error)
}

// Model transcribes one whole audio file per call.
// Models that hold resources may also implement io.Closer.
type Model interface {
	Transcribe(ctx context.Context, audioPath string) (Output, error)
}

// Segment mirrors the verbose JSON segment shape shared by whisper servers
// and the whisperx CLI.
type Segment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogprob float64 `json:"avg_logprob"`
}

// Output is the raw result of one model call.
type Output struct {
	Task     string    `json:"task"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
	Text     string    `json:"text"`
}

// FullText prefers the model's own text and falls back to joined segments.
func (o Output) FullText() string {
	if text := strings.TrimSpace(o.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(o.Segments))
	for _, seg := range o.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Confidence is the duration-weighted mean token probability of the
// segments, in [0,1]. Zero means the backend reported no log-probabilities.
func (o Output) Confidence() float64 {
	var weighted, total float64
	for _, seg := range o.Segments {
		if seg.AvgLogprob == 0 {
			continue
		}
		w := seg.End - seg.Start
		if w <= 0 {
			w = 1
		}
		weighted += w * math.Exp(seg.AvgLogprob)
		total += w
	}
	if total == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, weighted/total))
}

// DurationSeconds falls back to the end of the last segment.
func (o Output) DurationSeconds() float64 {
	if o.Duration > 0 {
		return o.Duration
	}
	if n := len(o.Segments); n > 0 {
		return o.Segments[n-1].End
	}
	return 0
}
