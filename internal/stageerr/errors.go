// Package stageerr holds the error taxonomy shared by every pipeline stage.
//
// Each stage failure is tagged with exactly one kind sentinel so callers can
// classify it with errors.Is regardless of how many layers wrapped it.
package stageerr

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrFeedParse         = errors.New("feed parse error")
	ErrNoAudioEnclosure  = errors.New("no audio enclosure")
	ErrMissingField      = errors.New("missing field")
	ErrDownload          = errors.New("download error")
	ErrTranscription     = errors.New("transcription error")
	ErrSchemaViolation   = errors.New("schema violation")
	ErrCompletionService = errors.New("completion service error")
	ErrResearchAgent     = errors.New("research agent error")
	ErrResearchTimeout   = errors.New("research timeout")

	// ErrCanceled marks a run that stopped at a stage boundary because its
	// context was canceled. It is not a stage failure.
	ErrCanceled = errors.New("run canceled")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrFeedParse, "FeedParseError"},
	{ErrNoAudioEnclosure, "NoAudioEnclosureError"},
	{ErrMissingField, "MissingFieldError"},
	{ErrDownload, "DownloadError"},
	{ErrTranscription, "TranscriptionError"},
	{ErrSchemaViolation, "SchemaViolationError"},
	{ErrCompletionService, "CompletionServiceError"},
	{ErrResearchAgent, "ResearchAgentError"},
	{ErrResearchTimeout, "ResearchTimeoutError"},
	{ErrCanceled, "Canceled"},
}

// Error is a classified stage failure.
type Error struct {
	Kind    error
	Stage   string
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 5)
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	for _, p := range []string{e.Stage, e.Op, e.Message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Wrap tags err with kind and stage context. err may be nil when the failure
// has no underlying cause. The returned error carries a stack trace.
func Wrap(kind error, stage, op, message string, err error) error {
	wrapped := &Error{Kind: kind, Stage: stage, Op: op, Message: message, Err: err}
	out := errors.WithStack(error(wrapped))
	if hint := hintFor(kind); hint != "" {
		out = errors.WithHint(out, hint)
	}
	return out
}

// Kind returns the kind sentinel err was tagged with, or nil.
func Kind(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	for _, kn := range kindNames {
		if errors.Is(err, kn.kind) {
			return kn.kind
		}
	}
	return nil
}

// KindName reports the taxonomy name of err, e.g. "DownloadError".
// Unclassified errors report "".
func KindName(err error) string {
	kind := Kind(err)
	for _, kn := range kindNames {
		if kn.kind == kind {
			return kn.name
		}
	}
	return ""
}

// StageOf reports the stage recorded on err, or "".
func StageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Retryable reports whether re-invoking the whole run could plausibly succeed.
// Feed content problems are deterministic and cancellation is the caller's
// decision, so neither is retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch Kind(err) {
	case ErrNoAudioEnclosure, ErrMissingField, ErrCanceled, nil:
		return false
	default:
		return true
	}
}

// Hints returns the user-facing advice attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}

func hintFor(kind error) string {
	switch kind {
	case ErrFeedParse:
		return "check that the feed URL is reachable and serves RSS or Atom"
	case ErrNoAudioEnclosure:
		return "the newest episode has no audio/mpeg enclosure"
	case ErrDownload, ErrCompletionService, ErrResearchAgent:
		return "the remote service may be temporarily unavailable; retry the run"
	case ErrTranscription:
		return "verify the speech-to-text model is provisioned and the audio file is valid"
	case ErrResearchTimeout:
		return "raise the research timeout or step limit, or use the degrade guest policy"
	default:
		return ""
	}
}
