package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/llm"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	stage = "extract"

	DefaultModel = "gpt-3.5-turbo-16k"
	FunctionName = "get_podcast_info"
)

// ChatClient is the part of llm.Client the extractor needs.
type ChatClient interface {
	Chat(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Extractor turns a transcript into newsletter fields with one structured
// completion call.
type Extractor struct {
	client ChatClient
	model  string
	log    *logrus.Entry
}

func New(client ChatClient, model string, log *logrus.Entry) *Extractor {
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = logger.New().Entry
	}
	return &Extractor{client: client, model: model, log: log.WithField("component", "extractor")}
}

// fields lists the required output keys in schema order.
var fields = []struct {
	key         string
	description string
}{
	{"summary", "Get a concise summary of the podcast transcript in 5 sentences. Use engaging style and make it attractive to go and listen to the whole story."},
	{"guest_name", "Extract the full name of the podcast guest speaker"},
	{"guest_info", "Extract the information about the podcast guest, job, title, etc."},
	{"highlights", "Extract the highlights of the main ideas discussed in the podcast"},
	{"insights", "Extract the insights about the topic discussed in the podcast"},
	{"actionable_recommendations", "Extract the actionable recommendations suggested in the podcast"},
}

// BuildPrompt builds the instruction sent with the transcript.
func BuildPrompt(transcript, hostName string) string {
	return fmt.Sprintf("You are the helpful assistant of a professional writer. "+
		"Please extract useful information for my weekly podcast newsletter from the transcript: %s by the host: %s",
		transcript, hostName)
}

// Schema is the JSON schema of the get_podcast_info function arguments.
func Schema() map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.key] = map[string]any{"type": "string", "description": f.description}
		required = append(required, f.key)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Extract issues the completion and validates its arguments.
func (e *Extractor) Extract(ctx context.Context, transcript, hostName string) (types.ExtractedInsights, error) {
	log := e.log.WithFields(logrus.Fields{"model": e.model, "transcript_chars": len(transcript)})

	req := llm.Request{
		Model:       e.model,
		Messages:    []llm.Message{{Role: "user", Content: BuildPrompt(transcript, hostName)}},
		Tools:       []llm.Tool{llm.FunctionTool(FunctionName, "Get information about the podcast episode", Schema())},
		ToolChoice:  llm.ForceTool(FunctionName),
		Temperature: 0,
	}

	start := time.Now()
	resp, err := e.client.Chat(ctx, req)
	if err != nil {
		log.WithError(err).Warn("completion request failed")
		return types.ExtractedInsights{}, stageerr.Wrap(stageerr.ErrCompletionService, stage, "chat", e.model, err)
	}

	raw, ok := resp.Message.ToolArguments(FunctionName)
	if !ok {
		// some gateways ignore tool_choice and answer in content
		raw = extractJSON(resp.Message.Content)
		log.Debug("no tool call in response, falling back to content JSON")
	}
	insights, err := ParseArguments(raw)
	if err != nil {
		log.WithError(err).WithField("finish_reason", resp.FinishReason).Warn("completion violated schema")
		return types.ExtractedInsights{}, err
	}

	log.WithFields(logrus.Fields{
		"duration_ms":   time.Since(start).Milliseconds(),
		"has_guest":     insights.HasGuest(),
		"total_tokens":  resp.Usage.TotalTokens,
		"finish_reason": resp.FinishReason,
	}).Info("insights extracted")
	return insights, nil
}

// ParseArguments validates raw function arguments against the six-field
// schema. Every field must be present and a JSON string; anything else is a
// SchemaViolationError and no partial record is returned.
func ParseArguments(raw string) (types.ExtractedInsights, error) {
	if strings.TrimSpace(raw) == "" {
		return types.ExtractedInsights{}, violation("empty arguments", nil)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return types.ExtractedInsights{}, violation("arguments are not a JSON object", err)
	}

	values := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := obj[f.key]
		if !ok {
			return types.ExtractedInsights{}, violation(fmt.Sprintf("field %q missing", f.key), nil)
		}
		var s string
		if len(v) == 0 || v[0] != '"' {
			return types.ExtractedInsights{}, violation(fmt.Sprintf("field %q is not a string", f.key), nil)
		}
		if err := json.Unmarshal(v, &s); err != nil {
			return types.ExtractedInsights{}, violation(fmt.Sprintf("field %q is not a string", f.key), err)
		}
		values[f.key] = strings.TrimSpace(s)
	}

	return types.ExtractedInsights{
		Summary:                   values["summary"],
		GuestName:                 values["guest_name"],
		GuestInfo:                 values["guest_info"],
		Highlights:                values["highlights"],
		Insights:                  values["insights"],
		ActionableRecommendations: values["actionable_recommendations"],
	}, nil
}

func violation(msg string, err error) error {
	return stageerr.Wrap(stageerr.ErrSchemaViolation, stage, "parse", msg, err)
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// A surrounding markdown code fence is dropped; backticks inside the object
// are kept.
func extractJSON(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
