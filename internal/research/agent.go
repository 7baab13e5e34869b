// Package research finds a one-sentence pitch for a podcast guest with a
// bounded tool-using agent.
//
// The agent is a small state machine:
//
//	Deciding  -> Searching  (model asked for tools)
//	Deciding  -> Answering  (model answered)
//	Searching -> Deciding   (observations appended)
//	any       -> Failed | TimedOut
//
// MaxSteps bounds the number of model decisions and the context deadline
// bounds wall-clock time. Exceeding either yields ResearchTimeoutError.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/llm"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/search"
	"podcast-digest-go/internal/stageerr"
	"podcast-digest-go/internal/types"
)

const (
	stage = "research"

	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 256
	DefaultMaxSteps  = 8

	toolWebSearch = "web_search"
	toolReadPage  = "read_page"
)

type State string

const (
	Deciding  State = "deciding"
	Searching State = "searching"
	Answering State = "answering"
	Failed    State = "failed"
	TimedOut  State = "timed_out"
)

type ChatClient interface {
	Chat(ctx context.Context, req llm.Request) (llm.Response, error)
}

type PageReader interface {
	Read(ctx context.Context, url string) (search.Page, error)
}

type Config struct {
	Model     string
	MaxTokens int
	MaxSteps  int

	// Timeout, when positive, is applied on top of the caller's context.
	Timeout time.Duration
}

// Researcher drives the agent loop. It holds no per-run state and is safe
// for concurrent use.
type Researcher struct {
	client   ChatClient
	searcher search.Searcher
	reader   PageReader
	cfg      Config
	log      *logrus.Entry
}

// New builds a Researcher. reader may be nil, in which case read_page is not
// offered to the model.
func New(client ChatClient, searcher search.Searcher, reader PageReader, cfg Config, log *logrus.Entry) *Researcher {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if log == nil {
		log = logger.New().Entry
	}
	return &Researcher{
		client:   client,
		searcher: searcher,
		reader:   reader,
		cfg:      cfg,
		log:      log.WithField("component", "guest-researcher"),
	}
}

// Result is the outcome of one agent run.
type Result struct {
	Profile types.GuestProfile
	Trace   []State
	Steps   int
}

// Research returns the guest pitch.
func (r *Researcher) Research(ctx context.Context, guestName, guestInfoHint string) (types.GuestProfile, error) {
	res, err := r.Run(ctx, guestName, guestInfoHint)
	return res.Profile, err
}

// Prompt is the goal handed to the agent.
func Prompt(guestName, guestInfoHint string) string {
	return fmt.Sprintf("Find information about %s and write one sentence pitch about this person. "+
		"You can use this additional information %s", guestName, guestInfoHint)
}

const systemPrompt = "You research podcast guests. Use the web_search tool to look the person up " +
	"and read_page to read a promising result when snippets are not enough. " +
	"When you know enough, reply with exactly one sentence pitching the guest and call no tools."

// run is the mutable state of one agent run.
type run struct {
	messages []llm.Message
	pending  []llm.ToolCall
	answer   string
	failure  error
	steps    int
	trace    []State
}

// Run executes the agent and returns the trace alongside the profile.
func (r *Researcher) Run(ctx context.Context, guestName, guestInfoHint string) (Result, error) {
	if strings.TrimSpace(guestName) == "" {
		return Result{}, stageerr.Wrap(stageerr.ErrResearchAgent, stage, "start", "guest name required", nil)
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	log := r.log.WithField("guest_name", guestName)
	start := time.Now()

	st := &run{messages: []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: Prompt(guestName, guestInfoHint)},
	}}

	state := Deciding
	for {
		st.trace = append(st.trace, state)
		switch state {
		case Deciding:
			state = r.decide(ctx, st)
		case Searching:
			state = r.search(ctx, st, log)
		case Answering:
			pitch := strings.Join(strings.Fields(st.answer), " ")
			if pitch == "" {
				st.failure = errors.New("empty answer")
				state = Failed
				continue
			}
			res := Result{
				Profile: types.GuestProfile{GuestName: guestName, PitchSentence: pitch},
				Trace:   st.trace,
				Steps:   st.steps,
			}
			log.WithFields(logrus.Fields{
				"steps":       st.steps,
				"trace":       traceString(st.trace),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("guest research finished")
			return res, nil
		case Failed:
			log.WithError(st.failure).WithField("trace", traceString(st.trace)).Warn("guest research failed")
			return Result{Trace: st.trace, Steps: st.steps},
				stageerr.Wrap(stageerr.ErrResearchAgent, stage, "agent", "", st.failure)
		case TimedOut:
			log.WithField("trace", traceString(st.trace)).Warn("guest research exceeded its bound")
			return Result{Trace: st.trace, Steps: st.steps},
				stageerr.Wrap(stageerr.ErrResearchTimeout, stage, "agent",
					fmt.Sprintf("no answer after %d steps", st.steps), st.failure)
		default:
			st.failure = fmt.Errorf("unknown state %q", state)
			state = Failed
		}
	}
}

func (r *Researcher) decide(ctx context.Context, st *run) State {
	if s, done := checkContext(ctx, st); done {
		return s
	}
	if st.steps >= r.cfg.MaxSteps {
		st.failure = fmt.Errorf("step limit %d reached", r.cfg.MaxSteps)
		return TimedOut
	}
	st.steps++

	resp, err := r.client.Chat(ctx, llm.Request{
		Model:       r.cfg.Model,
		Messages:    st.messages,
		Tools:       r.tools(),
		Temperature: 0,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		if s, done := checkContext(ctx, st); done {
			return s
		}
		st.failure = err
		return Failed
	}

	msg := resp.Message
	if len(msg.ToolCalls) == 0 && msg.FunctionCall != nil {
		msg.ToolCalls = []llm.ToolCall{{
			ID:       fmt.Sprintf("call_%d", st.steps),
			Type:     "function",
			Function: *msg.FunctionCall,
		}}
		msg.FunctionCall = nil
	}
	if len(msg.ToolCalls) > 0 {
		msg.Role = "assistant"
		st.messages = append(st.messages, msg)
		st.pending = msg.ToolCalls
		return Searching
	}
	if strings.TrimSpace(msg.Content) != "" {
		st.answer = msg.Content
		return Answering
	}
	st.failure = fmt.Errorf("model returned neither tool calls nor an answer (finish_reason=%q)", resp.FinishReason)
	return Failed
}

func (r *Researcher) search(ctx context.Context, st *run, log *logrus.Entry) State {
	calls := st.pending
	st.pending = nil
	for _, call := range calls {
		obs, err := r.invoke(ctx, call)
		if err != nil {
			if s, done := checkContext(ctx, st); done {
				return s
			}
			st.failure = err
			return Failed
		}
		log.WithFields(logrus.Fields{"tool": call.Function.Name, "observation_chars": len(obs)}).Debug("tool observed")
		st.messages = append(st.messages, llm.Message{Role: "tool", ToolCallID: call.ID, Content: obs})
	}
	return Deciding
}

// invoke runs one tool call. Problems the model can correct (unknown tool,
// bad arguments, an unreadable page) become observations; a failing search
// service is returned as an error.
func (r *Researcher) invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	var args struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	if strings.TrimSpace(call.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "error: arguments must be a JSON object", nil
		}
	}

	switch call.Function.Name {
	case toolWebSearch:
		if strings.TrimSpace(args.Query) == "" {
			return "error: query is required", nil
		}
		results, err := r.searcher.Search(ctx, args.Query)
		if err != nil {
			return "", fmt.Errorf("%s: %w", toolWebSearch, err)
		}
		return search.Format(results), nil
	case toolReadPage:
		if r.reader == nil {
			return "error: read_page is not available", nil
		}
		page, err := r.reader.Read(ctx, args.URL)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			return "error: " + err.Error(), nil
		}
		return strings.TrimSpace(page.Title + "\n" + page.Text), nil
	default:
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name), nil
	}
}

func (r *Researcher) tools() []llm.Tool {
	tools := []llm.Tool{
		llm.FunctionTool(toolWebSearch, "Search the web. Returns titles, links and snippets.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "search query"},
			},
			"required": []string{"query"},
		}),
	}
	if r.reader != nil {
		tools = append(tools, llm.FunctionTool(toolReadPage, "Read the main text of a web page.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "absolute http(s) URL"},
			},
			"required": []string{"url"},
		}))
	}
	return tools
}

func checkContext(ctx context.Context, st *run) (State, bool) {
	switch err := ctx.Err(); {
	case err == nil:
		return "", false
	case errors.Is(err, context.DeadlineExceeded):
		st.failure = err
		return TimedOut, true
	default:
		st.failure = err
		return Failed, true
	}
}

func traceString(trace []State) string {
	parts := make([]string, len(trace))
	for i, s := range trace {
		parts[i] = string(s)
	}
	return strings.Join(parts, ">")
}
