package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const serpAPIURL = "https://serpapi.com/search.json"

// SerpAPI queries Google through serpapi.com.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewSerpAPI(apiKey string, client *http.Client) *SerpAPI {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &SerpAPI{apiKey: apiKey, baseURL: serpAPIURL, client: client}
}

// WithBaseURL points the client at another endpoint (for testing).
func (s *SerpAPI) WithBaseURL(u string) *SerpAPI {
	s.baseURL = u
	return s
}

type serpResponse struct {
	Error     string `json:"error"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answer_box"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Type        string `json:"type"`
		Description string `json:"description"`
		Website     string `json:"website"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, errors.New("serpapi: api key required")
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", s.apiKey)

	body, err := get(ctx, s.client, s.baseURL+"?"+q.Encode(), 4<<20)
	var parsed serpResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil && parsed.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", parsed.Error)
	}
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("serpapi: decode: %w", err)
	}

	var out []Result
	if ab := parsed.AnswerBox; ab != nil {
		snippet := ab.Answer
		if snippet == "" {
			snippet = ab.Snippet
		}
		if snippet != "" {
			out = append(out, Result{Title: ab.Title, URL: ab.Link, Snippet: collapse(snippet)})
		}
	}
	if kg := parsed.KnowledgeGraph; kg != nil && kg.Description != "" {
		title := kg.Title
		if kg.Type != "" {
			title += " (" + kg.Type + ")"
		}
		out = append(out, Result{Title: title, URL: kg.Website, Snippet: collapse(kg.Description)})
	}
	for _, r := range parsed.OrganicResults {
		if len(out) >= maxResults {
			break
		}
		out = append(out, Result{Title: collapse(r.Title), URL: r.Link, Snippet: collapse(r.Snippet)})
	}
	return out, nil
}
