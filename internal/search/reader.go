package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const defaultMaxChars = 4000

// Page is the readable content of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// PageReader fetches a page and keeps only its main text.
type PageReader struct {
	client *http.Client

	// MaxChars caps the returned text so one page cannot flood the prompt.
	MaxChars int
}

func NewPageReader(client *http.Client) *PageReader {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &PageReader{client: client, MaxChars: defaultMaxChars}
}

func (p *PageReader) Read(ctx context.Context, pageURL string) (Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Page{}, fmt.Errorf("read page: invalid url %q", pageURL)
	}
	body, err := get(ctx, p.client, pageURL, 8<<20)
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}

	page := Page{URL: pageURL}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err == nil {
		page.Title = strings.TrimSpace(article.Title)
		page.Text = collapse(article.TextContent)
	}
	if page.Text == "" {
		// readability gives up on short pages; take the visible body text instead
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return Page{}, fmt.Errorf("read page: parse HTML: %w", err)
		}
		doc.Find("script, style, noscript").Remove()
		if page.Title == "" {
			page.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		page.Text = collapse(doc.Find("body").Text())
	}

	page.Text = truncateRunes(page.Text, p.MaxChars)
	return page, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
