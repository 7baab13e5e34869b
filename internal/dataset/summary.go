package dataset

import (
	"net/url"
	"sort"
	"strings"

	"podcast-digest-go/internal/logger"
)

// Summary describes a loaded feed list.
type Summary struct {
	Total      int            `json:"total"`
	Unique     int            `json:"unique"`
	Duplicates []string       `json:"duplicates,omitempty"`
	ByHost     map[string]int `json:"by_host"`
}

// LoadAndSummarize loads the feed list, drops repeated feed URLs (first
// occurrence wins) and reports what it found.
func LoadAndSummarize(path string) ([]FeedRecord, Summary, error) {
	log := logger.New().WithField("component", "dataset.summary").WithField("path", path)
	log.Info("opening feed list")
	records, err := Load(path)
	if err != nil {
		log.WithError(err).Error("load failed")
		return nil, Summary{}, err
	}
	unique, sum := Summarize(records)
	log.WithFields(map[string]interface{}{
		"total":      sum.Total,
		"unique":     sum.Unique,
		"duplicates": len(sum.Duplicates),
		"hosts":      len(sum.ByHost),
	}).Info("feed list loaded")
	return unique, sum, nil
}

// Summarize deduplicates records by normalized feed URL.
func Summarize(records []FeedRecord) ([]FeedRecord, Summary) {
	sum := Summary{Total: len(records), ByHost: map[string]int{}}
	seen := map[string]bool{}
	var unique []FeedRecord
	for _, r := range records {
		key := normalizeURL(r.FeedURL)
		if seen[key] {
			sum.Duplicates = append(sum.Duplicates, r.FeedURL)
			continue
		}
		seen[key] = true
		unique = append(unique, r)
		sum.ByHost[host(r.FeedURL)]++
	}
	sum.Unique = len(unique)
	sort.Strings(sum.Duplicates)
	return unique, sum
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
