package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FeedRecord is one feed to process.
type FeedRecord struct {
	FeedURL string `json:"feed_url"`
	Label   string `json:"label,omitempty"`
}

// Load reads a feed list. Spreadsheets (.xlsx) are read from their first
// sheet; anything else is plain text with one URL per line, an optional
// label after the URL and '#' comments. Rows without an http(s) URL are
// skipped.
func Load(path string) ([]FeedRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadSheet(path)
	default:
		return loadText(path)
	}
}

func loadSheet(path string) ([]FeedRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}

	// headerless sheet: URLs start on the first row
	for i, cell := range rows[0] {
		if isHTTP(strings.TrimSpace(cell)) {
			return collect(rows, i, -1), nil
		}
	}

	// find feed column
	urlIdx, labelIdx := -1, -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "feed") || strings.Contains(l, "rss") || strings.Contains(l, "url"):
			if urlIdx == -1 {
				urlIdx = i
			}
		case strings.Contains(l, "name") || strings.Contains(l, "title") || strings.Contains(l, "label") || strings.Contains(l, "podcast"):
			if labelIdx == -1 {
				labelIdx = i
			}
		}
	}
	if urlIdx == -1 {
		return nil, fmt.Errorf("no feed column in header %v", rows[0])
	}
	return collect(rows[1:], urlIdx, labelIdx), nil
}

func collect(rows [][]string, urlIdx, labelIdx int) []FeedRecord {
	var out []FeedRecord
	for _, r := range rows {
		rec := FeedRecord{}
		if urlIdx < len(r) {
			rec.FeedURL = strings.TrimSpace(r[urlIdx])
		}
		if labelIdx >= 0 && labelIdx < len(r) {
			rec.Label = strings.TrimSpace(r[labelIdx])
		}
		// skip rows without a usable URL quietly
		if !isHTTP(rec.FeedURL) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func loadText(path string) ([]FeedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	var out []FeedRecord
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		rec := FeedRecord{FeedURL: fields[0]}
		if len(fields) > 1 {
			rec.Label = strings.Join(fields[1:], " ")
		}
		if !isHTTP(rec.FeedURL) {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return out, nil
}

func isHTTP(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
