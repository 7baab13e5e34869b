package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.txt")
	require.NoError(t, os.WriteFile(path, []byte(`# podcasts to digest
https://feeds.example.com/data-show.xml   The Data Show

not-a-url
  http://other.example.org/rss
`), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []FeedRecord{
		{FeedURL: "https://feeds.example.com/data-show.xml", Label: "The Data Show"},
		{FeedURL: "http://other.example.org/rss"},
	}, records)
}

func TestLoadSheetWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Podcast Name", "RSS Feed"},
		{"The Data Show", "https://feeds.example.com/data-show.xml"},
		{"Broken", "n/a"},
		{"Other", "http://other.example.org/rss"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []FeedRecord{
		{FeedURL: "https://feeds.example.com/data-show.xml", Label: "The Data Show"},
		{FeedURL: "http://other.example.org/rss", Label: "Other"},
	}, records)
}

func TestLoadSheetWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "https://a.example/feed"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "https://b.example/feed"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://a.example/feed", records[0].FeedURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "none.xlsx"))
	assert.Error(t, err)
}

func TestSummarizeDeduplicates(t *testing.T) {
	unique, sum := Summarize([]FeedRecord{
		{FeedURL: "https://Feeds.Example.com/show.xml"},
		{FeedURL: "https://feeds.example.com/show.xml/"},
		{FeedURL: "https://other.example.org/rss"},
	})
	assert.Len(t, unique, 2)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Unique)
	assert.Equal(t, []string{"https://feeds.example.com/show.xml/"}, sum.Duplicates)
	assert.Equal(t, map[string]int{"feeds.example.com": 1, "other.example.org": 1}, sum.ByHost)
}

func TestLoadAndSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example/feed\nhttps://a.example/feed\n"), 0o644))
	records, sum, err := LoadAndSummarize(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, sum.Unique)
}
