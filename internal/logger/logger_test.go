package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"podcast-digest-go/internal/stageerr"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestJSONOutsideLocal(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer
	l := NewWithOutput(&buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.WithRun("run-1", "https://example.com/feed.xml").WithStage("fetch").Warn("slow")
	line := decodeLine(t, &buf)
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "https://example.com/feed.xml", line["feed_url"])
	assert.Equal(t, "fetch", line["stage"])
	assert.Equal(t, "slow", line["msg"])
}

func TestWithErrorClassifiesStageFailures(t *testing.T) {
	t.Setenv("ENVIRONMENT", "ci")
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	l := NewWithOutput(&buf)

	err := stageerr.Wrap(stageerr.ErrDownload, "fetch", "get", "status 404", nil)
	l.WithError(err).Error("run failed")
	line := decodeLine(t, &buf)
	assert.Equal(t, "DownloadError", line["error_kind"])
	assert.Equal(t, "fetch", line["failed_stage"])
	assert.Contains(t, line["error"], "status 404")

	buf.Reset()
	l.WithError(errors.New("plain")).Error("other")
	line = decodeLine(t, &buf)
	assert.Equal(t, "plain", line["error"])
	assert.NotContains(t, line, "error_kind")

	assert.Equal(t, l.Entry, l.WithError(nil))
}

func TestWithRequestUsesHeaderID(t *testing.T) {
	t.Setenv("ENVIRONMENT", "ci")
	var buf bytes.Buffer
	l := NewWithOutput(&buf)

	r := httptest.NewRequest("GET", "/process?feed_url=x", nil)
	r.Header.Set("X-Request-ID", "abc")
	assert.Equal(t, "abc", l.WithRequest(r).Data["req_id"])
	assert.Equal(t, "/process", l.WithRequest(r).Data["path"])

	r.Header.Del("X-Request-ID")
	assert.NotEmpty(t, l.WithRequest(r).Data["req_id"])
}

func TestFrom(t *testing.T) {
	assert.NotNil(t, From(nil).Entry)
	base := New().Entry.WithField("component", "x")
	assert.Equal(t, base, From(base).Entry)
}
