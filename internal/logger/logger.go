package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/stageerr"
)

type Logger struct {
	*logrus.Entry
}

func New() *Logger {
	return NewWithOutput(os.Stdout)
}

// NewWithOutput is New writing to w.
func NewWithOutput(w io.Writer) *Logger {
	base := logrus.New()

	// Local env = pretty console; others = JSON
	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     true,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(w)

	// Log level
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// WithRequest attaches request metadata and returns an entry
func (l *Logger) WithRequest(r *http.Request) *logrus.Entry {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.New().String()
	}

	return l.WithFields(logrus.Fields{
		"req_id":     reqID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote_ip":  r.RemoteAddr,
		"user_agent": r.UserAgent(),
	})
}

// From wraps an existing entry, or returns New() when entry is nil.
func From(entry *logrus.Entry) *Logger {
	if entry == nil {
		return New()
	}
	return &Logger{Entry: entry}
}

// WithRun scopes the logger to one pipeline run.
func (l *Logger) WithRun(runID, feedURL string) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields{
		"run_id":   runID,
		"feed_url": feedURL,
	})}
}

// WithStage scopes the logger to one stage of a run.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{Entry: l.Entry.WithField("stage", stage)}
}

// WithError standardizes error logging. Classified stage failures also carry
// failed_stage and error_kind.
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	fields := logrus.Fields{"error": err.Error()}
	if kind := stageerr.KindName(err); kind != "" {
		fields["error_kind"] = kind
	}
	if stage := stageerr.StageOf(err); stage != "" {
		fields["failed_stage"] = stage
	}
	return l.Entry.WithFields(fields)
}
