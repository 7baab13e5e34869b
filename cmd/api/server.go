package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"podcast-digest-go/internal/config"
	"podcast-digest-go/internal/dataset"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
	"podcast-digest-go/internal/processor"
)

const (
	defaultTimeoutSec = 1800
	demoLimit         = 5
	demoTimeout       = 30 * time.Minute
)

func newMux(orch processor.Orchestrator, cfg *config.Config, log *logger.Logger) *http.ServeMux {
	if log == nil {
		log = logger.New()
	}
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		log.WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	// process endpoint
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		reqLog := log.WithRequest(r).WithField("handler", "process")
		reqLog.Info("process request received")

		feedURL := r.URL.Query().Get("feed_url")
		if feedURL == "" {
			reqLog.Warn("missing feed_url")
			http.Error(w, "missing feed_url", http.StatusBadRequest)
			return
		}
		timeoutSec := defaultTimeoutSec
		if t := r.URL.Query().Get("timeout_sec"); t != "" {
			n, err := strconv.Atoi(t)
			if err != nil || n <= 0 {
				http.Error(w, "timeout_sec must be a positive integer", http.StatusBadRequest)
				return
			}
			timeoutSec = n
		}
		reqLog = reqLog.WithField("feed_url", feedURL).WithField("timeout_sec", timeoutSec)

		res, err := runFeed(r.Context(), orch, cfg, feedURL, time.Duration(timeoutSec)*time.Second, reqLog)
		reqLog = reqLog.WithField("run_id", res.RunID).WithField("duration_ms", res.DurationMs)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			reqLog.WithField("failed_stage", res.FailedStage).WithField("error_kind", res.ErrorKind).Warn("processor returned error")
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			reqLog.Info("processor finished")
		}
		writeJSON(w, reqLog, res)
	})

	// demo endpoint (process first N feeds of the feed list)
	mux.HandleFunc("/demo", func(w http.ResponseWriter, r *http.Request) {
		reqLog := log.WithRequest(r).WithField("handler", "demo")
		reqLog.Info("demo invoked")
		records, _, err := dataset.LoadAndSummarize(cfg.Paths.FeedsPath)
		if err != nil {
			reqLog.WithError(err).Error("feed list load error")
			http.Error(w, "feed list load error", http.StatusInternalServerError)
			return
		}
		if len(records) > demoLimit {
			records = records[:demoLimit]
		}
		out := make([]processor.Result, 0, len(records))
		for _, rec := range records {
			feedLog := reqLog.WithField("feed_url", rec.FeedURL)
			feedLog.Info("processing demo feed")
			res, _ := runFeed(r.Context(), orch, cfg, rec.FeedURL, demoTimeout, feedLog)
			out = append(out, res)
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, reqLog, out)
	})

	return mux
}

// runFeed runs one feed in its own scratch subdirectory, removed afterwards.
func runFeed(ctx context.Context, orch processor.Orchestrator, cfg *config.Config, feedURL string, timeout time.Duration, log *logrus.Entry) (processor.Result, error) {
	runID := uuid.NewString()
	scratch := filepath.Join(cfg.Paths.ScratchDir, runID)
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.WithError(err).Warn("remove run scratch dir")
		}
	}()
	return processor.Process(pipeline.WithRunID(ctx, runID), orch, feedURL, scratch, timeout, logger.From(log))
}

func writeJSON(w http.ResponseWriter, log *logrus.Entry, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}
