package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"podcast-digest-go/internal/config"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
	"podcast-digest-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "podcast-digest-go").Info("starting service")

	cfg, err := config.Load(os.Getenv("DIGEST_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, closeStore, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			log.WithError(err).Warn("checkpoint store close")
		}
		if err := transcription.SharedModels.Close(); err != nil {
			log.WithError(err).Warn("model cache close")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newMux(orch, cfg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // a single run can take tens of minutes
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}
