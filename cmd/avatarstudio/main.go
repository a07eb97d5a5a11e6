package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/avatarstudio/internal/catalog"
	"github.com/ent0n29/avatarstudio/internal/config"
	"github.com/ent0n29/avatarstudio/internal/httpapi"
	"github.com/ent0n29/avatarstudio/internal/logging"
	"github.com/ent0n29/avatarstudio/internal/observability"
	"github.com/ent0n29/avatarstudio/internal/pipio"
	"github.com/ent0n29/avatarstudio/internal/session"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Development(), cfg.LogLevel)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client := pipio.NewClient(pipio.Config{
		AvatarBaseURL:   cfg.PipioAvatarBaseURL,
		GenerateBaseURL: cfg.PipioGenerateBaseURL,
		ListTimeout:     cfg.PipioListTimeout,
		SubmitTimeout:   cfg.PipioSubmitTimeout,
		Observer:        metrics,
	})
	catalogService := catalog.NewService(client, catalog.Config{
		TTL:         cfg.CatalogCacheTTL,
		UseFallback: cfg.CatalogUseFallback,
	}, logger, metrics)

	sessions := session.NewManager(session.Config{
		InactivityTimeout: cfg.SessionInactivityTimeout,
		DefaultAPIKey:     cfg.PipioAPIKey,
		Catalog:           catalogService,
		Generator:         client,
		Observer:          metrics,
		Logger:            logger,
	})
	sessions.SetExpireHook(func(s *session.Session) {
		counts := s.Jobs.Counts()
		if counts.Processing == 0 {
			return
		}
		// Upstream keeps rendering these; nobody will poll them again.
		logger.Warn().
			Str("session_id", s.ID).
			Int("processing_jobs", counts.Processing).
			Msg("session expired with unfinished jobs")
	})

	api := httpapi.New(cfg, sessions, catalogService, client, metrics, logger)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 30*time.Second)

	go func() {
		logger.Info().
			Str("addr", cfg.BindAddr).
			Str("avatar_base_url", cfg.PipioAvatarBaseURL).
			Str("generate_base_url", cfg.PipioGenerateBaseURL).
			Bool("fallback_catalog", cfg.CatalogUseFallback).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}
