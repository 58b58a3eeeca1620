// Package main provides the content pipeline API server entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/spherical/content-pipeline/internal/api"
	"github.com/spherical/content-pipeline/internal/app"
	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/observability"
)

func main() {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "content-api",
		Debug:       cfg.Observability.Debug,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize pipeline")
		os.Exit(1)
	}
	defer a.Close()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("source", cfg.Server.SourcePath).
		Msg("Starting content pipeline API")
	if cfg.Server.APIToken == "" {
		logger.Warn().Msg("API_TOKEN is not set, /v1 routes are unauthenticated")
	}

	router := api.NewRouter(api.Deps{
		Orchestrator:   a.Orchestrator,
		Tracker:        a.Tracker,
		Backend:        a.Backend,
		Metrics:        metrics,
		Logger:         logger,
		SourcePath:     cfg.Server.SourcePath,
		SourceRoot:     cfg.Server.SourceRoot,
		AuthToken:      cfg.Server.APIToken,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	if err := api.Serve(ctx, cfg.Server, router, logger); err != nil {
		logger.Error().Err(err).Msg("Server error")
		a.Close()
		os.Exit(1)
	}
}
