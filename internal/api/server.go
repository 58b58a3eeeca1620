package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/observability"
)

// Serve runs an HTTP server for handler until ctx is done, then shuts it
// down gracefully.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *observability.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
