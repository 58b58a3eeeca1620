// Package app wires configuration into a ready-to-use pipeline. Both the
// CLI and the API server build their dependencies through Build.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/spherical/content-pipeline/internal/cache"
	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/enrich"
	"github.com/spherical/content-pipeline/internal/extract"
	"github.com/spherical/content-pipeline/internal/history"
	"github.com/spherical/content-pipeline/internal/llm"
	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/pipeline"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Backend      storage.Backend
	Tracker      *state.Tracker
	LLMCache     *cache.Dynamic[domain.StructuredContent]
	History      *history.Store
	Orchestrator *pipeline.Orchestrator

	closers []func() error
}

// Option adjusts the orchestrator Build creates.
type Option = pipeline.Option

// Build creates every component described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) (*App, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}

	backend, closeBackend, err := storage.New(cfg.Storage, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	a.Backend = backend
	a.closers = append(a.closers, closeBackend)

	tracker, err := state.Load(ctx, backend, state.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Tracker = tracker

	store, closeStore, err := cache.NewStore(cfg.Cache, backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	a.LLMCache, err = cache.New[domain.StructuredContent](ctx, cache.NameLLM, tracker, store,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load %s cache: %w", cache.NameLLM, err)
	}
	tracker.OnChange(rebindOnFingerprintChange(a.LLMCache, tracker.CurrentFingerprint()))

	engine, err := extract.NewEngine(cfg.Extraction.Engine)
	if err != nil {
		a.Close()
		return nil, domain.ConfigError("extraction engine", err)
	}
	extractor := extract.NewService(engine, logger)

	retrier := llm.NewRetrier(llm.RetryPolicy{
		MaxAttempts:    cfg.LLM.MaxAttempts,
		InitialBackoff: cfg.LLM.InitialBackoff,
		MaxBackoff:     cfg.LLM.MaxBackoff,
		Multiplier:     2,
	}, llm.RealSleeper, logger, metrics)

	var completer enrich.Completer
	if cfg.LLM.APIKey != "" {
		completer = llm.NewClient(llm.Config{
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
			Timeout:  cfg.LLM.RequestTimeout,
			JSONMode: true,
		})
	}
	enricher := enrich.NewService(completer, retrier,
		enrich.WithCache(a.LLMCache),
		enrich.WithLogger(logger),
		enrich.WithMetrics(metrics),
	)

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	}
	if cfg.History.Enabled {
		a.History, err = history.Open(cfg.History.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.closers = append(a.closers, a.History.Close)
		pipelineOpts = append(pipelineOpts, pipeline.WithHistory(a.History))
	}
	pipelineOpts = append(pipelineOpts, opts...)

	a.Orchestrator = pipeline.New(backend, tracker, extractor, enricher, pipelineOpts...)

	logger.Info().
		Str("storage", cfg.Storage.Mode).
		Str("cache", cfg.Cache.Driver).
		Str("engine", engine.Name()).
		Bool("llm", completer != nil).
		Bool("history", cfg.History.Enabled).
		Msg("Pipeline ready")
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// rebindOnFingerprintChange evicts cache entries bound to an old
// fingerprint as soon as the tracker moves to a new one.
func rebindOnFingerprintChange(c *cache.Dynamic[domain.StructuredContent], initial string) state.Listener {
	var (
		mu   sync.Mutex
		last = initial
	)
	return func(ctx context.Context, st domain.ContentState) error {
		mu.Lock()
		changed := st.Fingerprint != last
		last = st.Fingerprint
		mu.Unlock()
		if !changed {
			return nil
		}
		_, err := c.RefreshFingerprintBinding(ctx)
		return err
	}
}
