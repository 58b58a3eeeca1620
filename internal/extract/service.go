// Package extract turns PDF bytes into normalized plain text.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/observability"
)

// Service runs the configured engine and normalizes its output.
type Service struct {
	engine Engine
	logger *observability.Logger
}

// NewService creates an extraction service around engine.
func NewService(engine Engine, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		engine: engine,
		logger: logger.WithComponent("extract"),
	}
}

// Extract implements domain.Extractor.
func (s *Service) Extract(ctx context.Context, pdf []byte) (*domain.ExtractionResult, error) {
	if err := ValidatePDF(pdf); err != nil {
		return nil, err
	}

	start := time.Now()
	pages, meta, err := s.runEngine(ctx, pdf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ExtractionError(fmt.Sprintf("%s engine failed", s.engine.Name()), err)
	}

	text := Normalize(strings.Join(pages, "\n\n"))
	if text == "" {
		return nil, domain.ExtractionError("document contains no extractable text", nil)
	}

	s.logger.Info().
		Str("engine", s.engine.Name()).
		Int("pages", len(pages)).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Extraction complete")

	return &domain.ExtractionResult{
		RawText:   text,
		PageCount: len(pages),
		Metadata:  meta,
	}, nil
}

// runEngine converts engine panics on malformed input into errors.
func (s *Service) runEngine(ctx context.Context, pdf []byte) (pages []string, meta domain.DocumentMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()
	return s.engine.Pages(ctx, pdf)
}
