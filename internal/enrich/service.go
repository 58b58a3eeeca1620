// Package enrich turns extracted text into structured content, using a
// language model when one is configured and a pattern-based analyzer
// otherwise or when the model fails.
package enrich

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spherical/content-pipeline/internal/cache"
	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/llm"
	"github.com/spherical/content-pipeline/internal/observability"
)

// Completer is the part of llm.Client the service needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Service implements domain.Enricher.
type Service struct {
	llm     Completer
	retrier *llm.Retrier
	cache   *cache.Dynamic[domain.StructuredContent]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithCache memoizes successful model results.
func WithCache(c *cache.Dynamic[domain.StructuredContent]) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates an enrichment service. A nil completer means no API
// key is configured and every call goes straight to the heuristic analyzer.
func NewService(completer Completer, retrier *llm.Retrier, opts ...Option) *Service {
	s := &Service{
		llm:     completer,
		retrier: retrier,
		logger:  observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retrier == nil {
		s.retrier = llm.NewRetrier(llm.DefaultRetryPolicy(), nil, s.logger, s.metrics)
	}
	s.logger = s.logger.WithComponent("enrich")
	return s
}

// Enrich never fails for non-empty input: when the model cannot produce a
// valid result the heuristic analyzer's result is returned. Only context
// cancellation is reported as an error.
func (s *Service) Enrich(ctx context.Context, rawText string) (*domain.StructuredContent, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, domain.ValidationError("no text to enrich", nil)
	}

	if s.llm == nil {
		s.logger.Info().Msg("No API key configured, using heuristic analyzer")
		return Analyze(rawText), nil
	}

	var key string
	if s.cache != nil {
		key = s.cache.Key(rawText)
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.logger.Debug().Msg("Using cached analysis")
			return &cached, nil
		}
	}

	start := time.Now()
	var content *domain.StructuredContent
	attempts, err := s.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		reply, err := s.llm.Complete(ctx, llm.BuildAnalysisMessages(rawText))
		if err != nil {
			return err
		}
		analysis, err := llm.ParseAnalysis(reply)
		if err != nil {
			return err
		}
		content = fromAnalysis(analysis)
		return nil
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn().
			Err(err).
			Int("attempts", attempts).
			Bool("transient", domain.IsTransient(err)).
			Msg("Language model unavailable, falling back to heuristic analyzer")
		s.metrics.StageOutcome(string(domain.StageEnrich), "heuristic_fallback")
		return Analyze(rawText), nil
	}

	s.logger.Info().
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("Analysis complete")

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, *content); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache analysis")
		}
	}
	return content, nil
}

func fromAnalysis(a *llm.ResumeAnalysis) *domain.StructuredContent {
	out := &domain.StructuredContent{
		Name:       strings.TrimSpace(a.Name),
		Title:      strings.TrimSpace(a.Title),
		Summary:    strings.TrimSpace(a.Summary),
		Contacts:   []domain.Contact{},
		Skills:     []string{},
		Experience: make([]domain.Experience, 0, len(a.Experience)),
		Education:  make([]domain.Education, 0, len(a.Education)),
		Keywords:   a.Keywords,
		Source:     domain.SourceLLM,
	}

	for _, kind := range []string{"email", "phone", "location", "linkedin", "website", "github"} {
		if v := strings.TrimSpace(a.Contacts[kind]); v != "" {
			out.Contacts = append(out.Contacts, domain.Contact{Kind: kind, Value: v})
		}
	}

	groups := []string{"technical", "tools", "languages", "soft", "certifications"}
	known := map[string]bool{}
	for _, g := range groups {
		known[g] = true
	}
	var extra []string
	for g := range a.Skills {
		if !known[g] {
			extra = append(extra, g)
		}
	}
	sort.Strings(extra)

	seen := map[string]bool{}
	for _, group := range append(groups, extra...) {
		for _, skill := range a.Skills[group] {
			skill = strings.TrimSpace(skill)
			if skill == "" || seen[strings.ToLower(skill)] {
				continue
			}
			seen[strings.ToLower(skill)] = true
			out.Skills = append(out.Skills, skill)
		}
	}

	for _, e := range a.Experience {
		highlights := make([]string, 0, len(e.Responsibilities)+len(e.Achievements))
		highlights = append(highlights, e.Responsibilities...)
		highlights = append(highlights, e.Achievements...)
		out.Experience = append(out.Experience, domain.Experience{
			Company:    e.Company,
			Title:      e.Title,
			StartDate:  e.StartDate,
			EndDate:    e.EndDate,
			Highlights: highlights,
		})
	}

	for _, e := range a.Education {
		out.Education = append(out.Education, domain.Education{
			Institution:    e.Institution,
			Degree:         e.Degree,
			Field:          e.Field,
			GraduationYear: e.GraduationYear,
		})
	}
	return out
}
