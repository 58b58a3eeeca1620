package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spherical/content-pipeline/internal/cache"
	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/enrich"
	"github.com/spherical/content-pipeline/internal/fingerprint"
	"github.com/spherical/content-pipeline/internal/llm"
	"github.com/spherical/content-pipeline/internal/pipeline"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

type suite struct {
	desc string
	run  func(ctx context.Context, dir string) error
}

var suites = map[string]suite{
	"fingerprint": {"identical bytes share a fingerprint, different bytes do not", fingerprintSuite},
	"staleness":   {"tracker reports staleness and persists across reloads", stalenessSuite},
	"cache":       {"cache entries are evicted when the fingerprint changes", cacheSuite},
	"retry":       {"transient failures back off exponentially", retrySuite},
	"skip":        {"a second run over the same PDF recomputes nothing", skipSuite},
	"fallback":    {"a failed stage falls back to stored output", fallbackSuite},
}

const sampleText = "Ada Lovelace\nAnalyst\nada@example.com\nSkills\nMathematics, Engines"

var (
	samplePDF  = []byte("%PDF-1.4 ada")
	changedPDF = []byte("%PDF-1.4 ada revised")
)

func scratch(dir, name string) string {
	return filepath.Join(dir, name)
}

func check(ok bool, format string, args ...interface{}) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}

func fingerprintSuite(ctx context.Context, dir string) error {
	a, b := fingerprint.Of(samplePDF), fingerprint.Of(append([]byte(nil), samplePDF...))
	if err := check(a == b, "same bytes gave %s and %s", a.Short(), b.Short()); err != nil {
		return err
	}
	if err := check(a != fingerprint.Of(changedPDF), "changed bytes kept fingerprint %s", a.Short()); err != nil {
		return err
	}
	if err := check(a.Valid(), "fingerprint %q is not valid", a); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "sample.pdf")
	if err := os.WriteFile(path, samplePDF, 0o644); err != nil {
		return err
	}
	fromFile, err := fingerprint.FromFile(path)
	if err != nil {
		return err
	}
	return check(fromFile == a, "file fingerprint %s differs from bytes %s", fromFile.Short(), a.Short())
}

func stalenessSuite(ctx context.Context, dir string) error {
	backend, err := storage.NewLocalBackend(dir)
	if err != nil {
		return err
	}
	tracker, err := state.Load(ctx, backend)
	if err != nil {
		return err
	}

	f := fingerprint.Of(samplePDF).String()
	if err := check(tracker.IsStale(f), "empty state reported fresh"); err != nil {
		return err
	}
	if err := tracker.UpdateState(ctx, state.Update{Fingerprint: state.Ptr(f), IsExtracted: state.Ptr(true)}); err != nil {
		return err
	}
	if err := check(tracker.IsStale(f), "extracted but unenriched content reported fresh"); err != nil {
		return err
	}
	if err := tracker.UpdateState(ctx, state.Update{IsEnriched: state.Ptr(true)}); err != nil {
		return err
	}
	if err := check(!tracker.IsStale(f), "stored fingerprint reported stale"); err != nil {
		return err
	}

	reloaded, err := state.Load(ctx, backend)
	if err != nil {
		return err
	}
	st := reloaded.GetState()
	if err := check(st.Fingerprint == f && st.IsExtracted && st.IsEnriched, "state not persisted: %+v", st); err != nil {
		return err
	}
	fresh := reloaded.CheckFreshness(fingerprint.Of(changedPDF).String())
	return check(fresh.IsStale && fresh.Reason == state.ReasonChanged, "changed content reported %+v", fresh)
}

func cacheSuite(ctx context.Context, dir string) error {
	current := "f1"
	c, err := cache.New[domain.StructuredContent](ctx, "suite", cache.FingerprintFunc(func() string { return current }), cache.NewMemoryStore())
	if err != nil {
		return err
	}

	key := c.Key(sampleText)
	if err := c.Set(ctx, key, *enrich.Analyze(sampleText)); err != nil {
		return err
	}
	got, ok := c.Get(ctx, key)
	if err := check(ok && got.Name == "Ada Lovelace", "cached value missing or wrong: %q", got.Name); err != nil {
		return err
	}

	current = "f2"
	if _, ok := c.Get(ctx, key); ok {
		return errors.New("entry bound to an old fingerprint was served")
	}
	if _, err := c.RefreshFingerprintBinding(ctx); err != nil {
		return err
	}
	return check(c.Len() == 0, "%d entries survived a fingerprint change", c.Len())
}

func retrySuite(ctx context.Context, dir string) error {
	var waits []time.Duration
	sleeper := llm.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	})
	r := llm.NewRetrier(llm.RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2,
	}, sleeper, nil, nil)

	attempts, err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return domain.EnrichmentTransientError("rate limited", nil)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := check(attempts == 3, "expected 3 attempts, made %d", attempts); err != nil {
		return err
	}
	if err := check(len(waits) == 2 && waits[0] == time.Second && waits[1] == 2*time.Second, "unexpected backoff %v", waits); err != nil {
		return err
	}

	attempts, err = r.Do(ctx, func(ctx context.Context, attempt int) error {
		return domain.EnrichmentPermanentError("bad request", nil)
	})
	return check(err != nil && attempts == 1, "permanent error retried %d times", attempts)
}

type suiteExtractor struct {
	calls int
	err   error
}

func (e *suiteExtractor) Extract(ctx context.Context, pdf []byte) (*domain.ExtractionResult, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &domain.ExtractionResult{RawText: sampleText, PageCount: 1, Metadata: domain.DocumentMetadata{Engine: "suite"}}, nil
}

type suiteEnricher struct{ calls int }

func (e *suiteEnricher) Enrich(ctx context.Context, rawText string) (*domain.StructuredContent, error) {
	e.calls++
	return enrich.Analyze(rawText), nil
}

func newOrchestrator(ctx context.Context, dir string, ex *suiteExtractor, en *suiteEnricher) (*pipeline.Orchestrator, error) {
	backend, err := storage.NewLocalBackend(dir)
	if err != nil {
		return nil, err
	}
	tracker, err := state.Load(ctx, backend)
	if err != nil {
		return nil, err
	}
	return pipeline.New(backend, tracker, ex, en), nil
}

func skipSuite(ctx context.Context, dir string) error {
	ex, en := &suiteExtractor{}, &suiteEnricher{}
	orch, err := newOrchestrator(ctx, dir, ex, en)
	if err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		res := orch.Run(ctx, pipeline.Request{Source: samplePDF})
		if !res.Succeeded() {
			return fmt.Errorf("run %d failed: %s", i+1, failureMessage(res))
		}
	}
	if err := check(ex.calls == 1 && en.calls == 1, "extract ran %d times, enrich ran %d times", ex.calls, en.calls); err != nil {
		return err
	}

	res := orch.Run(ctx, pipeline.Request{Source: changedPDF})
	if !res.Succeeded() {
		return fmt.Errorf("changed run failed: %s", failureMessage(res))
	}
	return check(ex.calls == 2 && en.calls == 2, "changed PDF did not rerun stages")
}

func fallbackSuite(ctx context.Context, dir string) error {
	ex, en := &suiteExtractor{}, &suiteEnricher{}
	orch, err := newOrchestrator(ctx, dir, ex, en)
	if err != nil {
		return err
	}
	if res := orch.Run(ctx, pipeline.Request{Source: samplePDF}); !res.Succeeded() {
		return fmt.Errorf("first run failed: %s", failureMessage(res))
	}

	ex.err = domain.ExtractionError("engine crashed", nil)
	res := orch.Run(ctx, pipeline.Request{Source: samplePDF, ForceRefresh: true})
	if !res.Succeeded() {
		return fmt.Errorf("forced run failed: %s", failureMessage(res))
	}
	if err := check(res.Stale, "fallback result not marked stale"); err != nil {
		return err
	}
	return check(res.Stages[domain.StageExtract] == pipeline.OutcomeFallback,
		"extract outcome %q, want %q", res.Stages[domain.StageExtract], pipeline.OutcomeFallback)
}

func failureMessage(res *pipeline.Result) string {
	if res.Failure == nil {
		return "ended in state " + string(res.State())
	}
	return res.Failure.Message
}
