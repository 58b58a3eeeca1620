package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/enrich"
	"github.com/spherical/content-pipeline/internal/fingerprint"
	"github.com/spherical/content-pipeline/internal/format"
	"github.com/spherical/content-pipeline/internal/history"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

var (
	bufferB1 = []byte("%PDF-1.4 resume one")
	bufferB2 = []byte("%PDF-1.4 resume two")
)

const resumeText = `Ada Lovelace
Senior Software Engineer
ada@example.com
Skills
Go, Python`

type countingExtractor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingExtractor) Extract(ctx context.Context, pdf []byte) (*domain.ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &domain.ExtractionResult{
		RawText:   resumeText + "\n" + string(pdf),
		PageCount: 1,
		Metadata:  domain.DocumentMetadata{Engine: "stub"},
	}, nil
}

type countingEnricher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEnricher) Enrich(ctx context.Context, rawText string) (*domain.StructuredContent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return enrich.Analyze(rawText), nil
}

type memoryRecorder struct {
	runs []history.RunRecord
}

func (m *memoryRecorder) Record(ctx context.Context, rec history.RunRecord) error {
	m.runs = append(m.runs, rec)
	return nil
}

type fixture struct {
	backend   *storage.LocalBackend
	tracker   *state.Tracker
	extractor *countingExtractor
	enricher  *countingEnricher
	recorder  *memoryRecorder
	events    []domain.StreamEvent
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	tracker, err := state.Load(ctx, backend)
	require.NoError(t, err)

	fx := &fixture{
		backend:   backend,
		tracker:   tracker,
		extractor: &countingExtractor{},
		enricher:  &countingEnricher{},
		recorder:  &memoryRecorder{},
	}
	fx.orch = New(backend, tracker, fx.extractor, fx.enricher,
		WithHistory(fx.recorder),
		WithEventHandler(func(e domain.StreamEvent) { fx.events = append(fx.events, e) }),
	)
	return fx
}

func TestRun_B1B1B2Sequence(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	f1 := fingerprint.Of(bufferB1).String()
	f2 := fingerprint.Of(bufferB2).String()

	first := fx.orch.Run(ctx, Request{Source: bufferB1})
	require.Nil(t, first.Failure)
	assert.Equal(t, f1, first.Fingerprint)
	assert.Equal(t, []State{StateStart, StateFingerprinted, StateExtracted, StateEnriched, StateFormatted, StateDone}, first.Path())
	assert.Equal(t, 1, fx.extractor.calls)
	assert.Equal(t, 1, fx.enricher.calls)
	assert.False(t, first.Stale)

	st := fx.tracker.GetState()
	assert.Equal(t, f1, st.Fingerprint)
	assert.True(t, st.IsExtracted)
	assert.True(t, st.IsEnriched)
	assert.True(t, st.IsFormatted)
	assert.Equal(t, domain.ProcessingFormatted, st.ProcessingStage)
	assert.False(t, st.FormatVersions.Markdown.IsZero())
	assert.False(t, st.FormatVersions.Docx.IsZero())

	second := fx.orch.Run(ctx, Request{Source: bufferB1})
	require.Nil(t, second.Failure)
	assert.Equal(t, []State{StateStart, StateFingerprinted, StateExtractSkipped, StateEnrichSkipped, StateFormatted, StateDone}, second.Path())
	assert.Equal(t, 1, fx.extractor.calls)
	assert.Equal(t, 1, fx.enricher.calls)
	assert.Equal(t, OutcomeSkipped, second.Stages[domain.StageExtract])
	require.NotNil(t, second.Content)
	assert.Equal(t, first.Content.Name, second.Content.Name)
	assert.Equal(t, first.Content.Skills, second.Content.Skills)
	assert.NotEqual(t, first.RunID, second.RunID)

	third := fx.orch.Run(ctx, Request{Source: bufferB2})
	require.Nil(t, third.Failure)
	assert.Equal(t, f2, third.Fingerprint)
	assert.Equal(t, StateExtracted, third.Path()[2])
	assert.Equal(t, StateEnriched, third.Path()[3])
	assert.Equal(t, 2, fx.extractor.calls)
	assert.Equal(t, 2, fx.enricher.calls)
	assert.Equal(t, f2, fx.tracker.GetState().Fingerprint)
	assert.False(t, fx.tracker.IsStale(f2))
	assert.True(t, fx.tracker.IsStale(f1))

	require.Len(t, fx.recorder.runs, 3)
	assert.Equal(t, history.StatusSucceeded, fx.recorder.runs[1].Status)
	assert.Equal(t, []string{"extract", "enrich"}, fx.recorder.runs[1].StagesSkipped)
}

func TestRun_StoredOutputsLayout(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	res := fx.orch.Run(ctx, Request{Source: bufferB1})
	require.True(t, res.Succeeded())
	f := res.Fingerprint

	for _, key := range []string{
		"source-pdf/" + f + "/source.pdf",
		"extracted-text/" + f + "/extraction.json",
		"enriched-json/" + f + "/enriched.json",
		"formatted-output/" + f + "/resume.md",
		"formatted-output/" + f + "/resume.txt",
		"formatted-output/" + f + "/cover_letter.md",
		"formatted-output/" + f + "/resume.docx",
		"formatted-output/" + f + "/build_info.json",
		state.DefaultKey,
	} {
		got, err := fx.backend.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.Exists, key)
	}

	info, err := storage.DownloadJSON[BuildInfo](ctx, fx.backend, "formatted-output/"+f+"/build_info.json")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, info.RunID)
	assert.Equal(t, domain.SourceHeuristic, info.EnrichmentSource)
	assert.Equal(t, OutcomeRan, info.Stages[domain.StageExtract])
}

func TestRun_StorageWrittenBeforeTrackerFlags(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	var violations []string
	fx.tracker.OnChange(func(ctx context.Context, st domain.ContentState) error {
		check := func(flag bool, key string) {
			if !flag {
				return
			}
			res, err := fx.backend.Exists(ctx, key)
			if err != nil || !res.Exists {
				violations = append(violations, key)
			}
		}
		check(st.IsExtracted, storage.Key(storage.CategoryExtractedText, st.Fingerprint, ExtractionFile))
		check(st.IsEnriched, storage.Key(storage.CategoryEnrichedJSON, st.Fingerprint, EnrichedFile))
		check(st.IsFormatted, storage.Key(storage.CategoryFormattedOutput, st.Fingerprint, "resume.md"))
		return nil
	})

	require.True(t, fx.orch.Run(ctx, Request{Source: bufferB1}).Succeeded())
	assert.Empty(t, violations)
}

func TestRun_ForceRefreshRerunsStages(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.True(t, fx.orch.Run(ctx, Request{Source: bufferB1}).Succeeded())
	res := fx.orch.Run(ctx, Request{Source: bufferB1, ForceRefresh: true})

	require.True(t, res.Succeeded())
	assert.Equal(t, 2, fx.extractor.calls)
	assert.Equal(t, 2, fx.enricher.calls)
}

func TestRun_ExtractionFailureFallsBackToStoredOutput(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.True(t, fx.orch.Run(ctx, Request{Source: bufferB1}).Succeeded())

	fx.extractor.err = domain.ExtractionError("parser crashed", nil)
	res := fx.orch.Run(ctx, Request{Source: bufferB1, ForceRefresh: true})

	require.Nil(t, res.Failure)
	assert.True(t, res.Stale)
	assert.Equal(t, OutcomeFallback, res.Stages[domain.StageExtract])
	assert.Equal(t, StateExtractSkipped, res.Path()[2])
	assert.Equal(t, StateDone, res.State())
	require.NotNil(t, res.Extraction)
	assert.Contains(t, res.Extraction.RawText, "Ada Lovelace")

	last := fx.recorder.runs[len(fx.recorder.runs)-1]
	assert.Equal(t, history.StatusDegraded, last.Status)

	var sawFallback bool
	for _, e := range fx.events {
		if e.Type == domain.EventFallback && e.Stage == domain.StageExtract {
			sawFallback = true
		}
	}
	assert.True(t, sawFallback)
}

func TestRun_ExtractionFailureWithoutStoredOutput(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.extractor.err = domain.ExtractionError("no text layer", nil)

	res := fx.orch.Run(ctx, Request{Source: bufferB1})

	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.StageExtract, res.Failure.Stage)
	assert.False(t, res.Failure.Recoverable)
	assert.Contains(t, res.Failure.Message, "no text layer")
	assert.Equal(t, []State{StateStart, StateFingerprinted, StateError}, res.Path())
	assert.Equal(t, 0, fx.enricher.calls)

	st := fx.tracker.GetState()
	assert.Equal(t, res.Fingerprint, st.Fingerprint)
	assert.False(t, st.IsExtracted)

	require.Len(t, fx.recorder.runs, 1)
	assert.Equal(t, history.StatusFailed, fx.recorder.runs[0].Status)
	assert.Equal(t, "extract", fx.recorder.runs[0].FailedStage)
}

func TestRun_EnrichmentFailureFallsBackToStoredOutput(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.True(t, fx.orch.Run(ctx, Request{Source: bufferB1}).Succeeded())

	fx.enricher.err = domain.ValidationError("no text to enrich", nil)
	res := fx.orch.Run(ctx, Request{Source: bufferB1, ForceRefresh: true})

	require.Nil(t, res.Failure)
	assert.True(t, res.Stale)
	assert.Equal(t, OutcomeFallback, res.Stages[domain.StageEnrich])
	require.NotNil(t, res.Content)
	assert.Equal(t, "Ada Lovelace", res.Content.Name)
}

func TestRun_SourceErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.pdf")},
		{"empty path", ""},
		{"not a pdf", filepath.Join(t.TempDir(), "notes.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			res := fx.orch.Run(context.Background(), Request{SourcePath: tt.path})

			require.NotNil(t, res.Failure)
			assert.Equal(t, domain.StageFingerprint, res.Failure.Stage)
			assert.False(t, res.Failure.Recoverable)
			assert.Equal(t, []State{StateStart, StateError}, res.Path())
			assert.Equal(t, 0, fx.extractor.calls)
			assert.Equal(t, domain.EventError, fx.events[len(fx.events)-1].Type)
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fx.extractor.err = context.Canceled

	res := fx.orch.Run(ctx, Request{Source: bufferB1})

	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.StageExtract, res.Failure.Stage)
	assert.True(t, res.Failure.Recoverable)
}

func TestRun_Events(t *testing.T) {
	fx := newFixture(t)
	require.True(t, fx.orch.Run(context.Background(), Request{Source: bufferB1}).Succeeded())

	require.NotEmpty(t, fx.events)
	assert.Equal(t, domain.EventStart, fx.events[0].Type)
	assert.Equal(t, domain.EventComplete, fx.events[len(fx.events)-1].Type)
}

func TestArtifact(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.orch.Artifact(ctx, "", "markdown")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	res := fx.orch.Run(ctx, Request{Source: bufferB1})
	require.True(t, res.Succeeded())

	tests := []struct {
		kind        string
		contentType string
		contains    string
	}{
		{"markdown", "text/markdown; charset=utf-8", "# Ada Lovelace"},
		{"text", "text/plain; charset=utf-8", "ADA LOVELACE"},
		{"cover-letter", "text/markdown; charset=utf-8", "Dear Hiring Manager"},
		{"json", "application/json", `"name": "Ada Lovelace"`},
		{"docx", format.DocxContentType, "word/document.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			a, err := fx.orch.Artifact(ctx, "", tt.kind)
			require.NoError(t, err)
			assert.Equal(t, res.Fingerprint, a.Fingerprint)
			assert.Equal(t, tt.contentType, a.ContentType)
			assert.True(t, strings.Contains(string(a.Data), tt.contains), string(a.Data))
		})
	}

	_, err = fx.orch.Artifact(ctx, "not-a-fingerprint", "markdown")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	_, err = fx.orch.Artifact(ctx, res.Fingerprint, "pdf")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

// overlappingExtractor starts a run over bufferB2 while extracting
// bufferB1, and fails to extract bufferB2.
type overlappingExtractor struct {
	orch  *Orchestrator
	inner *Result
}

func (e *overlappingExtractor) Extract(ctx context.Context, pdf []byte) (*domain.ExtractionResult, error) {
	if string(pdf) != string(bufferB1) {
		return nil, domain.ExtractionError("unreadable", nil)
	}
	e.inner = e.orch.Run(ctx, Request{Source: bufferB2})
	return &domain.ExtractionResult{RawText: resumeText, PageCount: 1, Metadata: domain.DocumentMetadata{Engine: "stub"}}, nil
}

func TestRun_OverlappingRunDoesNotMarkNewerContentDone(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	ex := &overlappingExtractor{}
	orch := New(fx.backend, fx.tracker, ex, fx.enricher)
	ex.orch = orch
	f2 := fingerprint.Of(bufferB2).String()

	outer := orch.Run(ctx, Request{Source: bufferB1})
	require.Nil(t, outer.Failure)
	require.NotNil(t, ex.inner)
	require.NotNil(t, ex.inner.Failure)
	assert.Equal(t, domain.StageExtract, ex.inner.Failure.Stage)

	st := fx.tracker.GetState()
	assert.Equal(t, f2, st.Fingerprint)
	assert.False(t, st.IsExtracted)
	assert.False(t, st.IsEnriched)
	assert.False(t, st.IsFormatted)
	assert.True(t, fx.tracker.IsStale(f2))

	exists, err := fx.backend.Exists(ctx, storage.Key(storage.CategoryExtractedText, f2, ExtractionFile))
	require.NoError(t, err)
	assert.False(t, exists.Exists)
}
