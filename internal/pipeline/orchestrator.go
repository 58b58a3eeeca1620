// Package pipeline runs a source document through fingerprinting,
// extraction, enrichment and formatting, skipping stages whose output is
// already stored for the current fingerprint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/extract"
	"github.com/spherical/content-pipeline/internal/fingerprint"
	"github.com/spherical/content-pipeline/internal/format"
	"github.com/spherical/content-pipeline/internal/history"
	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

// Stage output file names
const (
	SourceFile     = "source.pdf"
	ExtractionFile = "extraction.json"
	EnrichedFile   = "enriched.json"
	BuildInfoFile  = "build_info.json"
)

// Orchestrator drives runs. It is safe for concurrent use by distinct
// requests.
type Orchestrator struct {
	backend   storage.Backend
	tracker   *state.Tracker
	extractor domain.Extractor
	enricher  domain.Enricher
	recorder  history.Recorder
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newRunID  func() string
	onEvent   func(domain.StreamEvent)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory records every run.
func WithHistory(r history.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithLogger(logger *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// WithEventHandler receives progress events synchronously during a run.
func WithEventHandler(fn func(domain.StreamEvent)) Option {
	return func(o *Orchestrator) { o.onEvent = fn }
}

// New creates an orchestrator.
func New(backend storage.Backend, tracker *state.Tracker, extractor domain.Extractor, enricher domain.Enricher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		tracker:   tracker,
		extractor: extractor,
		enricher:  enricher,
		logger:    observability.Nop(),
		now:       time.Now,
		newRunID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("pipeline")
	return o
}

// Tracker returns the state tracker the orchestrator updates.
func (o *Orchestrator) Tracker() *state.Tracker {
	return o.tracker
}

// run carries the mutable state of one Run call.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	logger *observability.Logger
	req    Request
	res    *Result
	source domain.Source
}

// Run processes req. It never returns an error: failures end the state
// machine in ERROR and are described by Result.Failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	runID := o.newRunID()
	ctx = observability.ContextWithRunID(ctx, runID)

	r := &run{
		o:      o,
		ctx:    ctx,
		logger: o.logger.WithContext(ctx),
		req:    req,
		res: &Result{
			RunID:     runID,
			Stages:    map[domain.Stage]string{},
			Artifacts: map[string]string{},
			StartedAt: o.now().UTC(),
		},
	}

	r.emit(domain.EventStart, "", map[string]interface{}{"runId": runID, "sourcePath": req.SourcePath})
	r.logger.Info().Str("source", req.SourcePath).Bool("force", req.ForceRefresh).Msg("Run started")

	r.execute()

	r.res.FinishedAt = o.now().UTC()
	duration := r.res.FinishedAt.Sub(r.res.StartedAt)
	o.metrics.ObserveRun(duration.Seconds())
	r.record(duration)

	if r.res.Failure != nil {
		r.logger.Error().
			Str("stage", string(r.res.Failure.Stage)).
			Bool("recoverable", r.res.Failure.Recoverable).
			Str("error", r.res.Failure.Message).
			Msg("Run failed")
	} else {
		r.emit(domain.EventComplete, "", r.res.Artifacts)
		r.logger.Info().
			Str("fingerprint", fingerprint.Fingerprint(r.res.Fingerprint).Short()).
			Bool("stale", r.res.Stale).
			Dur("duration", duration).
			Msg("Run complete")
	}
	return r.res
}

func (r *run) execute() {
	if !r.fingerprintSource() {
		return
	}
	extraction, ok := r.extractStage()
	if !ok {
		return
	}
	content, ok := r.enrichStage(extraction)
	if !ok {
		return
	}
	if !r.formatStage(content) {
		return
	}
	r.transition(StateDone)
}

func (r *run) fingerprintSource() bool {
	src, err := r.readSource()
	if err != nil {
		return r.fail(domain.StageFingerprint, err)
	}
	r.source = src

	f := fingerprint.Of(src.Data).String()
	r.res.Fingerprint = f

	key := storage.Key(storage.CategorySourcePDF, f, SourceFile)
	if exists, _ := r.exists(key); !exists {
		meta := map[string]string{"fingerprint": f}
		if src.Path != "" {
			meta["sourcePath"] = src.Path
		}
		if _, err := r.o.backend.Upload(r.ctx, src.Data, key, "application/pdf", meta); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("Failed to store source copy")
		}
	}

	previous := r.o.tracker.CurrentFingerprint()
	u := state.Update{
		Fingerprint:      state.Ptr(f),
		SourcePath:       state.Ptr(src.Path),
		SourceSize:       state.Ptr(src.Size),
		SourceModifiedAt: state.Ptr(src.ModifiedAt),
	}
	if previous != f {
		r.logger.Info().Str("previous", fingerprint.Fingerprint(previous).Short()).Msg("Source content changed")
		u.IsExtracted = state.Ptr(false)
		u.IsEnriched = state.Ptr(false)
		u.IsFormatted = state.Ptr(false)
		u.ProcessingStage = state.Ptr(domain.ProcessingNone)
	}
	r.updateTracker(u)

	r.res.Stages[domain.StageFingerprint] = OutcomeRan
	r.o.metrics.StageOutcome(string(domain.StageFingerprint), OutcomeRan)
	r.transition(StateFingerprinted)
	r.emit(domain.EventStageComplete, domain.StageFingerprint, map[string]string{"fingerprint": f})
	return true
}

func (r *run) readSource() (domain.Source, error) {
	if r.req.Source != nil {
		return domain.Source{
			Path:       r.req.SourcePath,
			Data:       r.req.Source,
			Size:       int64(len(r.req.Source)),
			ModifiedAt: r.o.now().UTC(),
		}, nil
	}

	info, err := extract.ValidateSourcePath(r.req.SourcePath)
	if err != nil {
		return domain.Source{}, err
	}
	data, err := os.ReadFile(r.req.SourcePath)
	if err != nil {
		return domain.Source{}, domain.FatalSourceError("cannot read source PDF", err)
	}
	return domain.Source{
		Path:       r.req.SourcePath,
		Data:       data,
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

func (r *run) extractStage() (*domain.ExtractionResult, bool) {
	f := r.res.Fingerprint
	key := storage.Key(storage.CategoryExtractedText, f, ExtractionFile)
	st := r.o.tracker.GetState()

	exists, _ := r.exists(key)
	if !r.req.ForceRefresh && exists && st.IsExtracted && st.Fingerprint == f {
		stored, err := storage.DownloadJSON[domain.ExtractionResult](r.ctx, r.o.backend, key)
		if err == nil {
			r.res.Extraction = &stored
			r.skipped(domain.StageExtract, StateExtractSkipped)
			return &stored, true
		}
		r.logger.Warn().Err(err).Msg("Stored extraction unreadable, extracting again")
	}

	result, err := r.o.extractor.Extract(r.ctx, r.source.Data)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, r.fail(domain.StageExtract, r.ctx.Err())
		}
		if exists {
			stored, dlErr := storage.DownloadJSON[domain.ExtractionResult](r.ctx, r.o.backend, key)
			if dlErr == nil {
				r.fellBack(domain.StageExtract, StateExtractSkipped, err)
				r.res.Extraction = &stored
				return &stored, true
			}
		}
		return nil, r.fail(domain.StageExtract, err)
	}

	meta := map[string]string{"fingerprint": f, "engine": result.Metadata.Engine}
	if _, err := storage.UploadJSON(r.ctx, r.o.backend, key, result, meta); err != nil {
		return nil, r.fail(domain.StageExtract, err)
	}
	r.markStage(state.Update{
		IsExtracted:     state.Ptr(true),
		ProcessingStage: state.Ptr(domain.ProcessingExtracted),
	})

	r.res.Extraction = result
	r.ran(domain.StageExtract, StateExtracted)
	return result, true
}

func (r *run) enrichStage(extraction *domain.ExtractionResult) (*domain.StructuredContent, bool) {
	f := r.res.Fingerprint
	key := storage.Key(storage.CategoryEnrichedJSON, f, EnrichedFile)
	st := r.o.tracker.GetState()

	exists, _ := r.exists(key)
	if !r.req.ForceRefresh && exists && st.IsEnriched && st.Fingerprint == f {
		stored, err := storage.DownloadJSON[domain.StructuredContent](r.ctx, r.o.backend, key)
		if err == nil {
			r.res.Content = &stored
			r.skipped(domain.StageEnrich, StateEnrichSkipped)
			return &stored, true
		}
		r.logger.Warn().Err(err).Msg("Stored enrichment unreadable, enriching again")
	}

	content, err := r.o.enricher.Enrich(r.ctx, extraction.RawText)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, r.fail(domain.StageEnrich, r.ctx.Err())
		}
		if exists {
			stored, dlErr := storage.DownloadJSON[domain.StructuredContent](r.ctx, r.o.backend, key)
			if dlErr == nil {
				r.fellBack(domain.StageEnrich, StateEnrichSkipped, err)
				r.res.Content = &stored
				return &stored, true
			}
		}
		return nil, r.fail(domain.StageEnrich, err)
	}

	meta := map[string]string{"fingerprint": f, "source": content.Source}
	if _, err := storage.UploadJSON(r.ctx, r.o.backend, key, content, meta); err != nil {
		return nil, r.fail(domain.StageEnrich, err)
	}
	r.markStage(state.Update{
		IsEnriched:      state.Ptr(true),
		ProcessingStage: state.Ptr(domain.ProcessingEnriched),
	})

	r.res.Content = content
	r.ran(domain.StageEnrich, StateEnriched)
	return content, true
}

func (r *run) formatStage(content *domain.StructuredContent) bool {
	f := r.res.Fingerprint

	if err := r.writeArtifacts(content); err != nil {
		mdKey := storage.Key(storage.CategoryFormattedOutput, f, format.KindMarkdown.FileName())
		if exists, _ := r.exists(mdKey); exists && r.ctx.Err() == nil {
			for _, k := range format.Kinds {
				r.res.Artifacts[string(k)] = storage.Key(storage.CategoryFormattedOutput, f, k.FileName())
			}
			r.fellBack(domain.StageFormat, StateFormatted, err)
			return true
		}
		return r.fail(domain.StageFormat, err)
	}

	now := r.o.now().UTC()
	versions := domain.FormatVersions{Markdown: now, Text: now, CoverLetter: now, Docx: now}

	info := BuildInfo{
		Fingerprint:      f,
		RunID:            r.res.RunID,
		StartedAt:        r.res.StartedAt,
		FinishedAt:       now,
		Stages:           r.stagesWith(domain.StageFormat, OutcomeRan),
		EnrichmentSource: content.Source,
		Stale:            r.res.Stale,
		FormatVersions:   versions,
	}
	infoKey := storage.Key(storage.CategoryFormattedOutput, f, BuildInfoFile)
	if _, err := storage.UploadJSON(r.ctx, r.o.backend, infoKey, info, map[string]string{"fingerprint": f}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to write build info")
	} else {
		r.res.Artifacts["build-info"] = infoKey
	}

	r.markStage(state.Update{
		IsFormatted:     state.Ptr(true),
		ProcessingStage: state.Ptr(domain.ProcessingFormatted),
		FormatVersions:  &versions,
	})

	r.ran(domain.StageFormat, StateFormatted)
	return true
}

func (r *run) writeArtifacts(content *domain.StructuredContent) error {
	rendered, err := format.RenderAll(content)
	if err != nil {
		return err
	}
	for _, k := range format.Kinds {
		key := storage.Key(storage.CategoryFormattedOutput, r.res.Fingerprint, k.FileName())
		meta := map[string]string{"fingerprint": r.res.Fingerprint, "format": string(k)}
		if _, err := r.o.backend.Upload(r.ctx, []byte(rendered[k]), key, k.ContentType(), meta); err != nil {
			return err
		}
		r.res.Artifacts[string(k)] = key
	}
	return nil
}

func (r *run) stagesWith(stage domain.Stage, outcome string) map[domain.Stage]string {
	out := make(map[domain.Stage]string, len(r.res.Stages)+1)
	for k, v := range r.res.Stages {
		out[k] = v
	}
	out[stage] = outcome
	return out
}

// exists re-checks storage on every call. Errors count as absent.
func (r *run) exists(key string) (bool, error) {
	res, err := r.o.backend.Exists(r.ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Existence check failed")
		return false, err
	}
	return res.Exists, nil
}

func (r *run) updateTracker(u state.Update) {
	if err := r.o.tracker.UpdateState(r.ctx, u); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to update content state")
	}
}

// markStage records stage completion only while the tracker still follows
// this run's fingerprint. A newer run over different content owns the
// flags once it has replaced the fingerprint.
func (r *run) markStage(u state.Update) {
	applied, err := r.o.tracker.UpdateStateIf(r.ctx, r.res.Fingerprint, u)
	switch {
	case err != nil:
		r.logger.Warn().Err(err).Msg("Failed to update content state")
	case !applied:
		r.logger.Info().
			Str("tracked", fingerprint.Fingerprint(r.o.tracker.CurrentFingerprint()).Short()).
			Msg("Source replaced by a newer run, leaving content state untouched")
	}
}

func (r *run) transition(to State) {
	r.res.Transitions = append(r.res.Transitions, Transition{
		From: r.res.State(),
		To:   to,
		At:   r.o.now().UTC(),
	})
}

func (r *run) ran(stage domain.Stage, to State) {
	r.res.Stages[stage] = OutcomeRan
	r.o.metrics.StageOutcome(string(stage), OutcomeRan)
	r.transition(to)
	r.emit(domain.EventStageComplete, stage, nil)
	r.logger.Info().Str("stage", string(stage)).Msg("Stage complete")
}

func (r *run) skipped(stage domain.Stage, to State) {
	r.res.Stages[stage] = OutcomeSkipped
	r.o.metrics.StageOutcome(string(stage), OutcomeSkipped)
	r.transition(to)
	r.emit(domain.EventStageSkipped, stage, nil)
	r.logger.Info().Str("stage", string(stage)).Msg("Stored output is current, stage skipped")
}

func (r *run) fellBack(stage domain.Stage, to State, cause error) {
	r.res.Stale = true
	r.res.Stages[stage] = OutcomeFallback
	r.o.metrics.StageOutcome(string(stage), OutcomeFallback)
	r.transition(to)
	r.emit(domain.EventFallback, stage, cause.Error())
	r.logger.Warn().Err(cause).Str("stage", string(stage)).Msg("Stage failed, serving stored output")
}

// fail ends the run in ERROR. It always returns false so stage methods can
// return its result directly.
func (r *run) fail(stage domain.Stage, err error) bool {
	r.res.Failure = &Failure{
		Stage:       stage,
		Message:     err.Error(),
		Recoverable: recoverable(err),
	}
	r.res.Stages[stage] = OutcomeFailed
	r.o.metrics.StageOutcome(string(stage), OutcomeFailed)
	r.transition(StateError)
	r.emit(domain.EventError, stage, r.res.Failure)
	return false
}

// recoverable reports whether retrying the same request could succeed.
func recoverable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case domain.IsTransient(err), domain.IsType(err, domain.ErrorTypeStorage):
		return true
	default:
		return false
	}
}

func (r *run) emit(t domain.EventType, stage domain.Stage, payload interface{}) {
	if r.o.onEvent == nil {
		return
	}
	r.o.onEvent(domain.StreamEvent{
		Type:      t,
		Stage:     stage,
		Payload:   payload,
		Timestamp: r.o.now().UTC(),
	})
}

func (r *run) record(duration time.Duration) {
	if r.o.recorder == nil {
		return
	}
	rec := history.RunRecord{
		RunID:         r.res.RunID,
		Fingerprint:   r.res.Fingerprint,
		SourcePath:    r.req.SourcePath,
		StartedAt:     r.res.StartedAt,
		Duration:      duration,
		Status:        history.StatusSucceeded,
		StagesRun:     []string{},
		StagesSkipped: []string{},
		Stale:         r.res.Stale,
	}
	for _, s := range []domain.Stage{domain.StageFingerprint, domain.StageExtract, domain.StageEnrich, domain.StageFormat} {
		switch r.res.Stages[s] {
		case OutcomeRan:
			rec.StagesRun = append(rec.StagesRun, string(s))
		case OutcomeSkipped, OutcomeFallback:
			rec.StagesSkipped = append(rec.StagesSkipped, string(s))
		}
	}
	switch {
	case r.res.Failure != nil:
		rec.Status = history.StatusFailed
		rec.FailedStage = string(r.res.Failure.Stage)
		rec.Message = r.res.Failure.Message
		rec.Recoverable = r.res.Failure.Recoverable
	case r.res.Stale:
		rec.Status = history.StatusDegraded
	}

	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := r.o.recorder.Record(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record run history")
	}
}

// Artifact is a stored output ready to serve.
type Artifact struct {
	Key         string
	Fingerprint string
	ContentType string
	Data        []byte
}

// Artifact returns a stored output for fingerprint f, or for the tracked
// fingerprint when f is empty. kind is a format kind or "json" for the
// enriched content.
func (o *Orchestrator) Artifact(ctx context.Context, f, kind string) (*Artifact, error) {
	if f == "" {
		f = o.tracker.CurrentFingerprint()
		if f == "" {
			return nil, fmt.Errorf("nothing has been processed yet: %w", storage.ErrNotFound)
		}
	}
	if !fingerprint.Fingerprint(f).Valid() {
		return nil, domain.ValidationError(fmt.Sprintf("invalid fingerprint %q", f), nil)
	}

	var key string
	if kind == "json" {
		key = storage.Key(storage.CategoryEnrichedJSON, f, EnrichedFile)
	} else {
		k, err := format.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		key = storage.Key(storage.CategoryFormattedOutput, f, k.FileName())
	}

	res, err := o.backend.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(key)
	}
	return &Artifact{Key: key, Fingerprint: f, ContentType: contentType, Data: res.Data}, nil
}
