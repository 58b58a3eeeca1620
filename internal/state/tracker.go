// Package state tracks the last observed source fingerprint and which
// pipeline stages have completed for it.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/storage"
)

// DefaultKey is where the content state document is persisted.
const DefaultKey = "state/content_state.json"

// Freshness reasons
const (
	ReasonChanged      = "PDF content has changed"
	ReasonNotExtracted = "Content has not been processed"
	ReasonNotEnriched  = "Content has not been analyzed"
)

// Listener is notified after every committed state change.
type Listener func(ctx context.Context, st domain.ContentState) error

// Update is a partial state change; nil fields are left untouched.
type Update struct {
	Fingerprint      *string
	IsExtracted      *bool
	IsEnriched       *bool
	IsFormatted      *bool
	SourcePath       *string
	SourceSize       *int64
	SourceModifiedAt *time.Time
	ProcessingStage  *domain.ProcessingStage
	FormatVersions   *domain.FormatVersions
}

// Ptr returns a pointer to v, for building Updates.
func Ptr[T any](v T) *T {
	return &v
}

// Freshness explains whether the stored content matches a fingerprint.
type Freshness struct {
	IsStale            bool      `json:"isStale"`
	Reason             string    `json:"reason,omitempty"`
	CurrentFingerprint string    `json:"currentFingerprint"`
	StoredFingerprint  string    `json:"storedFingerprint"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// Tracker owns the content state record. It is the only writer of the
// persisted state document.
type Tracker struct {
	backend storage.Backend
	key     string
	now     func() time.Time
	logger  *observability.Logger

	mu    sync.RWMutex
	state domain.ContentState

	listenersMu sync.Mutex
	listeners   []Listener
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithKey overrides the storage key of the state document.
func WithKey(key string) Option {
	return func(t *Tracker) { t.key = key }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// Load creates a tracker and reads the persisted state, starting from the
// zero state when nothing has been persisted yet.
func Load(ctx context.Context, backend storage.Backend, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		backend: backend,
		key:     DefaultKey,
		now:     time.Now,
		logger:  observability.Nop(),
		state:   domain.ZeroContentState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.WithComponent("state")

	persisted, err := storage.DownloadJSON[domain.ContentState](ctx, backend, t.key)
	switch {
	case err == nil:
		t.state = persisted
		t.logger.Debug().
			Str("fingerprint", shortFingerprint(persisted.Fingerprint)).
			Str("stage", string(persisted.ProcessingStage)).
			Msg("Loaded content state")
	case errors.Is(err, storage.ErrNotFound):
		t.logger.Debug().Msg("No persisted content state, starting fresh")
	case domain.IsType(err, domain.ErrorTypeStorage):
		return nil, fmt.Errorf("load content state: %w", err)
	default:
		t.logger.Warn().Err(err).Msg("Unreadable content state, starting fresh")
	}

	if t.state.ProcessingStage == "" {
		t.state.ProcessingStage = domain.ProcessingNone
	}
	return t, nil
}

// GetState returns a copy of the current state.
func (t *Tracker) GetState() domain.ContentState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// CurrentFingerprint returns the last observed fingerprint.
func (t *Tracker) CurrentFingerprint() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Fingerprint
}

// OnChange registers a listener. Listeners run in registration order.
func (t *Tracker) OnChange(l Listener) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	t.listeners = append(t.listeners, l)
}

// UpdateState merges u into the state, stamps LastUpdatedAt, persists the
// result and then notifies listeners. When persisting fails the in-memory
// state is left unchanged.
func (t *Tracker) UpdateState(ctx context.Context, u Update) error {
	_, err := t.apply(ctx, nil, u)
	return err
}

// UpdateStateIf applies u only while the tracked fingerprint equals
// expected. It reports whether the update was applied; a run whose source
// has since been replaced gets false and must not mark stages done.
func (t *Tracker) UpdateStateIf(ctx context.Context, expected string, u Update) (bool, error) {
	return t.apply(ctx, &expected, u)
}

func (t *Tracker) apply(ctx context.Context, expected *string, u Update) (bool, error) {
	t.mu.Lock()
	if expected != nil && t.state.Fingerprint != *expected {
		t.mu.Unlock()
		return false, nil
	}
	next := merge(t.state, u)
	next.LastUpdatedAt = t.now().UTC()

	if _, err := storage.UploadJSON(ctx, t.backend, t.key, next, map[string]string{
		"fingerprint": next.Fingerprint,
	}); err != nil {
		t.mu.Unlock()
		return false, domain.StorageError("persist content state", err)
	}
	t.state = next
	t.mu.Unlock()

	t.notify(ctx, next)
	return true, nil
}

func (t *Tracker) notify(ctx context.Context, st domain.ContentState) {
	t.listenersMu.Lock()
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.listenersMu.Unlock()

	for i, l := range listeners {
		if err := t.callListener(ctx, l, st); err != nil {
			t.logger.Error().Err(err).Int("listener", i).Msg("State listener failed")
		}
	}
}

func (t *Tracker) callListener(ctx context.Context, l Listener, st domain.ContentState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l(ctx, st)
}

// IsStale reports whether content for f must be (re)processed.
func (t *Tracker) IsStale(f string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return f != t.state.Fingerprint || !t.state.IsExtracted || !t.state.IsEnriched
}

// CheckFreshness is IsStale with the reason spelled out.
func (t *Tracker) CheckFreshness(f string) Freshness {
	t.mu.RLock()
	st := t.state
	t.mu.RUnlock()

	fr := Freshness{
		CurrentFingerprint: f,
		StoredFingerprint:  st.Fingerprint,
		LastUpdated:        st.LastUpdatedAt,
	}
	switch {
	case f != st.Fingerprint:
		fr.Reason = ReasonChanged
	case !st.IsExtracted:
		fr.Reason = ReasonNotExtracted
	case !st.IsEnriched:
		fr.Reason = ReasonNotEnriched
	}
	fr.IsStale = fr.Reason != ""
	return fr
}

func merge(st domain.ContentState, u Update) domain.ContentState {
	if u.Fingerprint != nil {
		st.Fingerprint = *u.Fingerprint
	}
	if u.IsExtracted != nil {
		st.IsExtracted = *u.IsExtracted
	}
	if u.IsEnriched != nil {
		st.IsEnriched = *u.IsEnriched
	}
	if u.IsFormatted != nil {
		st.IsFormatted = *u.IsFormatted
	}
	if u.SourcePath != nil {
		st.SourcePath = *u.SourcePath
	}
	if u.SourceSize != nil {
		st.SourceSize = *u.SourceSize
	}
	if u.SourceModifiedAt != nil {
		st.SourceModifiedAt = *u.SourceModifiedAt
	}
	if u.ProcessingStage != nil {
		st.ProcessingStage = *u.ProcessingStage
	}
	if u.FormatVersions != nil {
		st.FormatVersions = *u.FormatVersions
	}
	return st
}

func shortFingerprint(f string) string {
	if len(f) > 8 {
		return f[:8]
	}
	return f
}
