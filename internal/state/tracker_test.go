package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/storage"
)

func newTracker(t *testing.T, backend storage.Backend, now time.Time) *Tracker {
	t.Helper()
	tr, err := Load(context.Background(), backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return tr
}

func newLocal(t *testing.T) *storage.LocalBackend {
	t.Helper()
	b, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestLoad_StartsFromZeroState(t *testing.T) {
	tr := newTracker(t, newLocal(t), time.Now())

	st := tr.GetState()
	assert.Equal(t, "", st.Fingerprint)
	assert.False(t, st.IsExtracted)
	assert.False(t, st.IsEnriched)
	assert.Equal(t, domain.ProcessingNone, st.ProcessingStage)
	assert.True(t, tr.IsStale("anything"))
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		extracted bool
		enriched  bool
		query     string
		want      bool
		reason    string
	}{
		{"different fingerprint", "f1", true, true, "f2", true, ReasonChanged},
		{"not extracted", "f1", false, true, "f1", true, ReasonNotExtracted},
		{"not enriched", "f1", true, false, "f1", true, ReasonNotEnriched},
		{"fresh", "f1", true, true, "f1", false, ""},
		{"changed wins over missing stages", "f1", false, false, "f2", true, ReasonChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t, newLocal(t), time.Now())
			require.NoError(t, tr.UpdateState(context.Background(), Update{
				Fingerprint: Ptr(tt.stored),
				IsExtracted: Ptr(tt.extracted),
				IsEnriched:  Ptr(tt.enriched),
			}))

			assert.Equal(t, tt.want, tr.IsStale(tt.query))

			fr := tr.CheckFreshness(tt.query)
			assert.Equal(t, tt.want, fr.IsStale)
			assert.Equal(t, tt.reason, fr.Reason)
			assert.Equal(t, tt.query, fr.CurrentFingerprint)
			assert.Equal(t, tt.stored, fr.StoredFingerprint)
		})
	}
}

func TestUpdateState_PartialMergeAndTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTracker(t, newLocal(t), now)
	ctx := context.Background()

	require.NoError(t, tr.UpdateState(ctx, Update{
		Fingerprint:     Ptr("f1"),
		IsExtracted:     Ptr(true),
		ProcessingStage: Ptr(domain.ProcessingExtracted),
	}))
	require.NoError(t, tr.UpdateState(ctx, Update{IsEnriched: Ptr(true)}))

	st := tr.GetState()
	assert.Equal(t, "f1", st.Fingerprint)
	assert.True(t, st.IsExtracted)
	assert.True(t, st.IsEnriched)
	assert.Equal(t, domain.ProcessingExtracted, st.ProcessingStage)
	assert.Equal(t, now, st.LastUpdatedAt)
}

func TestGetState_ReturnsCopy(t *testing.T) {
	tr := newTracker(t, newLocal(t), time.Now())
	require.NoError(t, tr.UpdateState(context.Background(), Update{Fingerprint: Ptr("f1")}))

	st := tr.GetState()
	st.Fingerprint = "mutated"

	assert.Equal(t, "f1", tr.GetState().Fingerprint)
}

func TestUpdateState_PersistsAcrossReload(t *testing.T) {
	backend := newLocal(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tr := newTracker(t, backend, now)
	require.NoError(t, tr.UpdateState(ctx, Update{
		Fingerprint: Ptr("f1"),
		IsExtracted: Ptr(true),
		IsEnriched:  Ptr(true),
		SourceSize:  Ptr(int64(42)),
	}))

	reloaded := newTracker(t, backend, now)
	st := reloaded.GetState()
	assert.Equal(t, "f1", st.Fingerprint)
	assert.Equal(t, int64(42), st.SourceSize)
	assert.True(t, st.LastUpdatedAt.Equal(now))
	assert.False(t, reloaded.IsStale("f1"))
}

func TestLoad_CorruptStateStartsFresh(t *testing.T) {
	backend := newLocal(t)
	_, err := backend.Upload(context.Background(), []byte("{broken"), DefaultKey, "", nil)
	require.NoError(t, err)

	tr := newTracker(t, backend, time.Now())
	assert.Equal(t, "", tr.GetState().Fingerprint)
}

func TestOnChange_ListenersRunInOrder(t *testing.T) {
	tr := newTracker(t, newLocal(t), time.Now())

	var calls []string
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		calls = append(calls, "first:"+st.Fingerprint)
		return nil
	})
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		calls = append(calls, "second:"+st.Fingerprint)
		return nil
	})

	require.NoError(t, tr.UpdateState(context.Background(), Update{Fingerprint: Ptr("f1")}))
	assert.Equal(t, []string{"first:f1", "second:f1"}, calls)
}

func TestOnChange_FailingListenerDoesNotStopOthers(t *testing.T) {
	tr := newTracker(t, newLocal(t), time.Now())

	var reached bool
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		return errors.New("boom")
	})
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		panic("listener exploded")
	})
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		reached = true
		return nil
	})

	require.NoError(t, tr.UpdateState(context.Background(), Update{Fingerprint: Ptr("f1")}))
	assert.True(t, reached)
	assert.Equal(t, "f1", tr.GetState().Fingerprint)
}

type brokenBackend struct{ storage.Backend }

func (brokenBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (storage.UploadResult, error) {
	return storage.UploadResult{}, errors.New("disk full")
}

func TestUpdateState_PersistFailureKeepsPreviousState(t *testing.T) {
	local := newLocal(t)
	tr := newTracker(t, brokenBackend{Backend: local}, time.Now())

	err := tr.UpdateState(context.Background(), Update{Fingerprint: Ptr("f1")})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))
	assert.Equal(t, "", tr.GetState().Fingerprint)
}

func TestUpdateStateIf(t *testing.T) {
	tests := []struct {
		name        string
		expected    string
		wantApplied bool
		wantFlag    bool
	}{
		{"tracked fingerprint matches", "f1", true, true},
		{"fingerprint replaced", "f0", false, false},
		{"empty expectation", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := newLocal(t)
			tr := newTracker(t, backend, time.Now())
			require.NoError(t, tr.UpdateState(ctx, Update{Fingerprint: Ptr("f1")}))

			applied, err := tr.UpdateStateIf(ctx, tt.expected, Update{IsExtracted: Ptr(true)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantFlag, tr.GetState().IsExtracted)

			reloaded := newTracker(t, backend, time.Now())
			assert.Equal(t, tt.wantFlag, reloaded.GetState().IsExtracted)
		})
	}
}

func TestUpdateStateIf_SkippedUpdateDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newLocal(t), time.Now())
	require.NoError(t, tr.UpdateState(ctx, Update{Fingerprint: Ptr("f2")}))

	calls := 0
	tr.OnChange(func(ctx context.Context, st domain.ContentState) error {
		calls++
		return nil
	})

	applied, err := tr.UpdateStateIf(ctx, "f1", Update{IsEnriched: Ptr(true)})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0, calls)
	assert.True(t, tr.IsStale("f2"))
}
