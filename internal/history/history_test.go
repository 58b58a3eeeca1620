package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, RunRecord{
		RunID:       "run-1",
		Fingerprint: "f1",
		SourcePath:  "/tmp/cv.pdf",
		StartedAt:   base,
		Duration:    1500 * time.Millisecond,
		Status:      StatusSucceeded,
		StagesRun:   []string{"extract", "enrich", "format"},
	}))
	require.NoError(t, s.Record(ctx, RunRecord{
		RunID:         "run-2",
		Fingerprint:   "f1",
		StartedAt:     base.Add(time.Minute),
		Duration:      200 * time.Millisecond,
		Status:        StatusDegraded,
		StagesRun:     []string{"format"},
		StagesSkipped: []string{"extract", "enrich"},
		Stale:         true,
		FailedStage:   "extract",
		Message:       "extraction failed",
		Recoverable:   true,
	}))

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-2", runs[0].RunID)
	assert.True(t, runs[0].Stale)
	assert.Equal(t, []string{"extract", "enrich"}, runs[0].StagesSkipped)
	assert.Equal(t, "extract", runs[0].FailedStage)
	assert.Equal(t, "extraction failed", runs[0].Message)
	assert.True(t, runs[0].Recoverable)

	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, base, runs[1].StartedAt)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration)
	assert.Equal(t, []string{}, runs[1].StagesSkipped)
	assert.Equal(t, "/tmp/cv.pdf", runs[1].SourcePath)
}

func TestStore_ListLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, RunRecord{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Status:    StatusSucceeded,
		}))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, RunRecord{RunID: "r", StartedAt: time.Now(), Status: StatusFailed}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
