package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/observability"
)

// failingBackend fails every call, like an unreachable object store.
type failingBackend struct {
	calls int
}

var errUnreachable = errors.New("connection refused")

func (f *failingBackend) Exists(ctx context.Context, key string) (ExistsResult, error) {
	f.calls++
	return ExistsResult{}, errUnreachable
}

func (f *failingBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error) {
	f.calls++
	return UploadResult{}, errUnreachable
}

func (f *failingBackend) Download(ctx context.Context, key string) (DownloadResult, error) {
	f.calls++
	return DownloadResult{}, errUnreachable
}

// missingBackend answers cleanly but never has anything.
type missingBackend struct{}

func (missingBackend) Exists(ctx context.Context, key string) (ExistsResult, error) {
	return ExistsResult{Exists: false}, nil
}

func (missingBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error) {
	return UploadResult{Success: true, Key: key, Location: "mem://" + key}, nil
}

func (missingBackend) Download(ctx context.Context, key string) (DownloadResult, error) {
	return DownloadResult{}, fmt.Errorf("%s: %w", key, ErrNotFound)
}

func TestFallbackBackend_RemoteAlwaysFails(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	remote := &failingBackend{}
	b := NewFallbackBackend(remote, local, observability.Nop(), observability.NewMetrics())

	key := Key(CategoryEnrichedJSON, "f1", "enriched.json")

	up, err := b.Upload(ctx, []byte(`{"name":"Ada"}`), key, "application/json", nil)
	require.NoError(t, err)
	assert.True(t, up.Success)

	down, err := b.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada"}`, string(down.Data))
	assert.Equal(t, "application/json", down.ContentType)

	res, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Exists)

	// Exactly one remote attempt per operation.
	assert.Equal(t, 3, remote.calls)
}

func TestFallbackBackend_MissingKeyIsNotAnError(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	b := NewFallbackBackend(&failingBackend{}, local, nil, nil)

	res, err := b.Exists(context.Background(), "extracted-text/none/extraction.json")
	require.NoError(t, err)
	assert.False(t, res.Exists)
}

func TestFallbackBackend_RemoteMissFindsLocalCopy(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	_, err = local.Upload(ctx, []byte("text"), "extracted-text/f1/raw.txt", "", nil)
	require.NoError(t, err)

	b := NewFallbackBackend(missingBackend{}, local, nil, nil)

	res, err := b.Exists(ctx, "extracted-text/f1/raw.txt")
	require.NoError(t, err)
	assert.True(t, res.Exists)

	text, err := DownloadText(ctx, b, "extracted-text/f1/raw.txt")
	require.NoError(t, err)
	assert.Equal(t, "text", text)
}

func TestFallbackBackend_NotFoundEverywhere(t *testing.T) {
	local, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	b := NewFallbackBackend(missingBackend{}, local, nil, nil)

	_, err = b.Download(context.Background(), "enriched-json/f1/enriched.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, domain.IsType(err, domain.ErrorTypeStorage))
}

func TestFallbackBackend_BothTiersFail(t *testing.T) {
	b := NewFallbackBackend(&failingBackend{}, &failingBackend{}, nil, nil)

	_, err := b.Upload(context.Background(), []byte("x"), "a/b.txt", "", nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))
	assert.ErrorIs(t, err, errUnreachable)

	_, err = b.Download(context.Background(), "a/b.txt")
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))

	_, err = b.Exists(context.Background(), "a/b.txt")
	assert.True(t, domain.IsType(err, domain.ErrorTypeStorage))
}
