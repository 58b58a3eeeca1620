package storage

import (
	"context"
	"errors"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/observability"
)

// FallbackBackend chains a remote backend in front of the local one. Any
// remote failure, including not-found, is retried once against local; only
// when both tiers fail does the caller see a StorageError.
type FallbackBackend struct {
	remote  Backend
	local   Backend
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewFallbackBackend creates the remote→local chain.
func NewFallbackBackend(remote, local Backend, logger *observability.Logger, metrics *observability.Metrics) *FallbackBackend {
	if logger == nil {
		logger = observability.Nop()
	}
	return &FallbackBackend{
		remote:  remote,
		local:   local,
		logger:  logger.WithComponent("storage"),
		metrics: metrics,
	}
}

func (b *FallbackBackend) fallingBack(op, key string, err error) {
	b.metrics.StorageFallback(op)
	evt := b.logger.Warn().Str("operation", op).Str("key", key)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("Remote storage unavailable, using local storage")
}

// Exists checks remote first; a remote miss or error is re-checked locally.
func (b *FallbackBackend) Exists(ctx context.Context, key string) (ExistsResult, error) {
	res, remoteErr := b.remote.Exists(ctx, key)
	if remoteErr == nil && res.Exists {
		return res, nil
	}
	if remoteErr != nil {
		b.fallingBack("exists", key, remoteErr)
	}

	local, localErr := b.local.Exists(ctx, key)
	if localErr != nil {
		if remoteErr == nil {
			// Remote answered cleanly; trust its "missing".
			return res, nil
		}
		return ExistsResult{}, domain.StorageError("exists "+key, errors.Join(remoteErr, localErr))
	}
	return local, nil
}

// Upload writes remotely, falling back to local on failure.
func (b *FallbackBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error) {
	res, remoteErr := b.remote.Upload(ctx, data, key, contentType, metadata)
	if remoteErr == nil {
		return res, nil
	}
	b.fallingBack("upload", key, remoteErr)

	res, localErr := b.local.Upload(ctx, data, key, contentType, metadata)
	if localErr != nil {
		return UploadResult{}, domain.StorageError("upload "+key, errors.Join(remoteErr, localErr))
	}
	return res, nil
}

// Download reads remotely, falling back to local on any failure.
func (b *FallbackBackend) Download(ctx context.Context, key string) (DownloadResult, error) {
	res, remoteErr := b.remote.Download(ctx, key)
	if remoteErr == nil {
		return res, nil
	}
	if !errors.Is(remoteErr, ErrNotFound) {
		b.fallingBack("download", key, remoteErr)
	}

	res, localErr := b.local.Download(ctx, key)
	if localErr != nil {
		if errors.Is(remoteErr, ErrNotFound) && errors.Is(localErr, ErrNotFound) {
			return DownloadResult{}, localErr
		}
		return DownloadResult{}, domain.StorageError("download "+key, errors.Join(remoteErr, localErr))
	}
	return res, nil
}
