package storage

import (
	"fmt"

	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/observability"
)

// New builds the backend selected by configuration. The returned close
// function releases remote connections and is always non-nil.
func New(cfg config.StorageConfig, logger *observability.Logger, metrics *observability.Metrics) (Backend, func() error, error) {
	local, err := NewLocalBackend(cfg.LocalRoot)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Mode != config.StorageModeRemote {
		return local, func() error { return nil }, nil
	}

	remote, err := DialObjectStore(ObjectStoreConfig{
		URL:            cfg.Remote.URL,
		Bucket:         cfg.Remote.Bucket,
		Region:         cfg.Remote.Region,
		ConnectTimeout: cfg.Remote.ConnectTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("remote storage: %w", err)
	}

	return NewFallbackBackend(remote, local, logger, metrics), remote.Close, nil
}
