package cache

import (
	"fmt"

	"github.com/spherical/content-pipeline/internal/config"
	"github.com/spherical/content-pipeline/internal/storage"
)

// NewStore builds the Store selected by cfg.Driver. The returned close
// function is always non-nil.
func NewStore(cfg config.CacheConfig, backend storage.Backend) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.CacheDriverMemory:
		return NewMemoryStore(), noop, nil
	case config.CacheDriverStorage, "":
		return NewBackendStore(backend), noop, nil
	case config.CacheDriverRedis:
		rs, err := NewRedisStore(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
