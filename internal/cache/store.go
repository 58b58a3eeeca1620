// Package cache provides fingerprint-bound caching for expensive stage
// results, persisted through a pluggable Store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/content-pipeline/internal/storage"
)

// ErrCacheMiss indicates nothing has been persisted under a cache name.
var ErrCacheMiss = errors.New("cache miss")

// Store persists one serialized document per cache name.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, doc []byte) error
}

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[name]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), doc...), nil
}

func (s *MemoryStore) Save(ctx context.Context, name string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = append([]byte(nil), doc...)
	return nil
}

// BackendStore persists documents as cache/<name>.json in a storage backend.
type BackendStore struct {
	backend storage.Backend
}

// NewBackendStore creates a store on top of a storage backend.
func NewBackendStore(backend storage.Backend) *BackendStore {
	return &BackendStore{backend: backend}
}

// DocumentKey returns the storage key of a named cache document.
func DocumentKey(name string) string {
	return path.Join("cache", name+".json")
}

func (s *BackendStore) Load(ctx context.Context, name string) ([]byte, error) {
	res, err := s.backend.Download(ctx, DocumentKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load cache %s: %w", name, err)
	}
	return res.Data, nil
}

func (s *BackendStore) Save(ctx context.Context, name string, doc []byte) error {
	if _, err := s.backend.Upload(ctx, doc, DocumentKey(name), "application/json", map[string]string{
		"cache": name,
	}); err != nil {
		return fmt.Errorf("save cache %s: %w", name, err)
	}
	return nil
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisStore keeps cache documents in Redis under <prefix>cache:<name>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cp:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + "cache:" + name
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Save stores the document without expiry; entry TTLs are enforced on read.
func (s *RedisStore) Save(ctx context.Context, name string, doc []byte) error {
	if err := s.client.Set(ctx, s.key(name), doc, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cache document entirely.
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
