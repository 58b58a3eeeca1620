package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const contentTypeHeader = "Content-Type"

// ObjectStoreConfig configures the remote backend.
type ObjectStoreConfig struct {
	URL            string
	Bucket         string
	Region         string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

// ObjectStoreBackend keeps objects in a NATS JetStream object store bucket.
// The bucket is bound lazily so a server that is down at startup only
// degrades individual operations.
type ObjectStoreBackend struct {
	cfg ObjectStoreConfig
	nc  *nats.Conn
	js  jetstream.JetStream

	mu    sync.Mutex
	store jetstream.ObjectStore
}

// DialObjectStore connects to NATS. The connection keeps retrying in the
// background when the server is unreachable.
func DialObjectStore(cfg ObjectStoreConfig) (*ObjectStoreBackend, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("content-pipeline"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &ObjectStoreBackend{cfg: cfg, nc: nc, js: js}, nil
}

// Close releases the NATS connection.
func (b *ObjectStoreBackend) Close() error {
	b.nc.Close()
	return nil
}

func (b *ObjectStoreBackend) bucket(ctx context.Context) (jetstream.ObjectStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.store != nil {
		return b.store, nil
	}

	store, err := b.js.ObjectStore(ctx, b.cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = b.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      b.cfg.Bucket,
			Description: "content pipeline artifacts",
			Metadata:    map[string]string{"region": b.cfg.Region},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind bucket %s: %w", b.cfg.Bucket, err)
	}

	b.store = store
	return store, nil
}

func (b *ObjectStoreBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.cfg.OpTimeout)
}

// Exists looks up object info. A missing object is not an error.
func (b *ObjectStoreBackend) Exists(ctx context.Context, key string) (ExistsResult, error) {
	if err := ValidateKey(key); err != nil {
		return ExistsResult{}, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	store, err := b.bucket(ctx)
	if err != nil {
		return ExistsResult{}, err
	}

	info, err := store.GetInfo(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return ExistsResult{Exists: false}, nil
	}
	if err != nil {
		return ExistsResult{}, fmt.Errorf("object info %s: %w", key, err)
	}
	return ExistsResult{Exists: true, Metadata: copyMetadata(info.Metadata)}, nil
}

// Upload puts the object, replacing any previous version.
func (b *ObjectStoreBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error) {
	if err := ValidateKey(key); err != nil {
		return UploadResult{}, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	store, err := b.bucket(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	headers := nats.Header{}
	headers.Set(contentTypeHeader, contentType)

	_, err = store.Put(ctx, jetstream.ObjectMeta{
		Name:     key,
		Headers:  headers,
		Metadata: copyMetadata(metadata),
	}, bytes.NewReader(data))
	if err != nil {
		return UploadResult{}, fmt.Errorf("put %s: %w", key, err)
	}

	return UploadResult{
		Success:  true,
		Key:      key,
		Location: fmt.Sprintf("nats://%s/%s", b.cfg.Bucket, key),
	}, nil
}

// Download fetches the object body and its stored headers.
func (b *ObjectStoreBackend) Download(ctx context.Context, key string) (DownloadResult, error) {
	if err := ValidateKey(key); err != nil {
		return DownloadResult{}, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	store, err := b.bucket(ctx)
	if err != nil {
		return DownloadResult{}, err
	}

	obj, err := store.Get(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return DownloadResult{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return DownloadResult{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("read %s: %w", key, err)
	}

	info, err := obj.Info()
	if err != nil {
		return DownloadResult{}, fmt.Errorf("object info %s: %w", key, err)
	}

	contentType := info.Headers.Get(contentTypeHeader)
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	return DownloadResult{
		Success:     true,
		Data:        data,
		ContentType: contentType,
		Metadata:    copyMetadata(info.Metadata),
	}, nil
}
