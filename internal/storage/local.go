package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const metaSuffix = ".meta.json"

// LocalBackend stores objects as files under a root directory. Content type
// and metadata live in a sidecar file next to each object.
type LocalBackend struct {
	root string
}

type localMeta struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UploadedAt  time.Time         `json:"uploadedAt"`
}

// NewLocalBackend creates the root directory if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalBackend{root: abs}, nil
}

// Root returns the absolute storage root.
func (b *LocalBackend) Root() string {
	return b.root
}

func (b *LocalBackend) pathFor(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

// Exists reports whether key is present. A missing key is not an error.
func (b *LocalBackend) Exists(ctx context.Context, key string) (ExistsResult, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return ExistsResult{}, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ExistsResult{Exists: false}, nil
	}
	if err != nil {
		return ExistsResult{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return ExistsResult{Exists: false}, nil
	}

	meta, _ := b.readMeta(p)
	return ExistsResult{Exists: true, Metadata: meta.Metadata}, nil
}

// Upload writes data atomically, creating parent directories as needed.
func (b *LocalBackend) Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return UploadResult{}, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("create parent for %s: %w", key, err)
	}
	if err := writeAtomic(p, data); err != nil {
		return UploadResult{}, fmt.Errorf("write %s: %w", key, err)
	}

	meta, err := json.Marshal(localMeta{
		ContentType: contentType,
		Metadata:    copyMetadata(metadata),
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("encode metadata for %s: %w", key, err)
	}
	if err := writeAtomic(p+metaSuffix, meta); err != nil {
		return UploadResult{}, fmt.Errorf("write metadata for %s: %w", key, err)
	}

	return UploadResult{Success: true, Key: key, Location: "file://" + filepath.ToSlash(p)}, nil
}

// Download reads the object and its sidecar.
func (b *LocalBackend) Download(ctx context.Context, key string) (DownloadResult, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return DownloadResult{}, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return DownloadResult{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return DownloadResult{}, fmt.Errorf("read %s: %w", key, err)
	}

	meta, err := b.readMeta(p)
	if err != nil || meta.ContentType == "" {
		meta.ContentType = ContentTypeFor(key)
	}

	return DownloadResult{
		Success:     true,
		Data:        data,
		ContentType: meta.ContentType,
		Metadata:    meta.Metadata,
	}, nil
}

func (b *LocalBackend) readMeta(p string) (localMeta, error) {
	var meta localMeta
	raw, err := os.ReadFile(p + metaSuffix)
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(raw, &meta)
	return meta, err
}

func writeAtomic(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
