// Package storage provides the blob store used for source documents, stage
// outputs and persisted state. A remote object store and the local
// filesystem implement the same Backend contract and are chained so every
// remote failure is retried once against local.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned (wrapped) when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Category groups stage outputs under a common prefix.
type Category string

const (
	CategorySourcePDF       Category = "source-pdf"
	CategoryExtractedText   Category = "extracted-text"
	CategoryEnrichedJSON    Category = "enriched-json"
	CategoryFormattedOutput Category = "formatted-output"
)

// Backend is a key/value blob store addressed by "/"-separated keys.
type Backend interface {
	Exists(ctx context.Context, key string) (ExistsResult, error)
	Upload(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (UploadResult, error)
	Download(ctx context.Context, key string) (DownloadResult, error)
}

// ExistsResult reports whether a key is present.
type ExistsResult struct {
	Exists   bool
	Metadata map[string]string
}

// UploadResult describes a stored object.
type UploadResult struct {
	Success  bool
	Key      string
	Location string
}

// DownloadResult carries the object bytes and what was stored alongside them.
type DownloadResult struct {
	Success     bool
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Key builds the canonical {category}/{fingerprint}/{filename} key.
func Key(category Category, fingerprint, filename string) string {
	return path.Join(string(category), fingerprint, filename)
}

// ValidateKey rejects keys that could escape the store root.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("key must be relative and slash separated: %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid key segment in %q", key)
		}
	}
	if strings.HasSuffix(key, metaSuffix) {
		return fmt.Errorf("key uses reserved suffix %s: %q", metaSuffix, key)
	}
	return nil
}

// DownloadText downloads key and decodes it as UTF-8 text.
func DownloadText(ctx context.Context, b Backend, key string) (string, error) {
	res, err := b.Download(ctx, key)
	if err != nil {
		return "", err
	}
	return string(res.Data), nil
}

// DownloadJSON downloads key and decodes it into a T.
func DownloadJSON[T any](ctx context.Context, b Backend, key string) (T, error) {
	var out T
	res, err := b.Download(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// UploadJSON encodes v with indentation and uploads it as application/json.
func UploadJSON(ctx context.Context, b Backend, key string, v interface{}, metadata map[string]string) (UploadResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return UploadResult{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Upload(ctx, data, key, "application/json", metadata)
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
