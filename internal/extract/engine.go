package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical/content-pipeline/internal/domain"
)

// Engine names accepted by NewEngine.
const (
	EngineFitz  = "fitz"
	EnginePlain = "plain"
)

// Engine pulls per-page text and document metadata out of PDF bytes.
type Engine interface {
	Name() string
	Pages(ctx context.Context, pdf []byte) ([]string, domain.DocumentMetadata, error)
}

// NewEngine returns the engine registered under name.
func NewEngine(name string) (Engine, error) {
	switch strings.ToLower(name) {
	case EngineFitz, "":
		return FitzEngine{}, nil
	case EnginePlain:
		return PlainEngine{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction engine %q", name)
	}
}
