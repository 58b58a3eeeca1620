package domain

import "context"

// Extractor turns PDF bytes into raw text. Implementations must not perform
// network I/O.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (*ExtractionResult, error)
}

// Enricher turns raw text into structured sections
type Enricher interface {
	Enrich(ctx context.Context, rawText string) (*StructuredContent, error)
}
