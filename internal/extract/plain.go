package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/spherical/content-pipeline/internal/domain"
)

// PlainEngine extracts text with a pure-Go parser. It needs no cgo and
// handles simple text-based documents.
type PlainEngine struct{}

func (PlainEngine) Name() string { return EnginePlain }

func (PlainEngine) Pages(ctx context.Context, data []byte) ([]string, domain.DocumentMetadata, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.DocumentMetadata{}, fmt.Errorf("open document: %w", err)
	}

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, domain.DocumentMetadata{}, ctx.Err()
		default:
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.DocumentMetadata{}, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	meta := domain.DocumentMetadata{Engine: EnginePlain}
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		meta.Title = info.Key("Title").Text()
		meta.Author = info.Key("Author").Text()
		meta.Subject = info.Key("Subject").Text()
		meta.Creator = info.Key("Creator").Text()
		meta.Producer = info.Key("Producer").Text()
	}
	return pages, meta, nil
}
