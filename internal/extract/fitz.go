package extract

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/content-pipeline/internal/domain"
)

// FitzEngine extracts text with MuPDF.
type FitzEngine struct{}

func (FitzEngine) Name() string { return EngineFitz }

func (FitzEngine) Pages(ctx context.Context, pdf []byte) ([]string, domain.DocumentMetadata, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, domain.DocumentMetadata{}, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, domain.DocumentMetadata{}, ctx.Err()
		default:
		}

		text, err := doc.Text(i)
		if err != nil {
			return nil, domain.DocumentMetadata{}, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}

	meta := doc.Metadata()
	return pages, domain.DocumentMetadata{
		Title:    meta["title"],
		Author:   meta["author"],
		Subject:  meta["subject"],
		Creator:  meta["creator"],
		Producer: meta["producer"],
		Engine:   EngineFitz,
	}, nil
}
