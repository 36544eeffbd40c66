// Package extractor routes stored documents to a format-specific text
// extractor by filename extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
)

type Composite struct {
	byExtension map[string]ports.TextExtractor
	fallback    ports.TextExtractor
}

// NewComposite builds the extension table. The fallback handles anything
// unmapped that is plausibly text.
func NewComposite(fallback ports.TextExtractor) *Composite {
	return &Composite{
		byExtension: make(map[string]ports.TextExtractor),
		fallback:    fallback,
	}
}

func (c *Composite) Register(extension string, extractor ports.TextExtractor) {
	c.byExtension[normalizeExtension(extension)] = extractor
}

func (c *Composite) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	ext := normalizeExtension(filepath.Ext(doc.Filename))
	if extractor, ok := c.byExtension[ext]; ok {
		return extractor.Extract(ctx, doc)
	}
	if c.fallback != nil {
		return c.fallback.Extract(ctx, doc)
	}
	return nil, domain.WrapError(
		domain.ErrInvalidInput,
		"route extractor",
		fmt.Errorf("unsupported document type: %s", doc.Filename),
	)
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
