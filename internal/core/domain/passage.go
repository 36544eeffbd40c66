package domain

import "fmt"

// Passage is the immutable unit of retrievable text. Passages are created once
// during ingestion and are read-only for the lifetime of a query.
type Passage struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Page       string    `json:"page"`
	Category   string    `json:"category,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

// PassageID derives the stable passage identifier from its origin. The same
// (source, page, chunk) triple always yields the same ID, so re-ingesting
// identical content overwrites instead of duplicating.
func PassageID(source, page string, chunkIndex int) string {
	return fmt.Sprintf("%s:p%s:c%d", source, page, chunkIndex)
}

// PageText is one extracted page (or section) of a source document.
type PageText struct {
	Label string
	Text  string
}
