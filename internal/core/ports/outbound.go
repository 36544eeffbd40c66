package ports

import (
	"context"
	"io"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// SparseIndex is the in-process keyword ranking structure. Build publishes a
// fresh segment atomically; Search reads whichever segment is current, so any
// number of queries may run concurrently with a rebuild.
type SparseIndex interface {
	Build(passages []domain.Passage) error
	Search(query string, topK int) ([]domain.ScoredCandidate, error)
	Persist(path string) error
	Load(path string) (bool, error)
	Stats() domain.SparseStats
}

// DenseIndex is the external vector database capability. Query results arrive
// sorted by similarity descending. Calls are fallible and potentially slow;
// the orchestrator owns the timeout.
type DenseIndex interface {
	Upsert(ctx context.Context, passages []domain.Passage) error
	Query(ctx context.Context, vector []float32, topK int, filter domain.SearchFilter) ([]domain.ScoredCandidate, error)
}

// RerankService is the external cross-encoder capability. It scores texts
// against the query and returns (index, relevance) pairs sorted by relevance.
type RerankService interface {
	Rerank(ctx context.Context, query string, texts []string, topN int) ([]domain.RankedText, error)
}

// Generator is the external free-text generation capability.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
	Model() string
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted page text into passage-sized chunks.
type Chunker interface {
	Split(text string) []string
}

// TextExtractor extracts page-labelled plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveCounts(ctx context.Context, id string, pageCount, passageCount int) error
}

// PassageRepository persists the passage payload so the sparse index can be
// rebuilt without re-extracting the corpus.
type PassageRepository interface {
	ReplaceForSource(ctx context.Context, source string, passages []domain.Passage) error
	ListAll(ctx context.Context) ([]domain.Passage, error)
	Count(ctx context.Context) (int, error)
}

// ObjectStorage stores raw source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries ingestion and corpus-refresh events between processes.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishCorpusUpdated(ctx context.Context) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context) error) error
}
