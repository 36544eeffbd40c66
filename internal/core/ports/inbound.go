package ports

import (
	"context"
	"io"
	"time"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for the retrieval pipeline: one
// synchronous answer operation and one administrative stats operation.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string, topK int, filter domain.SearchFilter, wantConfidence bool) (*domain.AnswerResult, error)
	Stats(ctx context.Context) (*domain.SystemStats, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, category string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document
// processing on the worker side.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
	OnSparseRebuild(fn func(took time.Duration, passages int))
}
