package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
)

// ProcessDocumentUseCase runs the worker-side pipeline for one uploaded
// document: extract pages, chunk, embed, index into the dense store, persist
// passages, rebuild the sparse index and announce the refreshed corpus.
type ProcessDocumentUseCase struct {
	repo         ports.DocumentRepository
	extractor    ports.TextExtractor
	chunker      ports.Chunker
	embedder     ports.Embedder
	dense        ports.DenseIndex
	passages     ports.PassageRepository
	sparse       ports.SparseIndex
	queue        ports.MessageQueue
	snapshotPath string
	onRebuild    func(took time.Duration, passages int)
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	dense ports.DenseIndex,
	passages ports.PassageRepository,
	sparse ports.SparseIndex,
	queue ports.MessageQueue,
	snapshotPath string,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:         repo,
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		dense:        dense,
		passages:     passages,
		sparse:       sparse,
		queue:        queue,
		snapshotPath: snapshotPath,
	}
}

// OnSparseRebuild registers a callback invoked after every successful sparse
// rebuild with the build duration and the corpus size. Register before the
// first document is processed; the callback runs on the processing goroutine.
func (uc *ProcessDocumentUseCase) OnSparseRebuild(fn func(took time.Duration, passages int)) {
	uc.onRebuild = fn
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, pageCount, passageCount, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveCounts(ctx, doc.ID, pageCount, passageCount); err != nil {
		return fmt.Errorf("save counts: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, int, int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetch document by id: %w", err)
	}

	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, 0, 0, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("no pages extracted"))
	}

	passages := uc.buildPassages(doc, pages)
	if len(passages) == 0 {
		return nil, 0, 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero passages"))
	}

	if err := uc.embed(ctx, passages); err != nil {
		return nil, 0, 0, err
	}

	if err := uc.dense.Upsert(ctx, passages); err != nil {
		return nil, 0, 0, fmt.Errorf("upsert dense index: %w", err)
	}
	if err := uc.passages.ReplaceForSource(ctx, doc.Filename, passages); err != nil {
		return nil, 0, 0, fmt.Errorf("persist passages: %w", err)
	}

	if err := uc.rebuildSparse(ctx); err != nil {
		return nil, 0, 0, err
	}

	if err := uc.queue.PublishCorpusUpdated(ctx); err != nil {
		return nil, 0, 0, fmt.Errorf("publish corpus update: %w", err)
	}

	return doc, len(pages), len(passages), nil
}

// buildPassages derives deterministic passage IDs from (source, page, chunk),
// so re-processing the same document overwrites rather than duplicates.
func (uc *ProcessDocumentUseCase) buildPassages(doc *domain.Document, pages []domain.PageText) []domain.Passage {
	var passages []domain.Passage
	for _, page := range pages {
		chunks := uc.chunker.Split(page.Text)
		for idx, chunk := range chunks {
			passages = append(passages, domain.Passage{
				ID:         domain.PassageID(doc.Filename, page.Label, idx),
				Content:    chunk,
				Source:     doc.Filename,
				Page:       page.Label,
				Category:   doc.Category,
				ChunkIndex: idx,
				TokenCount: estimateTokens(chunk),
			})
		}
	}
	return passages
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, passages []domain.Passage) error {
	texts := make([]string, len(passages))
	for i := range passages {
		texts[i] = passages[i].Content
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(passages)),
		)
	}
	for i := range passages {
		passages[i].Embedding = vectors[i]
	}
	return nil
}

// rebuildSparse builds a fresh segment from the full persisted corpus and
// snapshots it. The swap inside Build keeps concurrent readers safe.
func (uc *ProcessDocumentUseCase) rebuildSparse(ctx context.Context) error {
	corpus, err := uc.passages.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load corpus for sparse rebuild: %w", err)
	}
	start := time.Now()
	if err := uc.sparse.Build(corpus); err != nil {
		return fmt.Errorf("rebuild sparse index: %w", err)
	}
	if uc.onRebuild != nil {
		uc.onRebuild(time.Since(start), len(corpus))
	}
	if uc.snapshotPath != "" {
		if err := uc.sparse.Persist(uc.snapshotPath); err != nil {
			return fmt.Errorf("persist sparse snapshot: %w", err)
		}
	}
	return nil
}

// estimateTokens approximates the LLM token count of a chunk. A four-runes-per-
// token ratio is close enough for context budgeting.
func estimateTokens(s string) int {
	runes := len([]rune(s))
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
