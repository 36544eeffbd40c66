package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/vkuzmich/fintech-rag/internal/config"
	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
	"github.com/vkuzmich/fintech-rag/internal/core/usecase"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/chunking"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/extractor"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/extractor/pdfdoc"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/extractor/plaintext"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/extractor/xlsxdoc"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/llm/ollama"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/queue/nats"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/rerank/cohere"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/repository/postgres"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/resilience"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/sparse"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/storage/localfs"
	"github.com/vkuzmich/fintech-rag/internal/infrastructure/vector/qdrant"
)

// App wires the retrieval pipeline. Both binaries share this assembly: the API
// serves queries from it, the worker runs the ingestion side.
type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	Passages ports.PassageRepository
	Sparse   ports.SparseIndex

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	AnswerUC  *usecase.AnswerUseCase

	RateLimiter *rate.Limiter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	passages := postgres.NewPassageRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSRefreshSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	reranker := cohere.New(cfg.CohereURL, cfg.CohereAPIKey, cfg.CohereModel, executor)
	sparseIndex := sparse.New()

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	docExtractor := extractor.NewComposite(plaintext.NewExtractor(storage))
	docExtractor.Register("pdf", pdfdoc.NewExtractor(storage))
	docExtractor.Register("xlsx", xlsxdoc.NewExtractor(storage))
	docExtractor.Register("xlsm", xlsxdoc.NewExtractor(storage))

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		repo, docExtractor, chunker, embedder, vectorDB, passages, sparseIndex, queue, cfg.SnapshotPath,
	)
	answerUC, err := usecase.NewAnswerUseCase(embedder, sparseIndex, vectorDB, reranker, generator, usecase.AnswerConfig{
		Weights: usecase.FusionWeights{
			Sparse: cfg.SparseWeight,
			Dense:  cfg.DenseWeight,
		},
		RRFK:            cfg.RRFK,
		RerankThreshold: cfg.RerankThreshold,
		MaxContextLen:   cfg.MaxContextLen,
		DenseTimeout:    cfg.DenseTimeout,
		RerankTimeout:   cfg.RerankTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init answer pipeline: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	return &App{
		Config: cfg,

		Queue:    queue,
		Repo:     repo,
		Passages: passages,
		Sparse:   sparseIndex,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		AnswerUC:  answerUC,

		RateLimiter: limiter,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// WarmSparseIndex restores the keyword index at API startup: the snapshot if
// one exists, otherwise a rebuild from the persisted corpus. An empty corpus
// is tolerated; queries return 503 until the first document lands.
func (a *App) WarmSparseIndex(ctx context.Context) error {
	loaded, err := a.Sparse.Load(a.Config.SnapshotPath)
	if err != nil {
		slog.Warn("sparse_snapshot_unusable", "path", a.Config.SnapshotPath, "error", err)
	}
	if loaded {
		return nil
	}
	return a.RefreshSparseIndex(ctx)
}

// RefreshSparseIndex rebuilds the keyword index from postgres. Subscribed to
// corpus update events so every API instance converges after the worker
// finishes a document.
func (a *App) RefreshSparseIndex(ctx context.Context) error {
	corpus, err := a.Passages.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	if err := a.Sparse.Build(corpus); err != nil {
		if domain.IsKind(err, domain.ErrEmptyCorpus) {
			slog.Info("sparse_index_empty_corpus")
			return nil
		}
		return fmt.Errorf("rebuild sparse index: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
