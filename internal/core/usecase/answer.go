package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
)

const defaultTopK = 5

// AnswerConfig carries the tuning knobs of the retrieval pipeline. Weights are
// validated once at construction so a misconfiguration fails at startup, not
// per query.
type AnswerConfig struct {
	Weights         FusionWeights
	RRFK            int
	RerankThreshold float64
	MaxContextLen   int

	DenseTimeout    time.Duration
	RerankTimeout   time.Duration
	GenerateTimeout time.Duration
}

// AnswerUseCase sequences sparse search, dense query, fusion, reranking and
// synthesis for one question. The two first-stage retrievals run concurrently;
// everything downstream is strictly linear. All intermediate candidate state is
// owned by the calling goroutine; only the aggregate counters are shared, and
// those are atomics.
type AnswerUseCase struct {
	embedder ports.Embedder
	sparse   ports.SparseIndex
	dense    ports.DenseIndex
	rerank   *rerankPolicy
	synth    *synthesizer
	cfg      AnswerConfig

	totalQueries    atomic.Uint64
	noContextTotal  atomic.Uint64
	rerankFallbacks atomic.Uint64
	rerankCalls     atomic.Uint64
	rerankMicros    atomic.Uint64
}

func NewAnswerUseCase(
	embedder ports.Embedder,
	sparse ports.SparseIndex,
	dense ports.DenseIndex,
	reranker ports.RerankService,
	generator ports.Generator,
	cfg AnswerConfig,
) (*AnswerUseCase, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	return &AnswerUseCase{
		embedder: embedder,
		sparse:   sparse,
		dense:    dense,
		rerank:   &rerankPolicy{svc: reranker},
		synth:    newSynthesizer(generator, cfg.MaxContextLen),
		cfg:      cfg,
	}, nil
}

func (uc *AnswerUseCase) Answer(
	ctx context.Context,
	question string,
	topK int,
	filter domain.SearchFilter,
	wantConfidence bool,
) (*domain.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("empty question"))
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	uc.totalQueries.Add(1)

	// Fetch roughly twice the final size from each signal so the reranker has
	// enough material to work with.
	candidateK := 2 * topK

	sparseResults, denseResults, err := uc.retrieve(ctx, question, candidateK, filter)
	if err != nil {
		return nil, err
	}

	fused, err := fuseRRF(sparseResults, denseResults, candidateK, uc.cfg.Weights, uc.cfg.RRFK)
	if err != nil {
		return nil, err
	}
	if len(fused) == 0 {
		// Required short-circuit: neither the reranker nor the generator is
		// called when retrieval found nothing.
		uc.noContextTotal.Add(1)
		return domain.NoInformationResult(question, uc.synth.generator.Model()), nil
	}

	reranked, degraded, rerankTook := uc.rerankStage(ctx, question, fused, topK)
	if degraded {
		uc.rerankFallbacks.Add(1)
	}
	if len(reranked) == 0 {
		uc.noContextTotal.Add(1)
		result := domain.NoInformationResult(question, uc.synth.generator.Model())
		result.RerankDegraded = degraded
		result.RerankDuration = rerankTook
		return result, nil
	}

	genCtx := ctx
	if uc.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, uc.cfg.GenerateTimeout)
		defer cancel()
	}
	result, err := uc.synth.generate(genCtx, question, reranked, wantConfidence)
	if err != nil {
		return nil, err
	}
	result.RerankDegraded = degraded
	result.RerankDuration = rerankTook
	return result, nil
}

// retrieve issues the sparse search and the dense query concurrently and joins
// them before fusion. A dense failure or timeout degrades that signal to an
// empty list; a sparse failure is ErrIndexNotBuilt, which is a hard failure.
func (uc *AnswerUseCase) retrieve(
	ctx context.Context,
	question string,
	candidateK int,
	filter domain.SearchFilter,
) (sparseResults, denseResults []domain.ScoredCandidate, err error) {
	var (
		wg        sync.WaitGroup
		sparseErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sparseResults, sparseErr = uc.sparse.Search(question, candidateK)
	}()
	go func() {
		defer wg.Done()
		denseResults = uc.denseQuery(ctx, question, candidateK, filter)
	}()
	wg.Wait()

	if sparseErr != nil {
		return nil, nil, sparseErr
	}
	return sparseResults, denseResults, nil
}

func (uc *AnswerUseCase) denseQuery(ctx context.Context, question string, topK int, filter domain.SearchFilter) []domain.ScoredCandidate {
	if uc.cfg.DenseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.DenseTimeout)
		defer cancel()
	}

	vector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		slog.Warn("dense_signal_degraded", "stage", "embed", "error", err)
		return nil
	}
	results, err := uc.dense.Query(ctx, vector, topK, filter)
	if err != nil {
		slog.Warn("dense_signal_degraded", "stage", "query", "error", err)
		return nil
	}
	return results
}

// rerankStage runs the rerank policy under its timeout. The returned duration
// is zero for degraded calls so fallbacks never feed latency observations.
func (uc *AnswerUseCase) rerankStage(ctx context.Context, question string, fused []domain.FusedResult, topK int) ([]domain.RerankedResult, bool, time.Duration) {
	if uc.cfg.RerankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.RerankTimeout)
		defer cancel()
	}

	start := time.Now()
	reranked, degraded := uc.rerank.rerankWithThreshold(ctx, question, fused, uc.cfg.RerankThreshold, topK)
	if degraded {
		return reranked, true, 0
	}
	took := time.Since(start)
	uc.rerankCalls.Add(1)
	uc.rerankMicros.Add(uint64(took.Microseconds()))
	return reranked, false, took
}

func (uc *AnswerUseCase) Stats(context.Context) (*domain.SystemStats, error) {
	sparse := uc.sparse.Stats()

	stats := &domain.SystemStats{
		SparseIndexed:    sparse.Indexed,
		PassageCount:     sparse.PassageCount,
		AvgPassageTokens: sparse.AvgPassageTokens,
		TotalQueries:     uc.totalQueries.Load(),
		NoContextTotal:   uc.noContextTotal.Load(),
		RerankFallbacks:  uc.rerankFallbacks.Load(),
	}
	if calls := uc.rerankCalls.Load(); calls > 0 {
		stats.AvgRerankLatencyMS = float64(uc.rerankMicros.Load()) / float64(calls) / 1000.0
	}
	return stats, nil
}
