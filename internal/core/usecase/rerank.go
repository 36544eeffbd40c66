package usecase

import (
	"context"
	"log/slog"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
	"github.com/vkuzmich/fintech-rag/internal/core/ports"
)

// rerankPolicy owns the client-side policies around the external cross-encoder:
// empty-text substitution, index mapping back to passages, and the fall-back to
// original fused order when the service is unavailable. Reranker failure
// degrades the result, it never fails the pipeline.
type rerankPolicy struct {
	svc ports.RerankService
}

// rerank sends the candidate texts to the reranker and maps the scored results
// back onto the fused candidates. The degraded flag reports that the service
// call failed and the first topN inputs were returned unchanged.
func (p *rerankPolicy) rerank(ctx context.Context, query string, candidates []domain.FusedResult, topN int) (results []domain.RerankedResult, degraded bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		// The backing service rejects empty strings.
		if cand.Passage.Content == "" {
			texts[i] = " "
			continue
		}
		texts[i] = cand.Passage.Content
	}

	ranked, err := p.svc.Rerank(ctx, query, texts, topN)
	if err != nil {
		slog.Warn("rerank_fallback", "query_len", len(query), "candidates", len(candidates), "error", err)
		return fallbackRanking(candidates, topN), true
	}

	results = make([]domain.RerankedResult, 0, len(ranked))
	for rank, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		cand := candidates[r.Index]
		results = append(results, domain.RerankedResult{
			Passage:   cand.Passage,
			RRFScore:  cand.RRFScore,
			Relevance: r.Relevance,
			Rank:      rank,
		})
	}
	return results, false
}

// rerankWithThreshold filters out results whose relevance falls below
// threshold. An emptied result set is a valid outcome meaning "no sufficiently
// relevant passages", not an error.
func (p *rerankPolicy) rerankWithThreshold(ctx context.Context, query string, candidates []domain.FusedResult, threshold float64, topN int) ([]domain.RerankedResult, bool) {
	results, degraded := p.rerank(ctx, query, candidates, topN)
	if threshold <= 0 {
		return results, degraded
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Relevance >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered, degraded
}

// fallbackRanking keeps the fused order, carrying the RRF score as relevance so
// confidence scoring still has a signal to work with.
func fallbackRanking(candidates []domain.FusedResult, topN int) []domain.RerankedResult {
	out := make([]domain.RerankedResult, 0, topN)
	for i := 0; i < topN; i++ {
		out = append(out, domain.RerankedResult{
			Passage:   candidates[i].Passage,
			RRFScore:  candidates[i].RRFScore,
			Relevance: candidates[i].RRFScore,
			Rank:      i,
		})
	}
	return out
}
