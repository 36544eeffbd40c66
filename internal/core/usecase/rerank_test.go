package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

type fakeRerankService struct {
	results  []domain.RankedText
	err      error
	gotTexts []string
	gotTopN  int
	calls    int
}

func (f *fakeRerankService) Rerank(_ context.Context, _ string, texts []string, topN int) ([]domain.RankedText, error) {
	f.calls++
	f.gotTexts = texts
	f.gotTopN = topN
	return f.results, f.err
}

func fusedFixture(ids ...string) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.FusedResult{
			Passage:  domain.Passage{ID: id, Content: "text " + id},
			RRFScore: 0.05 - float64(i)*0.01,
		})
	}
	return out
}

func TestRerankMapsServiceResults(t *testing.T) {
	svc := &fakeRerankService{results: []domain.RankedText{
		{Index: 2, Relevance: 0.95},
		{Index: 0, Relevance: 0.40},
	}}
	policy := &rerankPolicy{svc: svc}

	results, degraded := policy.rerank(context.Background(), "q", fusedFixture("A", "B", "C"), 2)
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Passage.ID != "C" || results[0].Relevance != 0.95 || results[0].Rank != 0 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Passage.ID != "A" || results[1].Rank != 1 {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if results[1].RRFScore != 0.05 {
		t.Fatalf("expected fused score carried through, got %v", results[1].RRFScore)
	}
}

func TestRerankFallsBackOnServiceError(t *testing.T) {
	svc := &fakeRerankService{err: errors.New("service down")}
	policy := &rerankPolicy{svc: svc}

	fused := fusedFixture("A", "B", "C", "D")
	results, degraded := policy.rerank(context.Background(), "q", fused, 2)
	if !degraded {
		t.Fatalf("expected degraded flag")
	}
	if len(results) != 2 {
		t.Fatalf("expected topN results, got %d", len(results))
	}
	if results[0].Passage.ID != "A" || results[1].Passage.ID != "B" {
		t.Fatalf("fallback must keep fused order: %+v", results)
	}
	if results[0].Relevance != results[0].RRFScore {
		t.Fatalf("fallback relevance must be the fused score: %+v", results[0])
	}
}

func TestRerankSubstitutesEmptyTexts(t *testing.T) {
	svc := &fakeRerankService{results: []domain.RankedText{{Index: 0, Relevance: 0.5}}}
	policy := &rerankPolicy{svc: svc}

	fused := []domain.FusedResult{{Passage: domain.Passage{ID: "A", Content: ""}, RRFScore: 0.01}}
	_, degraded := policy.rerank(context.Background(), "q", fused, 1)
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if len(svc.gotTexts) != 1 || svc.gotTexts[0] != " " {
		t.Fatalf("expected single-space substitution, got %q", svc.gotTexts)
	}
}

func TestRerankSkipsOutOfRangeIndices(t *testing.T) {
	svc := &fakeRerankService{results: []domain.RankedText{
		{Index: 5, Relevance: 0.9},
		{Index: 1, Relevance: 0.8},
	}}
	policy := &rerankPolicy{svc: svc}

	results, degraded := policy.rerank(context.Background(), "q", fusedFixture("A", "B"), 2)
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if len(results) != 1 || results[0].Passage.ID != "B" {
		t.Fatalf("expected only the in-range result, got %+v", results)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	svc := &fakeRerankService{}
	policy := &rerankPolicy{svc: svc}

	results, degraded := policy.rerank(context.Background(), "q", nil, 5)
	if results != nil || degraded {
		t.Fatalf("expected nil results, got %+v degraded=%v", results, degraded)
	}
	if svc.calls != 0 {
		t.Fatalf("service must not be called for empty input")
	}
}

func TestRerankWithThresholdFilters(t *testing.T) {
	svc := &fakeRerankService{results: []domain.RankedText{
		{Index: 0, Relevance: 0.9},
		{Index: 1, Relevance: 0.3},
		{Index: 2, Relevance: 0.7},
	}}
	policy := &rerankPolicy{svc: svc}

	results, _ := policy.rerankWithThreshold(context.Background(), "q", fusedFixture("A", "B", "C"), 0.5, 3)
	if len(results) != 2 {
		t.Fatalf("expected 2 above threshold, got %d", len(results))
	}
	for _, r := range results {
		if r.Relevance < 0.5 {
			t.Fatalf("result below threshold: %+v", r)
		}
	}
}

func TestRerankWithThresholdMayEmptyTheSet(t *testing.T) {
	svc := &fakeRerankService{results: []domain.RankedText{{Index: 0, Relevance: 0.1}}}
	policy := &rerankPolicy{svc: svc}

	results, degraded := policy.rerankWithThreshold(context.Background(), "q", fusedFixture("A"), 0.8, 1)
	if degraded {
		t.Fatalf("unexpected degradation")
	}
	if len(results) != 0 {
		t.Fatalf("expected emptied set, got %+v", results)
	}
}
