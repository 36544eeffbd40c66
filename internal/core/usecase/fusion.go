package usecase

import (
	"fmt"
	"sort"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

const defaultRRFK = 60

// FusionWeights scale the per-signal RRF contributions. Both must be in [0,1].
type FusionWeights struct {
	Sparse float64
	Dense  float64
}

func (w FusionWeights) Validate() error {
	if w.Sparse < 0 || w.Sparse > 1 {
		return domain.WrapError(domain.ErrInvalidWeight, "validate fusion weights",
			fmt.Errorf("sparse weight %v outside [0,1]", w.Sparse))
	}
	if w.Dense < 0 || w.Dense > 1 {
		return domain.WrapError(domain.ErrInvalidWeight, "validate fusion weights",
			fmt.Errorf("dense weight %v outside [0,1]", w.Dense))
	}
	return nil
}

type fusedAccumulator struct {
	passage  domain.Passage
	score    float64
	inSparse bool
	inDense  bool
	order    int
}

// fuseRRF merges the two independently ranked lists with reciprocal rank
// fusion: score = w_sparse/(k+rank_sparse+1) + w_dense/(k+rank_dense+1), a term
// omitted when the id is absent from that list. Fusion works on rank, never on
// raw score, because BM25 and cosine similarity live on different scales.
//
// Passage payload for a fused id comes from whichever list supplied it first,
// sparse checked before dense. Ties break by that same first-seen order.
func fuseRRF(sparse, dense []domain.ScoredCandidate, topK int, weights FusionWeights, kConst int) ([]domain.FusedResult, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if kConst <= 0 {
		kConst = defaultRRFK
	}

	acc := make(map[string]*fusedAccumulator, len(sparse)+len(dense))
	order := make([]string, 0, len(sparse)+len(dense))

	for rank, cand := range sparse {
		entry, ok := acc[cand.Passage.ID]
		if !ok {
			entry = &fusedAccumulator{passage: cand.Passage, order: len(order)}
			acc[cand.Passage.ID] = entry
			order = append(order, cand.Passage.ID)
		}
		entry.inSparse = true
		entry.score += weights.Sparse / float64(kConst+rank+1)
	}
	for rank, cand := range dense {
		entry, ok := acc[cand.Passage.ID]
		if !ok {
			entry = &fusedAccumulator{passage: cand.Passage, order: len(order)}
			acc[cand.Passage.ID] = entry
			order = append(order, cand.Passage.ID)
		}
		entry.inDense = true
		entry.score += weights.Dense / float64(kConst+rank+1)
	}

	out := make([]domain.FusedResult, 0, len(order))
	for _, id := range order {
		entry := acc[id]
		out = append(out, domain.FusedResult{
			Passage:  entry.passage,
			RRFScore: entry.score,
			InSparse: entry.inSparse,
			InDense:  entry.inDense,
		})
	}

	// Stable sort over first-seen order gives the deterministic tie-break.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RRFScore > out[j].RRFScore
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
